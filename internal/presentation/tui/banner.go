package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the Genie ASCII art banner and the version line.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Ocean gradient, top to bottom
	lines := []struct {
		text  string
		color string
	}{
		{"   ____            _      ", "#38bdf8"},
		{"  / ___| ___ _ __ (_) ___ ", "#22d3ee"},
		{" | |  _ / _ \\ '_ \\| |/ _ \\", "#2dd4bf"},
		{" | |_| |  __/ | | | |  __/", "#34d399"},
		{"  \\____|\\___|_| |_|_|\\___|", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintf(w, "  AI Genie %s\n\n", version)
}
