package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/genie/internal/validator"
	loamAdapter "github.com/aretw0/genie/pkg/adapters/loam"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow]",
	Short: "Check the flow graph for consistency",
	Long: `Crawls the graph from its start node and reports dead links, empty labels,
choices that lead nowhere and unreachable nodes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, finalPage, err := openSource(flowArg(cmd, args))
		if err != nil {
			return err
		}

		report, err := validator.ValidateGraph(cmd.Context(), src, cfg.Intents, validator.WithFinalPage(finalPage))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, w := range report.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if err := report.Err(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(out, "Graph is valid! ✅ (%d nodes reachable from '%s')\n", report.Reachable, report.Start)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func flowArg(cmd *cobra.Command, args []string) string {
	if len(args) > 0 && !cmd.Flags().Changed("flow") {
		return args[0]
	}
	return cfg.Flow
}

// openSource opens a local flow for inspection. It also returns the flow-wide
// final page, if the document declares one.
func openSource(path string) (ports.NodeSource, string, error) {
	if path == "" {
		return nil, "", errors.New("no local flow: pass a flow file or directory")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("invalid flow path: %w", err)
	}
	if info.IsDir() {
		src, err := loamAdapter.Open(path)
		if err != nil {
			return nil, "", err
		}
		return src, "", nil
	}

	f, err := memory.LoadFlowFile(path)
	if err != nil {
		return nil, "", err
	}
	src, err := f.Source()
	if err != nil {
		return nil, "", err
	}
	return src, f.FinalPageURL, nil
}
