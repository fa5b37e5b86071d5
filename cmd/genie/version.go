package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/genie"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of genie",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "genie version %s\n", strings.TrimSpace(genie.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
