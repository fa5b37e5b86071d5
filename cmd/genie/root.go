package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/genie/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "genie",
	Short: "Genie is a guided sales chat engine",
	Long: `Genie walks visitors through a graph of question nodes, surfaces customer
reviews along the way and records every answer against an analytics session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("flow") {
			loaded.Flow, _ = flags.GetString("flow")
		}
		if flags.Changed("content-url") {
			loaded.ContentURL, _ = flags.GetString("content-url")
		}
		if flags.Changed("log-level") {
			loaded.Log.Level, _ = flags.GetString("log-level")
		}
		if flags.Changed("store-dir") {
			loaded.Store.Dir, _ = flags.GetString("store-dir")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		cfg = loaded
		logger = cfg.Logger()
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("flow", "", "Flow file (YAML/JSON) or Loam directory")
	rootCmd.PersistentFlags().String("content-url", "", "Base URL of the remote content API (overrides --flow)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("store-dir", "", "Keep conversations as JSON files in this directory")
}
