package main

import (
	"os"

	"github.com/spf13/cobra"

	"wager/internal/app"
	"wager/internal/config"
	"wager/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "wagerctl",
	Short:         "Operate a wager deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// open builds the full service graph from the environment. Commands that
// touch storage go through here so they honour the same policy file as the
// server.
func open(cmd *cobra.Command) (*app.App, error) {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.AppEnv, cfg.LogLevel)
	return app.Build(cmd.Context(), cfg, logger)
}
