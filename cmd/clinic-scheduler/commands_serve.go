package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the webhook server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the clinic scheduler webhook server.

The server will:
1. Load configuration from the specified file (or run against compiled-in
   defaults against in-memory stores)
2. Wire the session manager, context hydrator, scheduling engine, and LLM
   provider adapters
3. Start the HTTP server that ingests Evolution API webhook events

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  clinic-scheduler serve

  # Start with a config file
  clinic-scheduler serve --config /etc/clinic-scheduler/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
