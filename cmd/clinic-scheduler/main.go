// Package main provides the CLI entry point for the clinic scheduler
// WhatsApp assistant.
//
// clinic-scheduler ingests Evolution API webhook events, runs them through
// a fixed session/hydration/routing/generation pipeline, and drives the
// scheduling engine's slot search, hold, and confirm operations as LLM
// tool calls.
//
// # Basic Usage
//
// Start the server:
//
//	clinic-scheduler serve --config clinic-scheduler.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clinic-scheduler",
		Short: "Clinic scheduler WhatsApp assistant",
		Long: `clinic-scheduler connects a clinic's WhatsApp line (via Evolution API)
to an LLM tool-calling loop that searches, holds, and confirms appointment
slots against the scheduling engine.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())

	return rootCmd
}
