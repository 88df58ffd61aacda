// Package cmd is the dispatch command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joy095/dispatch/app"
	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/logger"
)

var rootCmd = &cobra.Command{
	Use:           "dispatch",
	Short:         "Booking dispatch service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.ErrorLogger.Error(err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// build loads the settings and wires the application.
func build(ctx context.Context) (*app.App, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, settings)
}
