package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joy095/dispatch/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued notifications without serving HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := build(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		logger.InfoLogger.Info("Running outbox worker only")
		return a.Worker.Run(ctx)
	},
}
