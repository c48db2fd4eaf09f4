package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/app-updater/internal/logger"
	"github.com/oshokin/app-updater/internal/service/handoff"
	"github.com/oshokin/app-updater/internal/service/stager"
)

// handoffCmd finishes an update after the updater that staged it has exited.
var handoffCmd = &cobra.Command{
	Use:    stager.HandoffCommand + " <descriptor>",
	Short:  "Install a staged update (started by the updater itself)",
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		ctx = logger.WithName(ctx, "app-updater-handoff")

		descriptor, err := handoff.Load(args[0])
		if err != nil {
			logger.ErrorKV(ctx, "Unable to read the hand-off descriptor", "path", args[0], "error", err)

			return err
		}

		if descriptor.LogFile != "" {
			level, _ := logger.ParseLogLevel(descriptor.LogLevel)

			log, closeLog, logErr := logger.NewWithFile(descriptor.LogFile, level)
			if logErr != nil {
				logger.WarnKV(ctx, "Unable to open the log file, logging to stdout only", "error", logErr)
			} else {
				defer func() {
					_ = closeLog()
				}()

				ctx = logger.WithName(logger.ToContext(ctx, log), "app-updater-handoff")
			}
		}

		ctx = logger.WithKV(ctx, "parent_pid", descriptor.ParentPID)

		return handoff.NewRunner().Execute(ctx, descriptor).Err()
	},
}
