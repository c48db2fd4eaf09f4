package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/app-updater/internal/service/updater"
	"github.com/oshokin/app-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// noWait skips the acknowledgment prompt on errors.
	noWait bool

	// verbose forces debug logging.
	verbose bool

	// rootCmd represents the base command for updating and starting the main application.
	rootCmd = &cobra.Command{
		Use:   "app-updater <archivePath> <mainAppDirectory>",
		Short: "Update itself, install a release package and start the main application",
		Long: "Checks the update manifest and hands off to a newer updater when one is published. " +
			"Otherwise expands the package into the main application directory and starts the main application.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.Options{
				ConfigPath:  configPath,
				Args:        args,
				CommandLine: os.Args,
				Input:       os.Stdin,
				NoWait:      noWait,
				Verbose:     verbose,
			}

			return updater.Run(ctx, options)
		},
	}
)

// Execute runs the app-updater CLI and exits with the code of the failure class.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(handoffCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(updater.ExitCode(err))
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default: next to the executable)")
	rootCmd.Flags().BoolVar(&noWait, "no-wait", false, "exit without waiting for Enter after an error")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}
