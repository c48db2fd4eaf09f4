package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/app-updater/internal/service/packager"
	"github.com/oshokin/app-updater/internal/version"
)

var (
	// outputDir receives the package and the manifest.
	outputDir string

	// manifestURL is written to updater settings when set.
	manifestURL string

	// rootCmd represents the base command for preparing a release.
	rootCmd = &cobra.Command{
		Use:   "app-packager <source-dir> <version> <update-url>",
		Short: "Pack a release directory and write its update manifest",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				SourceDir:   args[0],
				Version:     args[1],
				UpdateURL:   args[2],
				OutputDir:   outputDir,
				ManifestURL: manifestURL,
			}

			_, err := packager.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the app-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory for the package and the manifest")
	rootCmd.Flags().StringVarP(&manifestURL, "manifest-url", "m", "",
		"also write updater settings pointing at this manifest address")
}
