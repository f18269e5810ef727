package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/dockhand/internal/config"
	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/service/release"
	"github.com/oshokin/dockhand/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// bumpClass selects which version component to increment.
	bumpClass string
	// setVersion pins the target version exactly.
	setVersion string
	// files lists the helper artifacts to reconcile.
	files []string
	// logLevel adjusts logging verbosity.
	logLevel string

	// rootCmd represents the base command for advancing the release version.
	rootCmd = &cobra.Command{
		Use:   "dockhand-release [repository-url]",
		Short: "Advance the managed workload to its next version.",
		Long: `Computes the next release version and rewrites every version binding.

The current version comes from the local marker file; on a machine without
one, the newest release tag of the given repository URL is used instead.
The target is either a bump of the current version (--bump) or an exact
version (--set). Helper scripts carrying the version are rewritten in
place and the checksum manifest is regenerated over the artifact set so
fetchers accept the rewritten files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var repositoryURL string
			if len(args) > 0 {
				repositoryURL = args[0]
			}

			options := &release.Options{
				ConfigPath:    configPath,
				RepositoryURL: repositoryURL,
				SetVersion:    setVersion,
				BumpClass:     bumpClass,
				Files:         files,
			}

			return release.Run(ctx, options)
		},
	}
)

// Execute runs the dockhand-release CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&bumpClass, "bump", "b", "patch", "version component to increment (major, minor, patch)")
	rootCmd.Flags().StringVarP(&setVersion, "set", "s", "", "pin the target version exactly (X.Y.Z)")
	rootCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "helper artifact to reconcile (repeatable)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "logging level (debug, info, warn, error)")

	cobra.OnInitialize(applyLogLevel)
}

// applyLogLevel raises or lowers logging verbosity before any command runs.
func applyLogLevel() {
	if logLevel == "" {
		return
	}

	if level, ok := logger.ParseLogLevel(logLevel); ok {
		logger.SetLevel(level)
	}
}
