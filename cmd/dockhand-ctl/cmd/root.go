package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/dockhand/internal/config"
	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/service/ctl"
	"github.com/oshokin/dockhand/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// pilotAddress overrides the configured pilot API address.
	pilotAddress string
	// logLevel adjusts logging verbosity.
	logLevel string

	// rootCmd represents the base command for talking to the pilot.
	rootCmd = &cobra.Command{
		Use:   "dockhand-ctl",
		Short: "Control and inspect the pilot workload on this host.",
		Long: `Client for the pilot HTTP control API.

Checks pilot health, lists managed packages, reports per-package status,
triggers deployments and runs connectivity diagnostics. Every subcommand
exits non-zero on failure so it can gate shell scripts.`,
	}
)

// Execute runs the dockhand-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext sets up graceful shutdown handling for a subcommand.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func commandOptions(cmd *cobra.Command) *ctl.Options {
	return &ctl.Options{
		ConfigPath:   configPath,
		PilotAddress: pilotAddress,
		Out:          cmd.OutOrStdout(),
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&pilotAddress, "pilot-addr", "a", "", "override the pilot API address")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "logging level (debug, info, warn, error)")

	cobra.OnInitialize(applyLogLevel)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "health",
			Short: "Check that the pilot answers its health endpoint.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := commandContext()
				defer stop()

				return ctl.Health(ctx, commandOptions(cmd))
			},
		},
		&cobra.Command{
			Use:   "packages",
			Short: "List every package the pilot manages.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := commandContext()
				defer stop()

				return ctl.Packages(ctx, commandOptions(cmd))
			},
		},
		&cobra.Command{
			Use:   "status <package>",
			Short: "Show the pilot's status report for one package.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := commandContext()
				defer stop()

				return ctl.Status(ctx, commandOptions(cmd), args[0])
			},
		},
		&cobra.Command{
			Use:   "update <package>",
			Short: "Ask the pilot to deploy one package now.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := commandContext()
				defer stop()

				return ctl.Update(ctx, commandOptions(cmd), args[0])
			},
		},
		&cobra.Command{
			Use:   "update-all",
			Short: "Ask the pilot to deploy every package it manages.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := commandContext()
				defer stop()

				return ctl.UpdateAll(ctx, commandOptions(cmd))
			},
		},
		&cobra.Command{
			Use:   "debug",
			Short: "Run connectivity diagnostics against the pilot.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := commandContext()
				defer stop()

				return ctl.Debug(ctx, commandOptions(cmd))
			},
		},
	)
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
