package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/dockhand/internal/config"
	"github.com/oshokin/dockhand/internal/diag"
	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/pilot"
)

// Options are inputs shared by all ctl subcommands.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// PilotAddress overrides the configured pilot API address.
	PilotAddress string
	// Out receives human-readable command output, defaults to stdout.
	Out io.Writer
}

// session resolves settings once and carries the client for one command.
type session struct {
	cfg    *config.Config
	client *pilot.Client
	out    io.Writer
}

func newSession(opts *Options) (*session, error) {
	if opts == nil {
		opts = &Options{}
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}

	cfg, err := config.Load(configPath)

	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, err
	}

	if opts.PilotAddress != "" {
		cfg.PilotAddress = opts.PilotAddress
	}

	client, err := pilot.NewClient(cfg.PilotAddress, pilot.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return &session{cfg: cfg, client: client, out: out}, nil
}

// Health checks the pilot health endpoint.
func Health(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dockhand-ctl")

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	if err = s.client.Health(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(s.out, "pilot at %s is healthy\n", s.cfg.PilotAddress)

	return nil
}

// Packages lists every package the pilot manages.
func Packages(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dockhand-ctl")

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	packages, err := s.client.ListPackages(ctx)
	if err != nil {
		return err
	}

	if len(packages) == 0 {
		_, _ = fmt.Fprintln(s.out, "no packages are managed")
		return nil
	}

	for _, pkg := range packages {
		version := pkg.Version
		if version == "" {
			version = "unknown"
		}

		_, _ = fmt.Fprintf(s.out, "%-24s %-12s %s\n", pkg.Name, version, pkg.RepositoryURL)
	}

	return nil
}

// Status prints the pilot's status report for one package.
func Status(ctx context.Context, opts *Options, packageName string) error {
	ctx = logger.WithName(ctx, "dockhand-ctl")

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	status, err := s.client.PackageStatus(ctx, packageName)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(s.out, "package:          %s\n", status.Name)
	_, _ = fmt.Fprintf(s.out, "version:          %s\n", status.Version)
	_, _ = fmt.Fprintf(s.out, "update available: %t\n", status.UpdateAvailable)

	if !status.LastChecked.IsZero() {
		_, _ = fmt.Fprintf(s.out, "last checked:     %s\n", status.LastChecked.Format("2006-01-02 15:04:05 MST"))
	}

	return nil
}

// Update asks the pilot to update one package.
func Update(ctx context.Context, opts *Options, packageName string) error {
	ctx = logger.WithName(ctx, "dockhand-ctl")

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	if err = s.client.TriggerUpdate(ctx, packageName); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(s.out, "update triggered for %s\n", packageName)

	return nil
}

// UpdateAll asks the pilot to update every package it manages.
func UpdateAll(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dockhand-ctl")

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	if err = s.client.TriggerUpdateAll(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(s.out, "update triggered for all packages")

	return nil
}

// Debug runs the connectivity diagnostics and prints every check.
// Returns diag.ErrChecksFailed when any check failed, so the CLI exits
// non-zero.
func Debug(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dockhand-ctl")

	s, err := newSession(opts)
	if err != nil {
		return err
	}

	report, runErr := diag.Run(ctx, s.cfg.PilotAddress)
	if report != nil {
		for _, check := range report.Checks {
			mark := "ok"
			if !check.Passed {
				mark = "!!"
			}

			_, _ = fmt.Fprintf(s.out, "[%s] %-16s %s\n", mark, check.Name, check.Detail)
		}
	}

	return runErr
}
