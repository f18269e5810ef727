package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/dockhand/internal/checksum"
	"github.com/oshokin/dockhand/internal/config"
	"github.com/oshokin/dockhand/internal/gitref"
	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/reconcile"
	"github.com/oshokin/dockhand/internal/repository/marker"
	"github.com/oshokin/dockhand/internal/semver"
)

// versionVariable is the shell assignment rewritten in helper scripts.
const versionVariable = "DOCKHAND_VERSION"

// manifestMode keeps the regenerated manifest world-readable, fetchers
// on other hosts download it over plain HTTPS.
const manifestMode = 0o644

var (
	errNoBaseVersion = errors.New("no current version: marker file is absent and no repository URL was provided")
	errNoBoundFiles  = errors.New("no files carry a version binding")
)

// Options are inputs accepted by the release entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// RepositoryURL is consulted for the latest release tag when the
	// local marker file does not exist yet.
	RepositoryURL string
	// SetVersion pins the target version exactly, bypassing the bump.
	SetVersion string
	// BumpClass selects which version component to increment.
	BumpClass string
	// Files lists the helper artifacts whose embedded version is
	// reconciled. When empty, every shell script in the compose
	// directory is bound.
	Files []string
}

// runner holds the state for a single release execution.
type runner struct {
	cfg    *config.Config
	opts   *Options
	marker marker.Repository
	// latestRemote resolves the newest release tag of a Git remote,
	// injectable so tests stay off the network.
	latestRemote func(ctx context.Context, repositoryURL string) (string, error)
}

// Run computes the next release version, rewrites every version binding
// and regenerates the checksum manifest over the artifact set, then
// records the new version in the marker file.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dockhand-release")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Release run failed", "error", err)
		return err
	}

	return nil
}

func newRunner(opts *Options) (*runner, error) {
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

	r := &runner{
		cfg:          cfg,
		opts:         opts,
		marker:       marker.NewFileRepository(markerPath(cfg)),
		latestRemote: gitref.LatestVersion,
	}

	return r, nil
}

func (r *runner) run(ctx context.Context) error {
	target, err := r.targetVersion(ctx)
	if err != nil {
		return err
	}

	files, err := r.boundFiles()
	if err != nil {
		return err
	}

	report, err := r.reconcileFiles(ctx, target, files)
	if err != nil {
		return err
	}

	// Per-file failures are already reported by the reconciler; only the
	// summary counts are logged here.
	if err = r.marker.Set(ctx, target); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release recorded",
		"version", target,
		"updated", len(report.Updated),
		"already_current", len(report.AlreadyCurrent),
		"failed", len(report.Failed))

	return nil
}

// targetVersion resolves the version the release moves to. An explicit
// --set wins; otherwise the marker file provides the base, falling back
// to the newest remote release tag on a machine without a marker yet.
func (r *runner) targetVersion(ctx context.Context) (string, error) {
	if r.opts.SetVersion != "" {
		if _, err := semver.Parse(r.opts.SetVersion); err != nil {
			return "", err
		}

		return r.opts.SetVersion, nil
	}

	base, err := r.marker.Current(ctx)

	switch {
	case err == nil:
	case errors.Is(err, marker.ErrNotFound) && r.opts.RepositoryURL != "":
		logger.InfoKV(ctx, "Marker file absent, consulting remote release tags",
			"repository", r.opts.RepositoryURL)

		base, err = r.latestRemote(ctx, r.opts.RepositoryURL)
		if err != nil {
			return "", fmt.Errorf("discover latest release tag: %w", err)
		}
	case errors.Is(err, marker.ErrNotFound):
		return "", errNoBaseVersion
	default:
		return "", err
	}

	return semver.Bump(base, semver.Class(r.opts.BumpClass))
}

// boundFiles returns the helper artifacts to reconcile, defaulting to
// every shell script in the compose directory.
func (r *runner) boundFiles() ([]string, error) {
	if len(r.opts.Files) > 0 {
		return r.opts.Files, nil
	}

	files, err := filepath.Glob(filepath.Join(r.cfg.ComposeDir, "*.sh"))
	if err != nil {
		return nil, fmt.Errorf("list helper scripts: %w", err)
	}

	if len(files) == 0 {
		return nil, errNoBoundFiles
	}

	return files, nil
}

func (r *runner) reconcileFiles(ctx context.Context, target string, files []string) (*reconcile.Report, error) {
	rewriter, err := reconcile.NewShellAssignmentRewriter(versionVariable)
	if err != nil {
		return nil, err
	}

	bindings := make([]reconcile.Binding, 0, len(files))
	for _, file := range files {
		bindings = append(bindings, reconcile.Binding{Path: file, Rewriter: rewriter})
	}

	reconciler := reconcile.NewReconciler(
		reconcile.WithRegeneration(func(ctx context.Context) error {
			return r.regenerateManifest(ctx, files)
		}),
	)

	return reconciler.Reconcile(ctx, target, bindings)
}

// regenerateManifest rewrites the checksum manifest over the artifact
// set so fetchers accept the reconciled files.
func (r *runner) regenerateManifest(ctx context.Context, files []string) error {
	store := checksum.New()

	for _, file := range files {
		digest, err := checksum.FileDigest(file)
		if err != nil {
			return fmt.Errorf("digest %s: %w", file, err)
		}

		if err = store.Set(filepath.Base(file), digest); err != nil {
			return err
		}
	}

	path := checksumPath(r.cfg)
	if err := store.Write(path, manifestMode); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Checksum manifest regenerated", "path", path, "artifacts", len(files))

	return nil
}

func markerPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.MarkerFile) {
		return cfg.MarkerFile
	}

	return filepath.Join(cfg.DataDir, cfg.MarkerFile)
}

func checksumPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.ChecksumFile) {
		return cfg.ChecksumFile
	}

	return filepath.Join(cfg.DataDir, cfg.ChecksumFile)
}
