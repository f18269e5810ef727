package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/dockhand/internal/artifact"
	"github.com/oshokin/dockhand/internal/checksum"
	"github.com/oshokin/dockhand/internal/config"
	"github.com/oshokin/dockhand/internal/launch"
	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/pilot"
	"github.com/oshokin/dockhand/internal/provision"
)

const (
	// pilotConfigFilename is written into the data directory for the pilot.
	pilotConfigFilename = "pilot-config.json"
	// keysSubdirectory holds the generated SSH keypair inside the data directory.
	keysSubdirectory = "keys"
	// privateKeyFilename is the generated SSH private key name.
	privateKeyFilename = "id_ed25519"
	// repositoriesSubdirectory is where the pilot clones package repositories.
	repositoriesSubdirectory = "repos"
	// composeSubdirectory is the compose definition location inside a clone.
	composeSubdirectory = "compose"

	dataDirectoryMode = 0o750
	sshDirectoryMode  = 0o700
)

var (
	errAppNameRequired       = errors.New("application name must be provided")
	errComputerNameRequired  = errors.New("computer name must be provided")
	errRepositoryURLRequired = errors.New("repository URL must be provided")
)

// Options are inputs accepted by the setup entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// AppName identifies the package the pilot will manage.
	AppName string
	// RepositoryURL is the Git remote holding the package definition.
	RepositoryURL string
	// ComputerName is the operator-assigned machine name.
	ComputerName string
	// RegistryURL is the optional private registry for package images.
	RegistryURL string
	// RegistryCredential is the optional credential for RegistryURL.
	RegistryCredential string
	// ComposeDir overrides the configured compose working directory.
	ComposeDir string
	// Commander overrides the subprocess runner, for tests.
	Commander provision.Commander
	// Engine overrides the container runtime, for tests.
	Engine launch.Engine
}

// runner holds the state for a single setup execution.
// It is intentionally unexported - call Run(ctx, opts) from callers.
type runner struct {
	cfg        *config.Config
	configPath string
	opts       *Options
	commander  provision.Commander
	engine     launch.Engine
	// accountHome is the service account's home directory,
	// overridable in tests so no real /home paths are touched.
	accountHome string
	// launchOptions tune the workload launcher, for tests.
	launchOptions []launch.Option
}

// Run executes the full host bootstrap and is the public entry point
// for the CLI. Every stage is idempotent, so an interrupted run is
// recovered by simply running again.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dockhand-setup")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Setup run failed", "error", err)
		return err
	}

	logger.Info(ctx, "Setup completed")

	return nil
}

// newRunner validates inputs and loads settings before anything on the
// host is touched. A missing settings file is not an error on a fresh
// machine, defaults are used and persisted at the end of the run.
func newRunner(_ context.Context, opts *Options) (*runner, error) {
	if opts == nil {
		opts = &Options{}
	}

	if strings.TrimSpace(opts.AppName) == "" {
		return nil, errAppNameRequired
	}

	if strings.TrimSpace(opts.RepositoryURL) == "" {
		return nil, errRepositoryURLRequired
	}

	if strings.TrimSpace(opts.ComputerName) == "" {
		return nil, errComputerNameRequired
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

	if opts.ComposeDir != "" {
		cfg.ComposeDir = opts.ComposeDir
	}

	r := &runner{
		cfg:         cfg,
		configPath:  configPath,
		opts:        opts,
		commander:   opts.Commander,
		engine:      opts.Engine,
		accountHome: filepath.Join("/home", provision.DefaultServiceAccount),
	}

	if r.commander == nil {
		r.commander = provision.ExecCommander{}
	}

	if r.engine == nil {
		r.engine = launch.NewComposeEngine()
	}

	// Reject a broken registry pair before any host mutation.
	if err = config.ValidatePackage(r.packageDescriptor()); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *runner) run(ctx context.Context) error {
	if err := r.provisionHost(ctx); err != nil {
		return err
	}

	// Artifacts land in the compose directory, so they are fetched only
	// after the directory layout step has created it.
	if err := r.fetchArtifacts(ctx); err != nil {
		return err
	}

	if err := r.writePilotConfig(ctx); err != nil {
		return err
	}

	if err := r.launchWorkload(ctx); err != nil {
		return err
	}

	if err := r.triggerDeployment(ctx); err != nil {
		return err
	}

	return config.Save(r.configPath, r.cfg)
}

// fetchArtifacts brings local helper artifacts in line with the trusted
// manifest. Skipped entirely when no artifact origin is configured, which
// is the common case for hosts provisioned from a prebuilt image.
func (r *runner) fetchArtifacts(ctx context.Context) error {
	if r.cfg.ArtifactOrigin == "" {
		logger.Info(ctx, "No artifact origin configured, skipping artifact verification")
		return nil
	}

	store, err := checksum.Load(r.checksumPath())
	if err != nil {
		return fmt.Errorf("load checksum manifest: %w", err)
	}

	fetcher, err := artifact.NewFetcher(r.cfg.ArtifactOrigin, store)
	if err != nil {
		return err
	}

	return fetcher.EnsureAll(ctx, r.cfg.ComposeDir, store.Names())
}

// provisionHost drives the privileged capability steps in dependency
// order: the account must exist before directories are chowned to it,
// and directories must exist before the keypair lands in them.
func (r *runner) provisionHost(ctx context.Context) error {
	release, err := provision.LoadOSRelease()
	if err != nil {
		logger.WarnKV(ctx, "Unable to read OS release, VPN client support will be skipped", "error", err)
	}

	steps := []provision.Step{
		provision.NewServiceAccountStep(provision.DefaultServiceAccount, r.commander),
		provision.NewDirectoryLayoutStep(
			[]string{r.cfg.DataDir, r.cfg.ComposeDir, r.keysDir(), r.repositoriesDir()},
			provision.DefaultServiceAccount,
			dataDirectoryMode,
			r.commander,
		),
		provision.NewDirectoryLayoutStep(
			[]string{filepath.Join(r.accountHome, ".ssh")},
			provision.DefaultServiceAccount,
			sshDirectoryMode,
			r.commander,
		),
		provision.NewKeypairStep(r.privateKeyPath(), r.authorizedKeysPath(), r.opts.ComputerName),
		provision.NewContainerRuntimeStep(r.commander),
		provision.NewVpnClientStep(release, r.commander),
	}

	if err = provision.Run(ctx, steps); err != nil {
		return err
	}

	// Non-blocking: a failed loopback SSH check is reported but does not
	// abort the bootstrap, the operator can fix access after the fact.
	provision.VerifyRemoteAccess(ctx, r.commander, provision.DefaultServiceAccount)

	return nil
}

func (r *runner) writePilotConfig(ctx context.Context) error {
	pilotConfig := &config.PilotConfig{
		Host: config.HostIdentity{
			ComputerName:  r.opts.ComputerName,
			PublicKeyPath: r.privateKeyPath() + ".pub",
		},
		Packages: []config.PackageDescriptor{*r.packageDescriptor()},
	}

	path := filepath.Join(r.cfg.DataDir, pilotConfigFilename)

	if err := config.WritePilotConfig(path, pilotConfig); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Pilot configuration written", "path", path, "package", r.opts.AppName)

	return nil
}

func (r *runner) launchWorkload(ctx context.Context) error {
	launcher := launch.NewLauncher(r.engine, r.cfg.ContainerName, r.launchOptions...)

	return launcher.Start(ctx, r.cfg.ComposeDir, r.cfg.LaunchAttempts, r.cfg.LaunchDelay)
}

func (r *runner) triggerDeployment(ctx context.Context) error {
	client, err := pilot.NewClient(r.cfg.PilotAddress, pilot.WithCallTimeout(r.cfg.Timeout))
	if err != nil {
		return err
	}

	_, err = client.TriggerInitialDeployment(ctx, r.opts.AppName, r.cfg.HealthAttempts, r.cfg.HealthDelay)

	return err
}

// packageDescriptor assembles the single package this host is set up for.
func (r *runner) packageDescriptor() *config.PackageDescriptor {
	return &config.PackageDescriptor{
		Name:                r.opts.AppName,
		RepositoryURL:       r.opts.RepositoryURL,
		RepositoryLocalPath: filepath.Join(r.repositoriesDir(), r.opts.AppName),
		ComposeSubdirectory: composeSubdirectory,
		RegistryURL:         r.opts.RegistryURL,
		RegistryCredential:  r.opts.RegistryCredential,
	}
}

func (r *runner) checksumPath() string {
	if filepath.IsAbs(r.cfg.ChecksumFile) {
		return r.cfg.ChecksumFile
	}

	return filepath.Join(r.cfg.DataDir, r.cfg.ChecksumFile)
}

func (r *runner) keysDir() string {
	return filepath.Join(r.cfg.DataDir, keysSubdirectory)
}

func (r *runner) repositoriesDir() string {
	return filepath.Join(r.cfg.DataDir, repositoriesSubdirectory)
}

func (r *runner) privateKeyPath() string {
	return filepath.Join(r.keysDir(), privateKeyFilename)
}

func (r *runner) authorizedKeysPath() string {
	return filepath.Join(r.accountHome, ".ssh", "authorized_keys")
}
