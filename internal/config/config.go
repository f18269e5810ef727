package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds agent parameters shared by the dockhand binaries.
// It is constructed once at entry and passed down explicitly;
// no component reads ambient globals.
type Config struct {
	// ArtifactOrigin is the trusted base URL where helper artifacts are hosted.
	ArtifactOrigin string `yaml:"artifact_origin"`
	// PilotAddress is the base URL of the pilot HTTP API.
	PilotAddress string `yaml:"pilot_addr"`
	// ContainerName is the name of the managed pilot container.
	ContainerName string `yaml:"container_name"`
	// ComposeDir is the working directory holding the pilot compose definition.
	ComposeDir string `yaml:"compose_dir"`
	// DataDir is the service account's data directory for generated files.
	DataDir string `yaml:"data_dir"`
	// MarkerFile holds the current semantic version of the managed workload.
	MarkerFile string `yaml:"marker_file"`
	// ChecksumFile is the manifest of expected artifact digests.
	ChecksumFile string `yaml:"checksum_file"`
	// LaunchAttempts bounds the workload start retry loop.
	LaunchAttempts int `yaml:"launch_attempts"`
	// LaunchDelay is the fixed delay between workload start attempts.
	LaunchDelay time.Duration `yaml:"launch_delay"`
	// HealthAttempts bounds the pilot health polling loop.
	HealthAttempts int `yaml:"health_attempts"`
	// HealthDelay is the fixed delay between health polls.
	HealthDelay time.Duration `yaml:"health_delay"`
	// Timeout is the duration for network operations and subprocess calls.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for agent settings.
	DefaultConfigFilename = "dockhand-settings.yaml"

	// DefaultPilotAddress is where the pilot API listens on a standard install.
	DefaultPilotAddress = "http://127.0.0.1:8042"

	// DefaultDataDir holds generated files on a standard install.
	DefaultDataDir = "/var/lib/dockhand"

	// DefaultComposeDir holds the pilot compose definition on a standard install.
	DefaultComposeDir = "/srv/dockhand"

	// DefaultContainerName is the pilot container name unless overridden.
	DefaultContainerName = "dockhand-pilot"

	// DefaultMarkerFilename holds the current workload version.
	DefaultMarkerFilename = "dockhand-version.txt"

	// DefaultChecksumFilename is the artifact digest manifest.
	DefaultChecksumFilename = "dockhand-checksums.txt"

	// DefaultLaunchAttempts bounds workload start retries.
	DefaultLaunchAttempts = 3

	// DefaultLaunchDelay is applied before each workload start retry.
	DefaultLaunchDelay = 10 * time.Second

	// DefaultHealthAttempts bounds pilot health polling.
	DefaultHealthAttempts = 12

	// DefaultHealthDelay is applied between health polls.
	DefaultHealthDelay = 5 * time.Second

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPilotAddressRequired is returned when the pilot API address is missing.
	errPilotAddressRequired = errors.New("pilot address must be provided")
)

// Default returns a validated configuration for a standard install.
// Used by the setup flow on a fresh host where no settings file exists yet.
func Default() *Config {
	cfg := &Config{
		PilotAddress: DefaultPilotAddress,
		DataDir:      DefaultDataDir,
		ComposeDir:   DefaultComposeDir,
	}

	// Validation only fills defaults here, it cannot fail.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields,
// filling defaults for anything optional that is unset.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.PilotAddress == "" {
		return errPilotAddressRequired
	}

	if _, err := url.ParseRequestURI(cfg.PilotAddress); err != nil {
		return fmt.Errorf("invalid pilot address: %w", err)
	}

	if cfg.ArtifactOrigin != "" {
		if _, err := url.ParseRequestURI(cfg.ArtifactOrigin); err != nil {
			return fmt.Errorf("invalid artifact origin URI: %w", err)
		}
	}

	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}

	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFilename
	}

	if cfg.ChecksumFile == "" {
		cfg.ChecksumFile = DefaultChecksumFilename
	}

	if cfg.LaunchAttempts <= 0 {
		cfg.LaunchAttempts = DefaultLaunchAttempts
	}

	if cfg.LaunchDelay <= 0 {
		cfg.LaunchDelay = DefaultLaunchDelay
	}

	if cfg.HealthAttempts <= 0 {
		cfg.HealthAttempts = DefaultHealthAttempts
	}

	if cfg.HealthDelay <= 0 {
		cfg.HealthDelay = DefaultHealthDelay
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}
