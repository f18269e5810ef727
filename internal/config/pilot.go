package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PackageDescriptor describes a Git-backed deployable unit tracked by the pilot.
// It is written into the pilot configuration once at provisioning time and
// never mutated by the agent afterward; the pilot owns subsequent changes.
type PackageDescriptor struct {
	// Name identifies the package to the pilot.
	Name string `json:"Name"`
	// RepositoryURL is the Git remote holding the package definition.
	RepositoryURL string `json:"RepositoryUrl"`
	// RepositoryLocalPath is where the pilot clones the repository.
	RepositoryLocalPath string `json:"RepositoryLocalPath"`
	// ComposeSubdirectory is the compose definition location inside the clone.
	ComposeSubdirectory string `json:"ComposeSubdirectory"`
	// RegistryURL is the optional private registry for package images.
	RegistryURL string `json:"RegistryUrl,omitempty"`
	// RegistryCredential is the optional credential for RegistryURL.
	RegistryCredential string `json:"RegistryCredential,omitempty"`
}

// HostIdentity records how the pilot identifies this machine.
type HostIdentity struct {
	// ComputerName is the operator-assigned machine name.
	ComputerName string `json:"ComputerName"`
	// PublicKeyPath points at the provisioned SSH public key.
	PublicKeyPath string `json:"PublicKeyPath"`
}

// PilotConfig is the JSON document handed to the pilot container.
type PilotConfig struct {
	Host     HostIdentity        `json:"Host"`
	Packages []PackageDescriptor `json:"Packages"`
}

var (
	// errPackageNameRequired is returned when a descriptor has no name.
	errPackageNameRequired = errors.New("package name must be provided")
	// errRepositoryURLRequired is returned when a descriptor has no repository.
	errRepositoryURLRequired = errors.New("repository URL must be provided")
	// errRegistryPair is returned when only one of the registry fields is set.
	errRegistryPair = errors.New("registry URL and credential must be provided together")
)

// ValidatePackage checks descriptor invariants before anything is written.
func ValidatePackage(pkg *PackageDescriptor) error {
	if pkg.Name == "" {
		return errPackageNameRequired
	}

	if pkg.RepositoryURL == "" {
		return errRepositoryURLRequired
	}

	// Both present or both absent, never one without the other.
	if (pkg.RegistryURL == "") != (pkg.RegistryCredential == "") {
		return errRegistryPair
	}

	return nil
}

// WritePilotConfig serializes the pilot configuration to path.
// The write goes through a temporary file and rename so an interrupted
// run leaves either the old content or the new, never a truncated hybrid.
func WritePilotConfig(path string, cfg *PilotConfig) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	for i := range cfg.Packages {
		if err := ValidatePackage(&cfg.Packages[i]); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pilot config: %w", err)
	}

	data = append(data, '\n')
	path = filepath.Clean(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pilot-config-*")
	if err != nil {
		return fmt.Errorf("stage pilot config: %w", err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("write pilot config: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close pilot config: %w", err)
	}

	if err = os.Chmod(tmpName, DefaultFilePermissions); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("chmod pilot config: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace pilot config: %w", err)
	}

	return nil
}

// ReadPilotConfig loads a previously generated pilot configuration.
func ReadPilotConfig(path string) (*PilotConfig, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read pilot config: %w", err)
	}

	var cfg PilotConfig
	if err := json.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("decode pilot config: %w", err)
	}

	return &cfg, nil
}
