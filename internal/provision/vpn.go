package provision

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OSRelease holds the parsed host release identity from /etc/os-release.
type OSRelease struct {
	// ID is the distribution identifier, e.g. "ubuntu".
	ID string
	// VersionID is the release version, e.g. "22.04".
	VersionID string
}

// MajorVersion returns the numeric major component of VersionID.
func (r OSRelease) MajorVersion() (int, bool) {
	head, _, _ := strings.Cut(r.VersionID, ".")

	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}

	return major, true
}

// ParseOSRelease reads the os-release key/value format.
func ParseOSRelease(data []byte) OSRelease {
	var release OSRelease

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found {
			continue
		}

		value = strings.Trim(value, `"`)

		switch key {
		case "ID":
			release.ID = value
		case "VERSION_ID":
			release.VersionID = value
		}
	}

	return release
}

// LoadOSRelease reads the host's /etc/os-release.
func LoadOSRelease() (OSRelease, error) {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return OSRelease{}, fmt.Errorf("read os-release: %w", err)
	}

	return ParseOSRelease(data), nil
}

// VpnVariant is the closed set of installation strategies for the VPN client.
type VpnVariant int

const (
	// VariantUnsupported means no installation strategy exists for this host.
	VariantUnsupported VpnVariant = iota
	// VariantPPA installs WireGuard from the upstream PPA (older releases).
	VariantPPA
	// VariantArchive installs WireGuard from the distribution archive.
	VariantArchive
)

// String renders the variant for logs.
func (v VpnVariant) String() string {
	switch v {
	case VariantPPA:
		return "ppa"
	case VariantArchive:
		return "archive"
	default:
		return "unsupported"
	}
}

// SelectVpnVariant is a pure function of the parsed host release.
func SelectVpnVariant(release OSRelease) VpnVariant {
	if release.ID != "ubuntu" {
		return VariantUnsupported
	}

	major, ok := release.MajorVersion()
	if !ok {
		return VariantUnsupported
	}

	switch {
	case major >= 16 && major < 20:
		return VariantPPA
	case major >= 20 && major < 26:
		return VariantArchive
	default:
		return VariantUnsupported
	}
}

// VpnClientStep installs the VPN client appropriate for the host release.
// The VPN is ancillary to the update mechanism, so the step is advisory:
// an unsupported release or failed install degrades to a warning.
type VpnClientStep struct {
	// Release is the detected host OS release.
	Release OSRelease

	commander Commander
}

// NewVpnClientStep builds the step.
func NewVpnClientStep(release OSRelease, commander Commander) *VpnClientStep {
	return &VpnClientStep{
		Release:   release,
		commander: commander,
	}
}

// Name identifies the step.
func (s *VpnClientStep) Name() string {
	return "vpn-client"
}

// Advisory marks the step non-fatal.
func (s *VpnClientStep) Advisory() bool {
	return true
}

// Detect probes for an installed client.
func (s *VpnClientStep) Detect(ctx context.Context) (State, error) {
	if _, err := s.commander.Run(ctx, "wg", "--version"); err != nil {
		return StateAbsent, nil
	}

	return StatePresent, nil
}

// Apply installs the variant selected for the host release.
func (s *VpnClientStep) Apply(ctx context.Context) error {
	variant := SelectVpnVariant(s.Release)

	switch variant {
	case VariantPPA:
		if _, err := s.commander.Run(ctx, "add-apt-repository", "-y", "ppa:wireguard/wireguard"); err != nil {
			return fmt.Errorf("add wireguard ppa: %w", err)
		}

		fallthrough
	case VariantArchive:
		if _, err := s.commander.Run(ctx, "apt-get", "update"); err != nil {
			return fmt.Errorf("refresh package index: %w", err)
		}

		if _, err := s.commander.Run(ctx, "apt-get", "install", "-y", "wireguard"); err != nil {
			return fmt.Errorf("install wireguard: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("no VPN client variant for %s %s", s.Release.ID, s.Release.VersionID)
	}
}
