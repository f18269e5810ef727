package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCommander records invocations and serves scripted results.
type fakeCommander struct {
	calls    []string
	failures map[string]error
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{failures: make(map[string]error)}
}

func (f *fakeCommander) Run(_ context.Context, program string, args ...string) (string, error) {
	call := strings.Join(append([]string{program}, args...), " ")
	f.calls = append(f.calls, call)

	for prefix, err := range f.failures {
		if strings.HasPrefix(call, prefix) {
			return "", err
		}
	}

	return "", nil
}

func (f *fakeCommander) failOn(prefix string) {
	f.failures[prefix] = fmt.Errorf("command failed: %s", prefix)
}

func (f *fakeCommander) called(prefix string) bool {
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}

	return false
}

// TestServiceAccountStep verifies detection and creation commands.
func TestServiceAccountStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Account missing: id fails, Apply creates and grants group.
	commander := newFakeCommander()
	commander.failOn("id -u dockhand")

	step := NewServiceAccountStep("dockhand", commander)

	state, err := step.Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)

	require.NoError(t, step.Apply(ctx))
	require.True(t, commander.called("useradd -m -s /bin/bash dockhand"))
	require.True(t, commander.called("usermod -aG docker dockhand"))

	// Account present.
	commander = newFakeCommander()
	step = NewServiceAccountStep("dockhand", commander)

	state, err = step.Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, StatePresent, state)
}

// TestDirectoryLayoutStep verifies create-if-absent plus unconditional
// mode re-application.
func TestDirectoryLayoutStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := t.TempDir()
	paths := []string{filepath.Join(base, "data"), filepath.Join(base, "compose")}

	step := NewDirectoryLayoutStep(paths, "", 0o750, newFakeCommander())

	state, err := step.Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)

	require.NoError(t, step.Apply(ctx))

	state, err = step.Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, StatePresent, state)

	// Drift the mode, Assert must put it back.
	require.NoError(t, os.Chmod(paths[0], 0o777))
	require.NoError(t, step.Assert(ctx))

	info, err := os.Stat(paths[0])
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o750), info.Mode().Perm())
}

// TestKeypairStep verifies generation, permissions, append-only
// authorized keys and never-overwrite semantics.
func TestKeypairStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := t.TempDir()

	privatePath := filepath.Join(base, "keys", "id_ed25519")
	authorizedPath := filepath.Join(base, "ssh", "authorized_keys")

	require.NoError(t, os.MkdirAll(filepath.Dir(authorizedPath), 0o700))
	require.NoError(t, os.WriteFile(authorizedPath, []byte("ssh-ed25519 EXISTING existing@host\n"), 0o600))

	step := NewKeypairStep(privatePath, authorizedPath, "dockhand@host")

	state, err := step.Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAbsent, state)

	require.NoError(t, step.Apply(ctx))

	info, err := os.Stat(privatePath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(step.PublicKeyPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	// Existing entries survive, new key appended.
	authorized, err := os.ReadFile(authorizedPath)
	require.NoError(t, err)
	require.Contains(t, string(authorized), "EXISTING")
	require.Contains(t, string(authorized), "ssh-ed25519")
	require.Contains(t, string(authorized), "dockhand@host")
	require.Len(t, strings.Split(strings.TrimSpace(string(authorized)), "\n"), 2)

	// Second pass: key exists, never regenerated.
	privateBefore, err := os.ReadFile(privatePath)
	require.NoError(t, err)

	state, err = step.Detect(ctx)
	require.NoError(t, err)
	require.Equal(t, StatePresent, state)

	privateAfter, err := os.ReadFile(privatePath)
	require.NoError(t, err)
	require.Equal(t, privateBefore, privateAfter)
}

// TestSelectVpnVariant covers the closed variant set.
func TestSelectVpnVariant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		release OSRelease
		want    VpnVariant
	}{
		{OSRelease{ID: "ubuntu", VersionID: "18.04"}, VariantPPA},
		{OSRelease{ID: "ubuntu", VersionID: "22.04"}, VariantArchive},
		{OSRelease{ID: "ubuntu", VersionID: "14.04"}, VariantUnsupported},
		{OSRelease{ID: "debian", VersionID: "12"}, VariantUnsupported},
		{OSRelease{ID: "ubuntu", VersionID: "weird"}, VariantUnsupported},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, SelectVpnVariant(tc.release),
			"%s %s", tc.release.ID, tc.release.VersionID)
	}
}

// TestParseOSRelease handles quoting and unrelated keys.
func TestParseOSRelease(t *testing.T) {
	t.Parallel()

	release := ParseOSRelease([]byte("NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_ID=\"22.04\"\nPRETTY_NAME=\"Ubuntu 22.04\"\n"))
	require.Equal(t, "ubuntu", release.ID)
	require.Equal(t, "22.04", release.VersionID)
}

// TestRunSkipsPresentAndAppliesAbsent checks the runner's transition rules.
func TestRunSkipsPresentAndAppliesAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	commander := newFakeCommander()
	commander.failOn("id -u dockhand")

	steps := []Step{
		NewServiceAccountStep("dockhand", commander),
		NewContainerRuntimeStep(commander), // docker --version succeeds: present
	}

	require.NoError(t, Run(ctx, steps))
	require.True(t, commander.called("useradd"))
	require.False(t, commander.called("sh -c curl"))
}

// TestRunAdvisoryStepDegradesToWarning lets a failed VPN install continue.
func TestRunAdvisoryStepDegradesToWarning(t *testing.T) {
	t.Parallel()

	commander := newFakeCommander()
	commander.failOn("wg --version")
	commander.failOn("apt-get")

	step := NewVpnClientStep(OSRelease{ID: "ubuntu", VersionID: "22.04"}, commander)

	require.NoError(t, Run(context.Background(), []Step{step}))
}

// TestRunFatalStepAborts surfaces ErrStepFailed for mandatory steps.
func TestRunFatalStepAborts(t *testing.T) {
	t.Parallel()

	commander := newFakeCommander()
	commander.failOn("id -u dockhand")
	commander.failOn("useradd")

	err := Run(context.Background(), []Step{NewServiceAccountStep("dockhand", commander)})
	require.ErrorIs(t, err, ErrStepFailed)
}

// TestRunUnsupportedVpnReleaseIsNonFatal covers the unsupported variant.
func TestRunUnsupportedVpnReleaseIsNonFatal(t *testing.T) {
	t.Parallel()

	commander := newFakeCommander()
	commander.failOn("wg --version")

	step := NewVpnClientStep(OSRelease{ID: "fedora", VersionID: "40"}, commander)

	require.NoError(t, Run(context.Background(), []Step{step}))
	require.False(t, commander.called("apt-get"))
}
