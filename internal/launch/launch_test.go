package launch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeEngine scripts per-call pull results and records daemon restarts.
type fakeEngine struct {
	pullErrs       []error
	pullCalls      int
	upErr          error
	upCalls        int
	running        bool
	runningErr     error
	daemonRestarts int
}

func (f *fakeEngine) Pull(_ context.Context, _ string) error {
	f.pullCalls++

	if f.pullCalls <= len(f.pullErrs) {
		return f.pullErrs[f.pullCalls-1]
	}

	return nil
}

func (f *fakeEngine) Up(_ context.Context, _ string) error {
	f.upCalls++
	return f.upErr
}

func (f *fakeEngine) Running(_ context.Context, _ string) (bool, error) {
	return f.running, f.runningErr
}

func (f *fakeEngine) RestartDaemon(_ context.Context) error {
	f.daemonRestarts++
	return nil
}

func newTestLauncher(engine Engine) *Launcher {
	return NewLauncher(engine, "dockhand-pilot",
		WithSettleDelay(0),
		WithSleeper(func(_ context.Context, _ time.Duration) error { return nil }))
}

var errDNS = errors.New("pull access denied: dial tcp: lookup registry.example.com: no such host")

// TestStartRecoversAfterCorrectiveRestart verifies the canonical recovery:
// two classified pull failures, one daemon restart after the second attempt,
// success on the third.
func TestStartRecoversAfterCorrectiveRestart(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		pullErrs: []error{errDNS, errDNS},
		running:  true,
	}

	err := newTestLauncher(engine).Start(context.Background(), "/srv/dockhand", 5, 0)
	require.NoError(t, err)
	require.Equal(t, 3, engine.pullCalls)
	require.Equal(t, 1, engine.upCalls)
	require.Equal(t, 1, engine.daemonRestarts)
}

// TestStartRestartsDaemonOnlyOnce keeps the corrective action one-shot even
// when later attempts fail with the same signature.
func TestStartRestartsDaemonOnlyOnce(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		pullErrs: []error{errDNS, errDNS, errDNS, errDNS},
		running:  true,
	}

	err := newTestLauncher(engine).Start(context.Background(), "/srv/dockhand", 5, 0)
	require.NoError(t, err)
	require.Equal(t, 1, engine.daemonRestarts)
}

// TestStartNoRestartWithoutNetworkSignature leaves the daemon alone for
// non-network pull failures.
func TestStartNoRestartWithoutNetworkSignature(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		pullErrs: []error{errors.New("manifest unknown"), errors.New("manifest unknown")},
		running:  true,
	}

	err := newTestLauncher(engine).Start(context.Background(), "/srv/dockhand", 5, 0)
	require.NoError(t, err)
	require.Zero(t, engine.daemonRestarts)
}

// TestStartExhaustsAfterMaxAttempts verifies terminal failure with
// diagnostics after exactly maxAttempts attempts.
func TestStartExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		pullErrs: []error{errDNS, errDNS, errDNS, errDNS, errDNS, errDNS},
	}

	err := newTestLauncher(engine).Start(context.Background(), "/srv/dockhand", 3, 0)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 3, engine.pullCalls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.NotEmpty(t, exhausted.Hints)
	require.Contains(t, exhausted.Error(), "DNS")
}

// TestStartTreatsCrashedContainerAsFailure covers the verification state:
// pull and up succeed but the container is not running.
func TestStartTreatsCrashedContainerAsFailure(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{running: false}

	err := newTestLauncher(engine).Start(context.Background(), "/srv/dockhand", 2, 0)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 2, engine.upCalls)
}

// TestIsNetworkFailure classifies representative runtime error texts.
func TestIsNetworkFailure(t *testing.T) {
	t.Parallel()

	require.True(t, isNetworkFailure(errDNS))
	require.True(t, isNetworkFailure(errors.New("Temporary failure in name resolution")))
	require.True(t, isNetworkFailure(errors.New("connect: network is unreachable")))
	require.False(t, isNetworkFailure(errors.New("manifest unknown")))
	require.False(t, isNetworkFailure(nil))
}
