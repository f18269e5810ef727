package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeBindingFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func shellBinding(t *testing.T, path string) Binding {
	t.Helper()

	rewriter, err := NewShellAssignmentRewriter("DOCKHAND_VERSION")
	require.NoError(t, err)

	return Binding{Path: path, Rewriter: rewriter}
}

// brokenRewriter simulates a rewrite whose output never verifies.
type brokenRewriter struct{ inner Rewriter }

func (b brokenRewriter) Extract(content []byte) (string, bool) {
	return b.inner.Extract(content)
}

func (b brokenRewriter) Rewrite(content []byte, _, _ string) []byte {
	return content
}

// TestReconcileUpdatesStaleBinding rewrites and verifies a stale file.
func TestReconcileUpdatesStaleBinding(t *testing.T) {
	t.Parallel()

	path := writeBindingFile(t, "helper.sh", `#!/bin/sh`+"\n"+`DOCKHAND_VERSION="1.2.3"`+"\n")

	report, err := NewReconciler().Reconcile(context.Background(), "1.3.0", []Binding{shellBinding(t, path)})
	require.NoError(t, err)
	require.Equal(t, []string{path}, report.Updated)
	require.Empty(t, report.Failed)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), `DOCKHAND_VERSION="1.3.0"`)

	// Backup discarded after verification.
	_, err = os.Stat(path + ".bak")
	require.True(t, os.IsNotExist(err))
}

// TestReconcileAlreadyCurrentSkipsWrite leaves a current file untouched.
func TestReconcileAlreadyCurrentSkipsWrite(t *testing.T) {
	t.Parallel()

	original := `DOCKHAND_VERSION="1.3.0"` + "\n"
	path := writeBindingFile(t, "helper.sh", original)

	before, err := os.Stat(path)
	require.NoError(t, err)

	report, err := NewReconciler().Reconcile(context.Background(), "1.3.0", []Binding{shellBinding(t, path)})
	require.NoError(t, err)
	require.Equal(t, []string{path}, report.AlreadyCurrent)
	require.Empty(t, report.Updated)

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
}

// TestReconcileContinuesPastUnparsableFile records a failure and keeps going.
func TestReconcileContinuesPastUnparsableFile(t *testing.T) {
	t.Parallel()

	unparsable := writeBindingFile(t, "noversion.sh", "#!/bin/sh\necho hi\n")
	stale := writeBindingFile(t, "helper.sh", `DOCKHAND_VERSION="1.0.0"`+"\n")

	report, err := NewReconciler().Reconcile(context.Background(), "2.0.0", []Binding{
		shellBinding(t, unparsable),
		shellBinding(t, stale),
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	require.Equal(t, unparsable, report.Failed[0].Path)
	require.Equal(t, []string{stale}, report.Updated)
}

// TestReconcileRestoresOnVerificationFailure puts the original bytes back
// when the new value cannot be confirmed after the write.
func TestReconcileRestoresOnVerificationFailure(t *testing.T) {
	t.Parallel()

	original := `DOCKHAND_VERSION="1.2.3"` + "\n"
	path := writeBindingFile(t, "helper.sh", original)

	rewriter, err := NewShellAssignmentRewriter("DOCKHAND_VERSION")
	require.NoError(t, err)

	binding := Binding{Path: path, Rewriter: brokenRewriter{inner: rewriter}}

	report, err := NewReconciler().Reconcile(context.Background(), "2.0.0", []Binding{binding})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, string(restored))
}

// TestReconcileRunsRegenerationOnceAfterAllBindings ensures the hook sees
// the fully-updated set and fires exactly once.
func TestReconcileRunsRegenerationOnceAfterAllBindings(t *testing.T) {
	t.Parallel()

	first := writeBindingFile(t, "a.sh", `DOCKHAND_VERSION="1.0.0"`+"\n")
	second := writeBindingFile(t, "b.sh", `DOCKHAND_VERSION="1.0.0"`+"\n")

	var runs int

	reconciler := NewReconciler(WithRegeneration(func(_ context.Context) error {
		runs++

		for _, path := range []string{first, second} {
			content, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Contains(t, string(content), "2.0.0")
		}

		return nil
	}))

	_, err := reconciler.Reconcile(context.Background(), "2.0.0", []Binding{
		shellBinding(t, first),
		shellBinding(t, second),
	})
	require.NoError(t, err)
	require.Equal(t, 1, runs)
}

// TestReconcileRejectsMalformedTarget validates before any side effect.
func TestReconcileRejectsMalformedTarget(t *testing.T) {
	t.Parallel()

	path := writeBindingFile(t, "helper.sh", `DOCKHAND_VERSION="1.0.0"`+"\n")

	_, err := NewReconciler().Reconcile(context.Background(), "2.0", []Binding{shellBinding(t, path)})
	require.Error(t, err)

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	require.Contains(t, string(content), "1.0.0")
}
