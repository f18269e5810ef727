package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/dockhand/internal/checksum"
)

// newTestOrigin serves the provided files and counts requests.
func newTestOrigin(t *testing.T, files map[string][]byte, hits *int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++

		body, ok := files[filepath.Base(r.URL.Path)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write(body)
	}))

	t.Cleanup(server.Close)

	return server
}

func newTestFetcher(t *testing.T, origin string, name string, content []byte) *Fetcher {
	t.Helper()

	store := checksum.New()
	require.NoError(t, store.Set(name, checksum.Digest(content)))

	fetcher, err := NewFetcher(origin, store)
	require.NoError(t, err)

	return fetcher
}

// TestEnsureMatchingCopySkipsNetwork verifies that a verified-present
// artifact causes zero network calls.
func TestEnsureMatchingCopySkipsNetwork(t *testing.T) {
	t.Parallel()

	var (
		content = []byte("#!/bin/sh\necho ok\n")
		hits    int
	)

	server := newTestOrigin(t, map[string][]byte{"helper.sh": content}, &hits)
	fetcher := newTestFetcher(t, server.URL, "helper.sh", content)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.sh"), content, 0o755))

	art, err := fetcher.Resolve("helper.sh", dir)
	require.NoError(t, err)

	outcome, err := fetcher.Ensure(context.Background(), art)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)
	require.Zero(t, hits)
}

// TestEnsureDownloadsAbsentArtifact verifies download, digest check and
// executable install for a missing local copy.
func TestEnsureDownloadsAbsentArtifact(t *testing.T) {
	t.Parallel()

	var (
		content = []byte("#!/bin/sh\necho ok\n")
		hits    int
	)

	server := newTestOrigin(t, map[string][]byte{"helper.sh": content}, &hits)
	fetcher := newTestFetcher(t, server.URL, "helper.sh", content)

	dir := t.TempDir()

	art, err := fetcher.Resolve("helper.sh", dir)
	require.NoError(t, err)

	outcome, err := fetcher.Ensure(context.Background(), art)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplaced, outcome)
	require.Equal(t, 1, hits)

	installed, err := os.ReadFile(art.LocalPath)
	require.NoError(t, err)
	require.Equal(t, content, installed)

	info, err := os.Stat(art.LocalPath)
	require.NoError(t, err)
	require.Equal(t, DefaultFileMode, info.Mode().Perm())

	// No leftover backup.
	_, err = os.Stat(art.LocalPath + ".old")
	require.True(t, os.IsNotExist(err))
}

// TestEnsureReplacesTamperedCopy verifies the self-healing path.
func TestEnsureReplacesTamperedCopy(t *testing.T) {
	t.Parallel()

	var (
		content = []byte("#!/bin/sh\necho ok\n")
		hits    int
	)

	server := newTestOrigin(t, map[string][]byte{"helper.sh": content}, &hits)
	fetcher := newTestFetcher(t, server.URL, "helper.sh", content)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.sh"), []byte("tampered"), 0o755))

	art, err := fetcher.Resolve("helper.sh", dir)
	require.NoError(t, err)

	outcome, err := fetcher.Ensure(context.Background(), art)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplaced, outcome)
	require.Equal(t, 1, hits)

	installed, err := os.ReadFile(art.LocalPath)
	require.NoError(t, err)
	require.Equal(t, content, installed)
}

// TestEnsureFailsClosedOnDigestMismatch verifies that origin content which
// does not match the manifest never lands at the local path.
func TestEnsureFailsClosedOnDigestMismatch(t *testing.T) {
	t.Parallel()

	var hits int

	server := newTestOrigin(t, map[string][]byte{"helper.sh": []byte("evil")}, &hits)
	fetcher := newTestFetcher(t, server.URL, "helper.sh", []byte("#!/bin/sh\necho ok\n"))

	dir := t.TempDir()

	art, err := fetcher.Resolve("helper.sh", dir)
	require.NoError(t, err)

	_, err = fetcher.Ensure(context.Background(), art)
	require.ErrorIs(t, err, ErrIntegrity)

	_, err = os.Stat(art.LocalPath)
	require.True(t, os.IsNotExist(err))
}

// TestEnsureRemovesMismatchedCopyOnFailedRefetch verifies that a stale local
// copy is gone even when the origin cannot serve a replacement.
func TestEnsureRemovesMismatchedCopyOnFailedRefetch(t *testing.T) {
	t.Parallel()

	var hits int

	server := newTestOrigin(t, map[string][]byte{}, &hits)
	fetcher := newTestFetcher(t, server.URL, "helper.sh", []byte("#!/bin/sh\necho ok\n"))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.sh"), []byte("stale"), 0o755))

	art, err := fetcher.Resolve("helper.sh", dir)
	require.NoError(t, err)

	_, err = fetcher.Ensure(context.Background(), art)
	require.Error(t, err)

	_, err = os.Stat(art.LocalPath)
	require.True(t, os.IsNotExist(err))
}
