package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/dockhand/internal/config"
	"github.com/oshokin/dockhand/internal/diag"
	"github.com/oshokin/dockhand/internal/pilot"
)

func newPilotServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/packages", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]pilot.PackageInfo{
			{Name: "demo", RepositoryURL: "https://example.invalid/demo.git", Version: "1.2.3"},
			{Name: "metrics", RepositoryURL: "https://example.invalid/metrics.git"},
		})
	})
	mux.HandleFunc("/api/packages/demo/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pilot.PackageStatus{
			Name:            "demo",
			Version:         "1.2.3",
			UpdateAvailable: true,
		})
	})
	mux.HandleFunc("/api/packages/demo/update", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/packages/update-all", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func writeSettings(t *testing.T, pilotAddress string) string {
	t.Helper()

	cfg := config.Default()
	cfg.PilotAddress = pilotAddress

	path := filepath.Join(t.TempDir(), "dockhand-settings.yaml")
	require.NoError(t, config.Save(path, cfg))

	return path
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := newPilotServer(t)
	out := new(bytes.Buffer)

	require.NoError(t, Health(context.Background(), &Options{
		ConfigPath: writeSettings(t, server.URL),
		Out:        out,
	}))
	require.Contains(t, out.String(), "is healthy")
}

func TestPackagesListing(t *testing.T) {
	t.Parallel()

	server := newPilotServer(t)
	out := new(bytes.Buffer)

	require.NoError(t, Packages(context.Background(), &Options{
		ConfigPath: writeSettings(t, server.URL),
		Out:        out,
	}))

	listing := out.String()
	require.Contains(t, listing, "demo")
	require.Contains(t, listing, "1.2.3")
	require.Contains(t, listing, "metrics")
	// A package without a reported version is shown as unknown.
	require.Contains(t, listing, "unknown")
}

func TestStatus(t *testing.T) {
	t.Parallel()

	server := newPilotServer(t)
	out := new(bytes.Buffer)
	opts := &Options{ConfigPath: writeSettings(t, server.URL), Out: out}

	require.NoError(t, Status(context.Background(), opts, "demo"))
	require.Contains(t, out.String(), "update available: true")

	err := Status(context.Background(), opts, "ghost")
	require.ErrorIs(t, err, pilot.ErrNotFound)
}

func TestUpdateTriggers(t *testing.T) {
	t.Parallel()

	server := newPilotServer(t)
	out := new(bytes.Buffer)
	opts := &Options{ConfigPath: writeSettings(t, server.URL), Out: out}

	require.NoError(t, Update(context.Background(), opts, "demo"))
	require.Contains(t, out.String(), "update triggered for demo")

	out.Reset()
	require.NoError(t, UpdateAll(context.Background(), opts))
	require.Contains(t, out.String(), "all packages")
}

func TestPilotAddressOverride(t *testing.T) {
	t.Parallel()

	server := newPilotServer(t)
	out := new(bytes.Buffer)

	// Settings point nowhere, the flag override wins.
	require.NoError(t, Health(context.Background(), &Options{
		ConfigPath:   writeSettings(t, "http://127.0.0.1:1"),
		PilotAddress: server.URL,
		Out:          out,
	}))
}

func TestDebugReportsFailedChecks(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)

	err := Debug(context.Background(), &Options{
		ConfigPath: writeSettings(t, "http://127.0.0.1:1"),
		Out:        out,
	})
	require.ErrorIs(t, err, diag.ErrChecksFailed)
	require.Contains(t, out.String(), "pilot-health")
}
