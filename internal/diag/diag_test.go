package diag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRunAgainstHealthyPilot passes address, DNS and health checks.
func TestRunAgainstHealthyPilot(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	report, _ := Run(context.Background(), server.URL)

	byName := make(map[string]Check, len(report.Checks))
	for _, check := range report.Checks {
		byName[check.Name] = check
	}

	require.True(t, byName["pilot-address"].Passed)
	require.True(t, byName["dns-resolution"].Passed)
	require.True(t, byName["pilot-health"].Passed)
}

// TestRunInvalidAddress fails fast on a malformed pilot URL.
func TestRunInvalidAddress(t *testing.T) {
	t.Parallel()

	report, err := Run(context.Background(), "::::")
	require.ErrorIs(t, err, ErrChecksFailed)
	require.True(t, report.Failed())
	require.False(t, report.Checks[0].Passed)
}

// TestRunUnreachablePilot reports pilot-health as failed.
func TestRunUnreachablePilot(t *testing.T) {
	t.Parallel()

	report, err := Run(context.Background(), "http://127.0.0.1:1")
	require.ErrorIs(t, err, ErrChecksFailed)

	var healthFailed bool

	for _, check := range report.Checks {
		if check.Name == "pilot-health" && !check.Passed {
			healthFailed = true
		}
	}

	require.True(t, healthFailed)
}
