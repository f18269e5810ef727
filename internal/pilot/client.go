package pilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oshokin/dockhand/internal/logger"
)

// Package paths on the pilot control API.
const (
	healthPath     = "/health"
	packagesPath   = "/api/packages"
	updateAllPath  = "/api/packages/update-all"
	statusSuffix   = "status"
	updateSuffix   = "update"
	defaultTimeout = 30 * time.Second

	// maxResponseBytes bounds how much of an API answer is buffered.
	maxResponseBytes = 1 << 20
)

var (
	// ErrUnavailable is returned when the pilot's health endpoint does
	// not answer with success. Its message must never be confused with a
	// missing package.
	ErrUnavailable = errors.New("pilot service not available")
	// ErrNotFound is returned when a package-scoped endpoint answers 404.
	ErrNotFound = errors.New("package not found")
	// errAPIFailure covers generic non-2xx answers.
	errAPIFailure = errors.New("pilot API request failed")
	// errAddressRequired is returned when the base URL is missing.
	errAddressRequired = errors.New("pilot address must be provided")
)

// PackageInfo is one entry of the pilot's package listing.
type PackageInfo struct {
	// Name identifies the package.
	Name string `json:"name"`
	// RepositoryURL is the Git remote the pilot tracks for it.
	RepositoryURL string `json:"repositoryUrl"`
	// Version is the currently deployed version, when known.
	Version string `json:"version,omitempty"`
}

// PackageStatus is the pilot's per-package status report.
type PackageStatus struct {
	// Name identifies the package.
	Name string `json:"name"`
	// Version is the currently deployed version.
	Version string `json:"version"`
	// UpdateAvailable reports whether the pilot sees a newer revision.
	UpdateAvailable bool `json:"updateAvailable"`
	// LastChecked is when the pilot last polled the package's remote.
	LastChecked time.Time `json:"lastChecked"`
}

// Client wraps the pilot HTTP control API with convenience helpers.
type Client struct {
	// baseURL is the pilot API root.
	baseURL string
	// httpClient performs the requests.
	httpClient *http.Client
	// callTimeout is the default timeout for individual calls.
	callTimeout time.Duration
	// sleep is injectable for tests of the polling helpers.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for API calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSleeper overrides the delay function used between health polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient creates a client for the pilot API at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errAddressRequired
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pilot address: %w", err)
	}

	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
		callTimeout: defaultTimeout,
		sleep:       sleepContext,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Health queries the root health endpoint. Any non-2xx answer, or an
// unreachable pilot, is reported as ErrUnavailable.
func (c *Client) Health(ctx context.Context) error {
	response, err := c.do(ctx, http.MethodGet, healthPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if response.statusCode < 200 || response.statusCode > 299 {
		return fmt.Errorf("%w: status %s", ErrUnavailable, response.status)
	}

	return nil
}

// WaitHealthy polls the health endpoint with a fixed delay until the pilot
// answers or the attempt budget is exhausted.
func (c *Client) WaitHealthy(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.Health(ctx)
		if lastErr == nil {
			logger.InfoKV(ctx, "Pilot is healthy", "attempt", attempt)
			return nil
		}

		logger.DebugKV(ctx, "Pilot not healthy yet",
			"attempt", attempt, "max_attempts", attempts, "error", lastErr)

		if attempt == attempts {
			break
		}

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// ListPackages returns the pilot's package listing.
func (c *Client) ListPackages(ctx context.Context) ([]PackageInfo, error) {
	response, err := c.do(ctx, http.MethodGet, packagesPath)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	if err = c.checkStatus(response, ""); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	var packages []PackageInfo
	if err = json.Unmarshal(response.body, &packages); err != nil {
		return nil, fmt.Errorf("decode package listing: %w", err)
	}

	return packages, nil
}

// PackageStatus returns the pilot's status report for one package.
// A 404 means the package is unknown to the pilot, which is distinct from
// the pilot itself being unavailable.
func (c *Client) PackageStatus(ctx context.Context, name string) (*PackageStatus, error) {
	response, err := c.do(ctx, http.MethodGet, path.Join(packagesPath, name, statusSuffix))
	if err != nil {
		return nil, fmt.Errorf("status of %s: %w", name, err)
	}

	if err = c.checkStatus(response, name); err != nil {
		return nil, err
	}

	var status PackageStatus
	if err = json.Unmarshal(response.body, &status); err != nil {
		return nil, fmt.Errorf("decode status of %s: %w", name, err)
	}

	return &status, nil
}

// TriggerUpdate asks the pilot to deploy one package now.
func (c *Client) TriggerUpdate(ctx context.Context, name string) error {
	response, err := c.do(ctx, http.MethodPost, path.Join(packagesPath, name, updateSuffix))
	if err != nil {
		return fmt.Errorf("trigger update of %s: %w", name, err)
	}

	return c.checkStatus(response, name)
}

// TriggerUpdateAll asks the pilot to deploy every tracked package.
func (c *Client) TriggerUpdateAll(ctx context.Context) error {
	response, err := c.do(ctx, http.MethodPost, updateAllPath)
	if err != nil {
		return fmt.Errorf("trigger update of all packages: %w", err)
	}

	return c.checkStatus(response, "")
}

// apiResponse is a fully buffered API answer. The body is read before
// the per-call timeout is released, so callers may decode it at leisure.
type apiResponse struct {
	statusCode int
	status     string
	body       []byte
}

// do issues one API request with the configured timeout and buffers the
// answer. The request context is canceled once do returns, which would
// close a live response body, so the body must be drained here.
func (c *Client) do(ctx context.Context, method, requestPath string) (*apiResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+requestPath, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &apiResponse{
		statusCode: response.StatusCode,
		status:     response.Status,
		body:       body,
	}, nil
}

// checkStatus maps response codes to the error taxonomy. The packageName
// is set for package-scoped endpoints, where a 404 means the package is
// unknown rather than a generic failure.
func (c *Client) checkStatus(response *apiResponse, packageName string) error {
	if response.statusCode >= 200 && response.statusCode <= 299 {
		return nil
	}

	if response.statusCode == http.StatusNotFound && packageName != "" {
		return fmt.Errorf("%s: %w", packageName, ErrNotFound)
	}

	return fmt.Errorf("%s: %s: %w", response.status, apiErrorMessage(response.body), errAPIFailure)
}

// apiErrorMessage extracts a human-readable message from an error body.
// The pilot uses either an "error" or a "message" key; when neither is
// present the raw body text is used.
func apiErrorMessage(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "no error details"
	}

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}

		if envelope.Message != "" {
			return envelope.Message
		}
	}

	return strings.TrimSpace(string(raw))
}
