package artifact

import (
	"bytes"
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/dockhand/internal/checksum"
	"github.com/oshokin/dockhand/internal/logger"

	// Ensure SHA256 is available for artifact verification.
	_ "crypto/sha256"
)

// Outcome reports what Ensure did to the local copy.
type Outcome int

const (
	// OutcomeUnchanged means the local copy already matched its expected digest.
	OutcomeUnchanged Outcome = iota
	// OutcomeReplaced means a verified copy was downloaded and installed.
	OutcomeReplaced
)

// String renders the outcome for logs.
func (o Outcome) String() string {
	if o == OutcomeReplaced {
		return "replaced"
	}

	return "unchanged"
}

const (
	// DefaultFileMode marks installed artifacts executable.
	DefaultFileMode os.FileMode = 0o755

	// verificationHash is the hash function enforced on downloaded content.
	verificationHash = crypto.SHA256
)

var (
	// ErrIntegrity is returned when downloaded content does not match the
	// expected digest. The run must stop: there is no safe degraded mode
	// for executing unverified code.
	ErrIntegrity = errors.New("artifact digest mismatch")
	// errBadHTTPStatus is returned for non-200 responses from the origin.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errOriginRequired is returned when the fetcher has no origin URL.
	errOriginRequired = errors.New("artifact origin must be provided")
)

// Artifact names one integrity-verified helper file.
type Artifact struct {
	// Name is the filename at the trusted origin.
	Name string
	// LocalPath is where the verified copy lives on this host.
	LocalPath string
	// ExpectedDigest is the hex SHA-256 the local copy must match.
	ExpectedDigest string
}

// Fetcher downloads named artifacts from a trusted origin and atomically
// replaces local copies only after digest verification.
type Fetcher struct {
	origin string
	store  *checksum.Store
	client *http.Client
}

// Option configures fetcher behaviour.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewFetcher creates a fetcher bound to a trusted origin base URL and a
// checksum store acting as the source of truth for expected digests.
func NewFetcher(origin string, store *checksum.Store, opts ...Option) (*Fetcher, error) {
	if origin == "" {
		return nil, errOriginRequired
	}

	if _, err := url.ParseRequestURI(origin); err != nil {
		return nil, fmt.Errorf("invalid artifact origin: %w", err)
	}

	f := &Fetcher{
		origin: origin,
		store:  store,
		client: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Resolve builds an Artifact for a manifest entry, placing the local copy
// under localDir.
func (f *Fetcher) Resolve(name, localDir string) (Artifact, error) {
	digest, err := f.store.Expected(name)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Name:           name,
		LocalPath:      filepath.Join(localDir, name),
		ExpectedDigest: digest,
	}, nil
}

// Ensure makes the local copy of an artifact verified-present.
//
// A local copy matching its expected digest is left untouched with zero
// network access. An absent or mismatched copy is re-downloaded, verified
// and atomically installed; on verification failure nothing replaces the
// local path and ErrIntegrity is returned.
func (f *Fetcher) Ensure(ctx context.Context, art Artifact) (Outcome, error) {
	if _, err := os.Stat(art.LocalPath); err == nil {
		local, digestErr := checksum.FileDigest(art.LocalPath)
		if digestErr != nil {
			return OutcomeUnchanged, fmt.Errorf("digest local copy of %s: %w", art.Name, digestErr)
		}

		if local == art.ExpectedDigest {
			return OutcomeUnchanged, nil
		}

		// Self-heal: a tampered or partially written copy is treated
		// the same as an absent one. Remove it up front so a failed
		// refetch never leaves a mismatched file in place.
		logger.WarnKV(ctx, "Local artifact does not match expected digest, refetching",
			"artifact", art.Name, "local", local, "expected", art.ExpectedDigest)

		if err = os.Remove(art.LocalPath); err != nil {
			return OutcomeUnchanged, fmt.Errorf("remove mismatched %s: %w", art.LocalPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return OutcomeUnchanged, fmt.Errorf("stat %s: %w", art.LocalPath, err)
	}

	data, err := f.download(ctx, art.Name)
	if err != nil {
		return OutcomeUnchanged, err
	}

	if got := checksum.Digest(data); got != art.ExpectedDigest {
		return OutcomeUnchanged, fmt.Errorf("%s: got %s, expected %s: %w",
			art.Name, got, art.ExpectedDigest, ErrIntegrity)
	}

	if err = f.install(art, data); err != nil {
		return OutcomeUnchanged, err
	}

	logger.InfoKV(ctx, "Installed verified artifact", "artifact", art.Name, "path", art.LocalPath)

	return OutcomeReplaced, nil
}

// EnsureAll ensures every named artifact, failing on the first error.
func (f *Fetcher) EnsureAll(ctx context.Context, localDir string, names []string) error {
	for _, name := range names {
		art, err := f.Resolve(name, localDir)
		if err != nil {
			return err
		}

		outcome, err := f.Ensure(ctx, art)
		if err != nil {
			return fmt.Errorf("ensure artifact %s: %w", name, err)
		}

		logger.InfoKV(ctx, "Artifact verified", "artifact", name, "outcome", outcome.String())
	}

	return nil
}

// download fetches the raw artifact body from the origin.
func (f *Fetcher) download(ctx context.Context, name string) ([]byte, error) {
	originURL, err := url.Parse(f.origin)
	if err != nil {
		return nil, err
	}

	// path.Join normalizes duplicate slashes when composing the URL path.
	originURL.Path = path.Join(originURL.Path, name)
	finalURL := originURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", finalURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", finalURL, err)
	}

	return data, nil
}

// install atomically replaces the local copy with already-verified content.
// goupdate re-verifies the checksum and swaps via rename, so a kill at any
// point leaves either the old or the new file, never a truncated hybrid.
func (f *Fetcher) install(art Artifact, data []byte) error {
	expected, err := hex.DecodeString(art.ExpectedDigest)
	if err != nil {
		return fmt.Errorf("decode expected digest for %s: %w", art.Name, err)
	}

	// goupdate swaps via rename and needs a target to rename away.
	var createdPlaceholder bool

	if _, err = os.Stat(art.LocalPath); err != nil && errors.Is(err, os.ErrNotExist) {
		var placeholder *os.File

		if placeholder, err = os.Create(art.LocalPath); err != nil {
			return fmt.Errorf("create %s: %w", art.LocalPath, err)
		}

		if err = placeholder.Close(); err != nil {
			return fmt.Errorf("close %s: %w", art.LocalPath, err)
		}

		createdPlaceholder = true
	}

	options := goupdate.Options{
		TargetPath: art.LocalPath,
		TargetMode: DefaultFileMode,
		Checksum:   expected,
		Hash:       verificationHash,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		// An artifact must be verified-present or absent, nothing in between.
		if createdPlaceholder {
			_ = os.Remove(art.LocalPath)
		}

		return fmt.Errorf("apply artifact %s: %w", art.Name, err)
	}

	// goupdate keeps the previous copy with an .old suffix; drop it.
	oldFileName := art.LocalPath + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}
