package checksum

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DigestLength is the hex length of a SHA-256 digest.
const DigestLength = sha256.Size * 2

var (
	// ErrUnknownArtifact is returned when the manifest has no entry for a name.
	ErrUnknownArtifact = errors.New("artifact not present in checksum manifest")
	// errMalformedLine is returned for manifest lines that are not digest/name pairs.
	errMalformedLine = errors.New("malformed checksum manifest line")
	// errBadDigest is returned for digests that are not 64 hex characters.
	errBadDigest = errors.New("digest is not a 64-character hex SHA-256")
)

// Store holds the expected digest of each artifact, keyed by filename.
// It is the source of truth for integrity verification.
type Store struct {
	digests map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{digests: make(map[string]string)}
}

// Parse reads a manifest in sha256sum format: one whitespace-separated
// digest/filename pair per line. Blank lines are ignored.
func Parse(data []byte) (*Store, error) {
	store := New()

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%q: %w", line, errMalformedLine)
		}

		digest, name := fields[0], fields[1]
		if err := validateDigest(digest); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		store.digests[name] = strings.ToLower(digest)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}

	return store, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read checksum manifest: %w", err)
	}

	return Parse(data)
}

// Expected returns the expected digest for the named artifact.
func (s *Store) Expected(name string) (string, error) {
	digest, ok := s.digests[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownArtifact)
	}

	return digest, nil
}

// Set records the expected digest for a name, replacing any previous value.
func (s *Store) Set(name, digest string) error {
	if err := validateDigest(digest); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	s.digests[name] = strings.ToLower(digest)

	return nil
}

// Names returns all manifest entries in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.digests))
	for name := range s.digests {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Format renders the manifest with entries sorted by filename.
func (s *Store) Format() []byte {
	var b strings.Builder

	for _, name := range s.Names() {
		b.WriteString(s.digests[name])
		b.WriteString("  ")
		b.WriteString(name)
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

// Write persists the manifest to path.
func (s *Store) Write(path string, mode os.FileMode) error {
	if err := os.WriteFile(filepath.Clean(path), s.Format(), mode); err != nil {
		return fmt.Errorf("write checksum manifest: %w", err)
	}

	return nil
}

// FileDigest computes the hex SHA-256 digest of a file's contents.
func FileDigest(path string) (string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	return Digest(contents), nil
}

// Digest computes the hex SHA-256 digest of the provided bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateDigest(digest string) error {
	if len(digest) != DigestLength {
		return errBadDigest
	}

	if _, err := hex.DecodeString(digest); err != nil {
		return errBadDigest
	}

	return nil
}
