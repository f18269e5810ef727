package marker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oshokin/dockhand/internal/semver"
)

// Repository defines persistence operations for the current workload version.
type Repository interface {
	Current(ctx context.Context) (string, error)
	Set(ctx context.Context, version string) error
}

// FileRepository persists the current version to a plain-text marker file:
// a single semantic version string, trailing newline stripped on read.
type FileRepository struct {
	// path is the filesystem location of the marker file.
	path string
	// mu protects concurrent access to the marker file.
	mu sync.Mutex
}

// ErrNotFound is returned when the marker file does not exist yet.
var ErrNotFound = errors.New("version marker not found")

// filePermissions keeps the marker writable by the owner and readable
// by everyone else. The version string is not a secret.
const filePermissions = 0o644

// NewFileRepository creates a repository that reads/writes the marker at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Current reads the version from disk and validates its form.
func (r *FileRepository) Current(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read version marker: %w", err)
	}

	version := strings.TrimSpace(string(contents))
	if _, err = semver.Parse(version); err != nil {
		return "", fmt.Errorf("version marker %s: %w", r.path, err)
	}

	return version, nil
}

// Set writes the version to disk. The write goes through a temporary file
// and rename so an interrupted run leaves the old or the new value.
func (r *FileRepository) Set(_ context.Context, version string) error {
	if _, err := semver.Parse(version); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".version-marker-*")
	if err != nil {
		return fmt.Errorf("stage version marker: %w", err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.WriteString(version + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("write version marker: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close version marker: %w", err)
	}

	if err = os.Chmod(tmpName, filePermissions); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("chmod version marker: %w", err)
	}

	if err = os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace version marker: %w", err)
	}

	return nil
}
