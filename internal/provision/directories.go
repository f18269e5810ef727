package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// DirectoryLayoutStep creates the agent's directory layout and
// unconditionally re-applies ownership and mode, so a prior run that left
// it correct, incorrect or partially created makes no difference.
type DirectoryLayoutStep struct {
	// Paths are the directories to ensure.
	Paths []string
	// Owner is the account that must own every path.
	Owner string
	// Mode is applied to every path.
	Mode os.FileMode

	commander Commander
}

// NewDirectoryLayoutStep builds the step.
func NewDirectoryLayoutStep(paths []string, owner string, mode os.FileMode, commander Commander) *DirectoryLayoutStep {
	return &DirectoryLayoutStep{
		Paths:     paths,
		Owner:     owner,
		Mode:      mode,
		commander: commander,
	}
}

// Name identifies the step.
func (s *DirectoryLayoutStep) Name() string {
	return "directory-layout"
}

// Detect reports Absent when any path is missing.
func (s *DirectoryLayoutStep) Detect(_ context.Context) (State, error) {
	for _, path := range s.Paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return StateAbsent, nil
			}

			return StateAbsent, err
		}
	}

	return StatePresent, nil
}

// Apply creates any missing directories.
func (s *DirectoryLayoutStep) Apply(_ context.Context) error {
	for _, path := range s.Paths {
		if err := os.MkdirAll(path, s.Mode); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	return nil
}

// Assert re-applies ownership and mode to every path on every run.
func (s *DirectoryLayoutStep) Assert(ctx context.Context) error {
	for _, path := range s.Paths {
		if err := os.Chmod(path, s.Mode); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}

		if s.Owner == "" {
			continue
		}

		if _, err := s.commander.Run(ctx, "chown", s.Owner+":"+s.Owner, path); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
	}

	return nil
}
