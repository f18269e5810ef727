package gitref

import (
	"context"
	"errors"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/oshokin/dockhand/internal/semver"
)

// errRepositoryURLRequired is returned when no remote URL is provided.
var errRepositoryURLRequired = errors.New("repository URL must be provided")

// ListRemoteTags returns the short tag names advertised by a Git remote
// without cloning it.
func ListRemoteTags(ctx context.Context, repositoryURL string) ([]string, error) {
	if repositoryURL == "" {
		return nil, errRepositoryURLRequired
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repositoryURL},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list remote refs for %s: %w", repositoryURL, err)
	}

	tags := make([]string, 0, len(refs))

	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}

	return tags, nil
}

// LatestVersion selects the highest semantic version among the remote's tags.
// A single leading "v" is tolerated; anything else outside MAJOR.MINOR.PATCH
// is excluded from consideration.
func LatestVersion(ctx context.Context, repositoryURL string) (string, error) {
	tags, err := ListRemoteTags(ctx, repositoryURL)
	if err != nil {
		return "", err
	}

	candidates := make([]string, 0, len(tags))
	for _, tag := range tags {
		candidates = append(candidates, strings.TrimPrefix(tag, "v"))
	}

	latest, err := semver.Latest(candidates)
	if err != nil {
		return "", fmt.Errorf("latest tag of %s: %w", repositoryURL, err)
	}

	return latest, nil
}
