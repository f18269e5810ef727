package gitref

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// newTaggedRepository creates a local repository with the provided tags.
func newTaggedRepository(t *testing.T, tags ...string) string {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("demo\n"), 0o644))

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	_, err = worktree.Add("README.md")
	require.NoError(t, err)

	commit, err := worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "tester",
			Email: "tester@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	for _, tag := range tags {
		_, err = repo.CreateTag(tag, commit, nil)
		require.NoError(t, err)
	}

	return dir
}

// TestListRemoteTags lists tags of a local repository without cloning.
func TestListRemoteTags(t *testing.T) {
	t.Parallel()

	dir := newTaggedRepository(t, "1.0.0", "1.2.0", "nightly")

	tags, err := ListRemoteTags(context.Background(), dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1.0.0", "1.2.0", "nightly"}, tags)
}

// TestLatestVersion applies numeric ordering and the v-prefix tolerance.
func TestLatestVersion(t *testing.T) {
	t.Parallel()

	dir := newTaggedRepository(t, "1.2.3", "v1.10.0", "1.9.9", "nightly")

	latest, err := LatestVersion(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, "1.10.0", latest)
}

// TestLatestVersionNoConformingTags surfaces an error instead of a zero value.
func TestLatestVersionNoConformingTags(t *testing.T) {
	t.Parallel()

	dir := newTaggedRepository(t, "nightly", "rc")

	_, err := LatestVersion(context.Background(), dir)
	require.Error(t, err)
}

// TestListRemoteTagsRequiresURL rejects an empty remote.
func TestListRemoteTagsRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := ListRemoteTags(context.Background(), "")
	require.Error(t, err)
}
