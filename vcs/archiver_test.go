package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsukinoko-kun/ziplock/versionspec"
)

// serve file:// URLs in process so the tests need no git binary
func init() {
	client.InstallProtocol("file", server.DefaultServer)
}

type fixtureRepo struct {
	url     string
	first   plumbing.Hash
	second  plumbing.Hash
	feature plumbing.Hash
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content, msg string) plumbing.Hash {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	h, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "ziplock", Email: "ziplock@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return h
}

// newFixtureRepo creates a repository with two commits on the default
// branch, a v1.0.0 tag on the first one and a feature branch.
func newFixtureRepo(t *testing.T) fixtureRepo {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "CoffeeScriptRedux")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	first := commitFile(t, repo, dir, "package.json", `{"version":"1.0.0"}`, "first")
	_, err = repo.CreateTag("v1.0.0", first, nil)
	require.NoError(t, err)
	second := commitFile(t, repo, dir, "package.json", `{"version":"2.0.0"}`, "second")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("feature"), Create: true}))
	feature := commitFile(t, repo, dir, "lib/feature.js", "feature", "feature")

	return fixtureRepo{
		url:     filepath.Join(dir, git.GitDirName),
		first:   first,
		second:  second,
		feature: feature,
	}
}

func readVersion(t *testing.T, dir string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	return string(b)
}

func TestFetchRepoRefs(t *testing.T) {
	fx := newFixtureRepo(t)

	tests := []struct {
		name        string
		ref         string
		wantVersion string
		wantFeature bool
	}{
		{"commit", fx.first.String(), `{"version":"1.0.0"}`, false},
		{"short commit", fx.second.String()[:7], `{"version":"2.0.0"}`, false},
		{"tag", "v1.0.0", `{"version":"1.0.0"}`, false},
		{"branch", "feature", `{"version":"2.0.0"}`, true},
		{"full branch name", "refs/heads/feature", `{"version":"2.0.0"}`, true},
	}

	a := NewArchiver(WithShallow(false))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "ziplock", "node_modules", "coffee-script-redux")
			raw := "git+file://" + filepath.ToSlash(fx.url) + "#" + tt.ref

			require.NoError(t, a.FetchRepo(context.Background(), raw, target))

			assert.Equal(t, tt.wantVersion, readVersion(t, target))
			assert.NoDirExists(t, filepath.Join(target, ".git"))
			if tt.wantFeature {
				assert.FileExists(t, filepath.Join(target, "lib", "feature.js"))
			} else {
				assert.NoFileExists(t, filepath.Join(target, "lib", "feature.js"))
			}

			entries, err := os.ReadDir(filepath.Dir(target))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "staging dir must be removed")
		})
	}
}

func TestFetchRepoShallowCommitFallsBack(t *testing.T) {
	fx := newFixtureRepo(t)
	a := NewArchiver()

	target := filepath.Join(t.TempDir(), "ziplock", "node_modules", "coffee-script-redux")
	raw := "git+file://" + filepath.ToSlash(fx.url) + "#" + fx.first.String()
	require.NoError(t, a.FetchRepo(context.Background(), raw, target))

	assert.Equal(t, `{"version":"1.0.0"}`, readVersion(t, target))
	assert.NoDirExists(t, filepath.Join(target, ".git"))
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchCommitNeedsRemoteSupport(t *testing.T) {
	fx := newFixtureRepo(t)
	ref := versionspec.VcsRef{URL: "file://" + filepath.ToSlash(fx.url), Ref: fx.second.String()}

	err := fetchCommit(context.Background(), ref, t.TempDir())
	require.ErrorIs(t, err, git.ErrExactSHA1NotSupported)
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("x"), 0o644))

	require.NoError(t, resetDir(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchRepoKeepsNestedTargets(t *testing.T) {
	fx := newFixtureRepo(t)
	target := filepath.Join(t.TempDir(), "coffee-script-redux")
	nested := filepath.Join(target, "coffee-script", "index.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("nested"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "package.json"), []byte("stale"), 0o644))

	a := NewArchiver(WithShallow(false))
	require.NoError(t, a.FetchRepo(context.Background(), "git+file://"+filepath.ToSlash(fx.url)+"#v1.0.0", target))

	assert.Equal(t, `{"version":"1.0.0"}`, readVersion(t, target))
	assert.FileExists(t, nested)
}

func TestFetchRepoUnknownRef(t *testing.T) {
	fx := newFixtureRepo(t)
	a := NewArchiver(WithShallow(false))

	for _, ref := range []string{"no-such-branch", "deadbeef"} {
		raw := "git+file://" + filepath.ToSlash(fx.url) + "#" + ref
		err := a.FetchRepo(context.Background(), raw, filepath.Join(t.TempDir(), "x"))
		require.ErrorIs(t, err, ErrRefNotFound, ref)
		assert.Contains(t, err.Error(), ref)
	}
}

func TestFetchRepoRejectsNonGitSpec(t *testing.T) {
	a := NewArchiver()
	err := a.FetchRepo(context.Background(), "1.2.3", t.TempDir())
	require.ErrorIs(t, err, versionspec.ErrUnrecognizedVersionSpec)
}

func TestFetchRepoUnreachable(t *testing.T) {
	a := NewArchiver(WithShallow(false))
	missing := filepath.ToSlash(filepath.Join(t.TempDir(), "missing", ".git"))
	err := a.FetchRepo(context.Background(), "git+file://"+missing+"#main", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
}

func TestMergeInto(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "a.js"), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.js"), []byte("new"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "lib", "b.js"), []byte("kept"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "index.js"), 0o755))

	require.NoError(t, mergeInto(src, dst))

	b, err := os.ReadFile(filepath.Join(dst, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	assert.FileExists(t, filepath.Join(dst, "lib", "a.js"))
	assert.FileExists(t, filepath.Join(dst, "lib", "b.js"))
}
