// Package vcs vendors git dependencies by cloning them and dropping the
// repository metadata.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/tsukinoko-kun/ziplock/logger"
	"github.com/tsukinoko-kun/ziplock/statusui"
	"github.com/tsukinoko-kun/ziplock/versionspec"
	"go.trai.ch/zerr"
)

var ErrRefNotFound = zerr.New("git ref not found")

var commitish = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)

type Archiver struct {
	shallow bool
}

type Option func(*Archiver)

// WithShallow toggles depth 1 fetches. Branches and tags are cloned at depth
// 1. A full commit id is fetched on its own when the remote allows it, and
// every other commit ref needs the full history.
func WithShallow(shallow bool) Option {
	return func(a *Archiver) {
		a.shallow = shallow
	}
}

func NewArchiver(opts ...Option) *Archiver {
	a := &Archiver{shallow: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchRepo materializes the repository named by rawSpec, checked out at its
// ref, into path without the .git directory. rawSpec is the manifest value
// verbatim, for example "git+https://host/repo.git#abc123".
func (a *Archiver) FetchRepo(ctx context.Context, rawSpec, path string) error {
	spec, err := versionspec.Classify(rawSpec)
	if err != nil {
		return err
	}
	ref, ok := spec.(versionspec.VcsRef)
	if !ok {
		return zerr.With(fmt.Errorf("%w: not a git spec: %s", versionspec.ErrUnrecognizedVersionSpec, rawSpec), "spec", rawSpec)
	}

	statusKey := "git:" + rawSpec
	statusui.Set(statusKey, statusui.TextStatus{Text: fmt.Sprintf("🔀 Cloning %s", rawSpec)})

	if err := a.fetch(ctx, ref, path); err != nil {
		if ctx.Err() != nil {
			statusui.Clear(statusKey)
		} else {
			statusui.Set(statusKey, statusui.ErrorStatus{Message: "Failed to clone " + rawSpec, Err: err})
		}
		return zerr.With(err, "spec", rawSpec)
	}

	statusui.Set(statusKey, statusui.SuccessStatus{Message: "Cloned " + rawSpec})
	statusui.Clear(statusKey)
	return nil
}

func (a *Archiver) fetch(ctx context.Context, ref versionspec.VcsRef, path string) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create target parent")
	}
	staging, err := os.MkdirTemp(parent, ".clone-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create staging dir")
	}
	defer os.RemoveAll(staging)

	if err := a.clone(ctx, ref, staging); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(staging, git.GitDirName)); err != nil {
		return zerr.Wrap(err, "failed to remove repository metadata")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create target")
	}
	return mergeInto(staging, path)
}

func (a *Archiver) clone(ctx context.Context, ref versionspec.VcsRef, dir string) error {
	opts := &git.CloneOptions{URL: ref.URL}

	if ref.Ref == "" {
		if a.shallow {
			opts.Depth = 1
		}
		opts.SingleBranch = true
		_, err := git.PlainCloneContext(ctx, dir, false, opts)
		return wrapClone(err, ref)
	}

	name, err := resolveRefName(ctx, ref)
	if err != nil {
		return err
	}
	if name != "" {
		opts.ReferenceName = name
		opts.SingleBranch = true
		if a.shallow {
			opts.Depth = 1
		}
		_, err := git.PlainCloneContext(ctx, dir, false, opts)
		return wrapClone(err, ref)
	}

	if a.shallow && plumbing.IsHash(ref.Ref) {
		err := fetchCommit(ctx, ref, dir)
		if err == nil || ctx.Err() != nil {
			return wrapClone(err, ref)
		}
		logger.L().Debug("commit fetch refused, cloning full history", "url", ref.URL, "commit", ref.Ref, "err", err)
		if err := resetDir(dir); err != nil {
			return err
		}
	}

	// a commit: full history, then check out the revision
	opts.NoCheckout = true
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return wrapClone(err, ref)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref.Ref))
	if err != nil {
		return fmt.Errorf("%w: %s in %s", ErrRefNotFound, ref.Ref, ref.URL)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return zerr.Wrap(err, "failed to open worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to check out commit"), "commit", hash.String())
	}
	return nil
}

// fetchCommit initializes dir and fetches only the commit ref.Ref names at
// depth 1. Remotes without allow-reachable-sha1-in-want refuse this.
func fetchCommit(ctx context.Context, ref versionspec.VcsRef, dir string) error {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return zerr.Wrap(err, "failed to init repository")
	}
	remote, err := repo.CreateRemote(&config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{ref.URL},
	})
	if err != nil {
		return zerr.Wrap(err, "failed to add remote")
	}
	hash := plumbing.NewHash(ref.Ref)
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{config.RefSpec(hash.String() + ":" + commitRef)},
		Depth:    1,
		Tags:     git.NoTags,
	})
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return zerr.Wrap(err, "failed to open worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to check out commit"), "commit", hash.String())
	}
	return nil
}

const commitRef = "refs/heads/ziplock"

// resetDir empties dir so a clone can start over in it.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return zerr.Wrap(err, "failed to reset staging dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerr.Wrap(err, "failed to reset staging dir")
	}
	return nil
}

// resolveRefName looks ref up among the remote's branches and tags. It
// returns an empty name when ref can only be a commit.
func resolveRefName(ctx context.Context, ref versionspec.VcsRef) (plumbing.ReferenceName, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{ref.URL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to list remote refs"), "url", ref.URL)
	}

	for _, r := range refs {
		n := r.Name()
		if !n.IsBranch() && !n.IsTag() {
			continue
		}
		if n.Short() == ref.Ref || n.String() == ref.Ref {
			return n, nil
		}
	}

	if commitish.MatchString(ref.Ref) {
		return "", nil
	}
	return "", fmt.Errorf("%w: %s in %s", ErrRefNotFound, ref.Ref, ref.URL)
}

func wrapClone(err error, ref versionspec.VcsRef) error {
	if err == nil {
		return nil
	}
	return zerr.With(zerr.Wrap(err, "failed to clone "+ref.URL), "url", ref.URL)
}

// mergeInto moves the entries of src into dst. Directories present on both
// sides are merged, anything else in dst with the same name is replaced.
func mergeInto(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())

		existing, err := os.Lstat(to)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return err
		case e.IsDir() && existing.IsDir():
			if err := mergeInto(from, to); err != nil {
				return err
			}
			continue
		default:
			if err := os.RemoveAll(to); err != nil {
				return err
			}
		}

		if err := os.Rename(from, to); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to move cloned entry"), "path", to)
		}
	}
	return nil
}
