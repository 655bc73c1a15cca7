// Package localdir vendors file: dependencies by copying a directory of the
// workspace into the vendor tree.
package localdir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsukinoko-kun/ziplock/ignore"
	"github.com/tsukinoko-kun/ziplock/statusui"
	"go.trai.ch/zerr"
)

var ErrSourceNotFound = zerr.New("local package source not found")

type Copier struct {
	excludes []string
}

// NewCopier returns a Copier that skips paths matching any of the
// gitignore style excludes.
func NewCopier(excludes ...string) *Copier {
	return &Copier{excludes: excludes}
}

// CopyLocal recursively copies source into target, creating target.
// Files already in target are overwritten, nothing is removed.
func (c *Copier) CopyLocal(ctx context.Context, source, target string) error {
	absSource, err := filepath.Abs(source)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to resolve local source"), "source", source)
	}

	fi, err := os.Stat(absSource)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return zerr.With(fmt.Errorf("%w: %s", ErrSourceNotFound, absSource), "source", absSource)
	case err != nil:
		return zerr.With(zerr.Wrap(err, "failed to stat local source"), "source", absSource)
	case !fi.IsDir():
		return zerr.With(fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, absSource), "source", absSource)
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to resolve target"), "target", target)
	}
	if absTarget == absSource || strings.HasPrefix(absTarget, absSource+string(os.PathSeparator)) {
		return zerr.With(fmt.Errorf("target %s is inside source %s", absTarget, absSource), "source", absSource)
	}

	matcher, err := ignore.New(absSource, c.excludes...)
	if err != nil {
		return err
	}

	statusKey := "local:" + absSource
	statusui.Set(statusKey, statusui.TextStatus{Text: fmt.Sprintf("📁 Copying %s", absSource)})
	defer statusui.Clear(statusKey)

	if err := os.MkdirAll(absTarget, fi.Mode().Perm()|0o700); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create target"), "target", absTarget)
	}

	err = filepath.WalkDir(absSource, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(absSource, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if ignore.Match(matcher, rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dest := filepath.Join(absTarget, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(dest, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			return copySymlink(path, dest)
		case info.Mode().IsRegular():
			return copyFile(path, dest, info.Mode().Perm())
		default:
			// sockets, devices and pipes have no place in a vendor tree
			return nil
		}
	})
	if err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, "failed to copy local package"), "source", absSource), "target", absTarget)
	}
	return nil
}

func copyFile(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// read-only files from a previous run can not be truncated in place
	_ = os.Remove(dest)
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// the umask may have narrowed perm
	return os.Chmod(dest, perm)
}

func copySymlink(src, dest string) error {
	link, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if filepath.IsAbs(link) {
		return fmt.Errorf("absolute symlink %s -> %s", src, link)
	}
	_ = os.Remove(dest)
	return os.Symlink(link, dest)
}
