package registry

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// extractArchive detects gzip or xz compression and falls back to a plain tar.
func extractArchive(archivePath string, opts ExtractOptions) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(len(xzMagic))

	var r io.Reader
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("%w: gzip reader: %w", ErrBadArchive, err)
		}
		defer gz.Close()
		r = gz
	case bytes.HasPrefix(magic, xzMagic):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return fmt.Errorf("%w: xz reader: %w", ErrBadArchive, err)
		}
		r = xzr
	default:
		r = br
	}

	return extractTar(r, opts)
}

func extractTar(r io.Reader, opts ExtractOptions) error {
	absDest, err := filepath.Abs(opts.Path)
	if err != nil {
		return fmt.Errorf("abs dest: %w", err)
	}
	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return fmt.Errorf("mkdir dest: %w", err)
	}

	tr := tar.NewReader(r)
	entries := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: tar read: %w", ErrBadArchive, err)
		}
		entries++
		if hdr.Name == "" || isMetadataHeader(hdr.Typeflag) {
			continue
		}

		normName, err := normalizeTarPath(hdr.Name)
		if err != nil {
			return fmt.Errorf("tar entry %q: %w", hdr.Name, err)
		}
		stripped, ok := stripComponents(normName, opts.Strip)
		if !ok {
			continue
		}

		target, err := secureJoin(absDest, stripped)
		if err != nil {
			return fmt.Errorf("path check %q: %w", hdr.Name, err)
		}

		fi := hdr.FileInfo()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fi.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}

		case tar.TypeReg, tar.TypeRegA:
			if err := writeFile(target, tr, fi.Mode().Perm()|0o600); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return fmt.Errorf("absolute symlink rejected: %s", hdr.Linkname)
			}
			if _, err := secureJoin(absDest, path.Join(path.Dir(stripped), hdr.Linkname)); err != nil {
				return fmt.Errorf("symlink %q: %w", hdr.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkparent: %w", err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink: %w", err)
			}

		case tar.TypeLink:
			linkName, err := normalizeTarPath(hdr.Linkname)
			if err != nil {
				return fmt.Errorf("hardlink linkname %q: %w", hdr.Linkname, err)
			}
			linkStripped, ok := stripComponents(linkName, opts.Strip)
			if !ok {
				return fmt.Errorf("hardlink target outside package root: %s", hdr.Linkname)
			}
			linkTarget, err := secureJoin(absDest, linkStripped)
			if err != nil {
				return fmt.Errorf("hardlink target: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkparent: %w", err)
			}
			_ = os.Remove(target)
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("hardlink: %w", err)
			}

		default:
			continue
		}
	}

	if entries == 0 {
		return fmt.Errorf("%w: archive is empty", ErrBadArchive)
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkparent: %w", err)
	}
	// read-only files from a previous run can not be truncated in place
	_ = os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("%w: write file: %w", ErrBadArchive, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// stripComponents drops the first n slash separated components of name.
// Entries that consist of n components or fewer are skipped.
func stripComponents(name string, n int) (string, bool) {
	if name == "" {
		return "", false
	}
	if n <= 0 {
		return name, true
	}
	parts := strings.SplitN(name, "/", n+1)
	if len(parts) <= n || parts[n] == "" {
		return "", false
	}
	return parts[n], true
}

func normalizeTarPath(name string) (string, error) {
	cleaned := strings.ReplaceAll(name, "\\", "/")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = path.Clean(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "./")

	if cleaned == "." {
		return "", nil
	}
	if strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("path escapes root: %q", name)
	}
	if strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("absolute path in archive: %q", name)
	}

	return cleaned, nil
}

func isMetadataHeader(t byte) bool {
	switch t {
	case tar.TypeXHeader,
		tar.TypeXGlobalHeader,
		tar.TypeGNULongName,
		tar.TypeGNULongLink:
		return true
	}
	return false
}

func secureJoin(base, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute path in archive: %q", name)
	}

	full := filepath.Join(base, clean)
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}

	if absFull == absBase {
		return absFull, nil
	}
	if !strings.HasPrefix(absFull, absBase+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes dest: %q", name)
	}
	return absFull, nil
}
