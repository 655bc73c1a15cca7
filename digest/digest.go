// Package digest fingerprints a vendored tree so two runs can be compared.
package digest

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// Tree returns a hex xxhash64 over every path, file type, permission and
// content below root. .git directories are skipped. Modification times do not
// contribute, so re-vendoring the same manifest yields the same digest.
func Tree(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to stat tree"), "root", root)
	}
	if !info.IsDir() {
		return "", zerr.With(fmt.Errorf("%s is not a directory", root), "root", root)
	}

	h := xxhash.New()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		writeField(h, []byte(filepath.ToSlash(rel)))
		var mode [4]byte
		binary.LittleEndian.PutUint32(mode[:], uint32(fi.Mode()&(fs.ModeType|fs.ModePerm)))
		writeField(h, mode[:])

		switch {
		case fi.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			writeField(h, []byte(link))
		case fi.Mode().IsRegular():
			return hashFile(h, path)
		}
		return nil
	})
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to digest tree"), "root", root)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// writeField length-prefixes b so adjacent fields can not run together.
func writeField(h *xxhash.Digest, b []byte) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

func hashFile(h *xxhash.Digest, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fh := xxhash.New()
	if _, err := io.Copy(fh, f); err != nil {
		return err
	}
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], fh.Sum64())
	writeField(h, sum[:])
	return nil
}
