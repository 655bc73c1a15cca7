package registry

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

type checksumFormat uint8

const (
	checksumSha1 checksumFormat = iota
	checksumSha256
	checksumSha512
)

type checksum struct {
	format checksumFormat
	want   []byte
}

// parseChecksum picks the strongest digest npm published for a version.
// It returns nil when neither integrity nor shasum is present.
func parseChecksum(integrity, shasum string) (*checksum, error) {
	var best *checksum
	for _, entry := range strings.Fields(integrity) {
		algo, encoded, ok := strings.Cut(entry, "-")
		if !ok {
			continue
		}
		var format checksumFormat
		switch algo {
		case "sha512":
			format = checksumSha512
		case "sha256":
			format = checksumSha256
		case "sha1":
			format = checksumSha1
		default:
			continue
		}
		if best != nil && best.format >= format {
			continue
		}
		// drop integrity options like "?foo"
		encoded, _, _ = strings.Cut(encoded, "?")
		want, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("integrity %q: %w", entry, err)
		}
		c := &checksum{format: format, want: want}
		if len(want) != c.size() {
			return nil, fmt.Errorf("integrity %q: expected %d bytes, got %d", entry, c.size(), len(want))
		}
		best = c
	}
	if best != nil {
		return best, nil
	}

	if shasum != "" {
		want, err := hex.DecodeString(strings.TrimSpace(shasum))
		if err != nil || len(want) != sha1.Size {
			return nil, fmt.Errorf("shasum %q is not a sha1 hex digest", shasum)
		}
		return &checksum{format: checksumSha1, want: want}, nil
	}
	return nil, nil
}

func (c *checksum) size() int {
	switch c.format {
	case checksumSha512:
		return sha512.Size
	case checksumSha256:
		return sha256.Size
	default:
		return sha1.Size
	}
}

// newHash returns nil for a nil checksum.
func (c *checksum) newHash() hash.Hash {
	if c == nil {
		return nil
	}
	switch c.format {
	case checksumSha512:
		return sha512.New()
	case checksumSha256:
		return sha256.New()
	default:
		return sha1.New()
	}
}

func (c *checksum) match(got []byte) error {
	if subtle.ConstantTimeCompare(c.want, got) != 1 {
		return fmt.Errorf("%w: want %x, got %x", ErrChecksumMismatch, c.want, got)
	}
	return nil
}

func (c *checksum) verifyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := c.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	return c.match(h.Sum(nil))
}
