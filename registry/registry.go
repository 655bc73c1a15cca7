// Package registry downloads published package tarballs from an npm
// compatible registry and extracts them into the vendor tree.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tsukinoko-kun/ziplock/statusui"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

var (
	ErrVersionNotPublished = zerr.New("version not published")
	ErrChecksumMismatch    = zerr.New("checksum mismatch")
	ErrBadArchive          = zerr.New("corrupt or incomplete archive")
)

// ExtractOptions controls where a tarball lands. Strip leading path
// components are dropped from every archived entry.
type ExtractOptions struct {
	Path  string
	Strip int
}

// DefaultDownloadTimeout bounds a cached download that several callers share.
const DefaultDownloadTimeout = 5 * time.Minute

type Archiver struct {
	baseURL         string
	client          *http.Client
	cacheDir        string
	downloadTimeout time.Duration
	downloads       singleflight.Group
}

type Option func(*Archiver)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Archiver) {
		a.client = c
	}
}

// WithCacheDir keeps downloaded tarballs in dir and reuses them on later runs.
func WithCacheDir(dir string) Option {
	return func(a *Archiver) {
		a.cacheDir = dir
	}
}

// WithDownloadTimeout replaces DefaultDownloadTimeout.
func WithDownloadTimeout(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.downloadTimeout = d
		}
	}
}

func NewArchiver(baseURL string, opts ...Option) *Archiver {
	// body read deadline comes from the caller's context
	a := &Archiver{
		baseURL:         strings.TrimRight(baseURL, "/"),
		client:          &http.Client{Timeout: 0},
		downloadTimeout: DefaultDownloadTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchTarball downloads name@version and extracts it below opts.Path.
// Existing files are overwritten, nothing is removed.
func (a *Archiver) FetchTarball(ctx context.Context, name, version string, opts ExtractOptions) error {
	statusKey := fmt.Sprintf("npm:%s@%s", name, version)

	info, err := a.VersionInfo(ctx, name, version)
	if err != nil {
		a.fail(ctx, statusKey, fmt.Sprintf("Failed to resolve %s@%s", name, version), err)
		return err
	}

	archive, cleanup, err := a.obtain(ctx, info, statusKey)
	if err != nil {
		a.fail(ctx, statusKey, fmt.Sprintf("Failed to download %s@%s", name, version), err)
		return err
	}
	defer cleanup()

	statusui.Set(statusKey, statusui.TextStatus{
		Text: fmt.Sprintf("📦 Extracting %s@%s", name, version),
	})
	if err := extractArchive(archive, opts); err != nil {
		a.fail(ctx, statusKey, fmt.Sprintf("Failed to extract %s@%s", name, version), err)
		return err
	}

	statusui.Set(statusKey, statusui.SuccessStatus{
		Message: fmt.Sprintf("Extracted %s@%s", name, version),
	})
	go func(ctx context.Context, key string) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
		}
		statusui.Clear(key)
	}(context.WithoutCancel(ctx), statusKey)

	return nil
}

func (a *Archiver) fail(ctx context.Context, statusKey, message string, err error) {
	if ctx.Err() != nil {
		statusui.Clear(statusKey)
		return
	}
	statusui.Set(statusKey, statusui.ErrorStatus{Message: message, Err: err})
}

// obtain returns a local path of the verified tarball and a cleanup func.
func (a *Archiver) obtain(ctx context.Context, info VersionInfo, statusKey string) (string, func(), error) {
	sum, err := parseChecksum(info.Dist.Integrity, info.Dist.Shasum)
	if err != nil {
		return "", nil, err
	}

	if a.cacheDir != "" {
		// the download outlives any single caller sharing it
		ch := a.downloads.DoChan(info.Dist.Tarball, func() (any, error) {
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.downloadTimeout)
			defer cancel()
			return a.cached(dctx, info, sum, statusKey)
		})
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				return "", nil, r.Err
			}
			return r.Val.(string), func() {}, nil
		}
	}

	tmp, err := os.CreateTemp("", "ziplock-*.tgz")
	if err != nil {
		return "", nil, zerr.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	cleanup := func() { os.Remove(tmpPath) }

	if err := a.download(ctx, info, sum, tmpPath, statusKey); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmpPath, cleanup, nil
}
