package registry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/tsukinoko-kun/disize"
	"github.com/tsukinoko-kun/ziplock/statusui"
	"go.trai.ch/zerr"
)

// cached returns the cache entry for info's tarball, downloading it first
// when it is missing or no longer matches the published checksum.
func (a *Archiver) cached(ctx context.Context, info VersionInfo, sum *checksum, statusKey string) (string, error) {
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return "", zerr.Wrap(err, "failed to create tarball cache")
	}
	cacheFile := filepath.Join(a.cacheDir, fmt.Sprintf("%x.tgz", sha256.Sum256([]byte(info.Dist.Tarball))))

	if _, err := os.Stat(cacheFile); err == nil {
		if sum == nil || sum.verifyFile(cacheFile) == nil {
			statusui.Set(statusKey, statusui.TextStatus{
				Text: fmt.Sprintf("📦 Using cached %s@%s", info.Name, info.Version),
			})
			return cacheFile, nil
		}
	}

	if err := a.download(ctx, info, sum, cacheFile, statusKey); err != nil {
		return "", err
	}
	return cacheFile, nil
}

// download streams info's tarball to dest, verifying sum on the way.
// dest is only replaced once the checksum matched.
func (a *Archiver) download(ctx context.Context, info VersionInfo, sum *checksum, dest string, statusKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.Dist.Tarball, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: tarball %s", ErrVersionNotPublished, info.Dist.Tarball)
		}
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	f, err := os.CreateTemp(filepath.Dir(dest), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := f.Name()
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	label := fmt.Sprintf("⬇️  Downloading %s@%s", info.Name, info.Version)
	var reader io.Reader = resp.Body
	if resp.ContentLength > 0 {
		statusui.Set(statusKey, statusui.ProgressStatus{Label: label, Total: resp.ContentLength})
		reader = &progressReader{
			reader:    resp.Body,
			statusKey: statusKey,
			label:     label,
			total:     resp.ContentLength,
		}
	} else {
		statusui.Set(statusKey, statusui.TextStatus{Text: label})
	}

	var w io.Writer = f
	h := sum.newHash()
	if h != nil {
		w = io.MultiWriter(f, h)
	}
	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("%w: %w", ErrBadArchive, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if h != nil {
		if err := sum.match(h.Sum(nil)); err != nil {
			return zerr.With(err, "tarball", info.Dist.Tarball)
		}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename download: %w", err)
	}
	return nil
}

// progressReader reports download progress to the status UI.
type progressReader struct {
	reader    io.Reader
	statusKey string
	label     string
	total     int64
	current   int64
	lastPrint int64
	mu        sync.Mutex
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.mu.Lock()
	pr.current += int64(n)
	// every 100KB or at completion
	shouldUpdate := pr.current-pr.lastPrint >= 100*disize.Kib || pr.current == pr.total || err == io.EOF
	if !shouldUpdate {
		pr.mu.Unlock()
		return n, err
	}
	pr.lastPrint = pr.current
	status := statusui.ProgressStatus{
		Label:   pr.label,
		Current: pr.current,
		Total:   pr.total,
	}
	pr.mu.Unlock()
	statusui.Set(pr.statusKey, status)
	return n, err
}
