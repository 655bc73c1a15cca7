package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.trai.ch/zerr"
)

// VersionInfo is the subset of an npm version document ziplock needs.
type VersionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Id      string `json:"_id"`
	Dist    dist   `json:"dist"`
}

type dist struct {
	Shasum       string      `json:"shasum"`
	Tarball      string      `json:"tarball"`
	FileCount    int         `json:"fileCount"`
	Integrity    string      `json:"integrity"`
	Signatures   []signature `json:"signatures"`
	UnpackedSize uint        `json:"unpackedSize"`
}

type signature struct {
	Sig   string `json:"sig"`
	Keyid string `json:"keyid"`
}

// versionURL builds <base>/<name>/<version>. Scoped names keep their slash
// escaped the way the npm registry expects.
func (a *Archiver) versionURL(name, version string) (string, error) {
	escaped := name
	if strings.HasPrefix(name, "@") {
		escaped = strings.Replace(name, "/", "%2f", 1)
	}
	u, err := url.Parse(a.baseURL + "/" + escaped + "/" + url.PathEscape(version))
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "invalid registry url"), "registry", a.baseURL)
	}
	return u.String(), nil
}

// VersionInfo fetches the registry document for exactly name@version.
func (a *Archiver) VersionInfo(ctx context.Context, name, version string) (VersionInfo, error) {
	u, err := a.versionURL(name, version)
	if err != nil {
		return VersionInfo{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return VersionInfo{}, fmt.Errorf("%w: %s@%s", ErrVersionNotPublished, name, version)
	case resp.StatusCode != http.StatusOK:
		return VersionInfo{}, fmt.Errorf("bad status: %s", resp.Status)
	}

	var info VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return VersionInfo{}, zerr.With(zerr.Wrap(err, "failed to decode version document"), "url", u)
	}
	if info.Dist.Tarball == "" {
		return VersionInfo{}, fmt.Errorf("%w: %s@%s has no tarball", ErrVersionNotPublished, name, version)
	}
	return info, nil
}
