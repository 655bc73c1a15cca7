// Package versionspec classifies the raw version strings found in a resolved
// manifest into the three sources ziplock knows how to vendor from.
package versionspec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/zerr"
)

var ErrUnrecognizedVersionSpec = zerr.New("unrecognized version spec")

type Kind uint8

const (
	KindSemver Kind = iota
	KindVcs
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindSemver:
		return "registry"
	case KindVcs:
		return "vcs"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Spec is implemented by Semver, VcsRef and LocalPath only.
type Spec interface {
	Kind() Kind
	String() string
	isSpec()
}

// Semver is a published registry version.
type Semver struct {
	Version string
	Parsed  *semver.Version
}

// VcsRef points at a git remote. Ref is empty for the default branch tip.
type VcsRef struct {
	Raw string
	URL string
	Ref string
}

// LocalPath is a directory in the workspace. RelativePath is relative to the
// workspace root unless it is absolute.
type LocalPath struct {
	RelativePath string
}

func (Semver) Kind() Kind    { return KindSemver }
func (VcsRef) Kind() Kind    { return KindVcs }
func (LocalPath) Kind() Kind { return KindLocal }

func (s Semver) String() string { return s.Version }

func (v VcsRef) String() string {
	if v.Ref == "" {
		return v.URL
	}
	return v.URL + "#" + v.Ref
}

func (l LocalPath) String() string { return "file:" + l.RelativePath }

func (Semver) isSpec()    {}
func (VcsRef) isSpec()    {}
func (LocalPath) isSpec() {}

// Resolve returns the absolute source directory of l.
func (l LocalPath) Resolve(workspaceRoot string) string {
	if filepath.IsAbs(l.RelativePath) {
		return filepath.Clean(l.RelativePath)
	}
	return filepath.Join(workspaceRoot, filepath.FromSlash(l.RelativePath))
}

var vcsPrefixes = []string{
	"git+",
	"git://",
	"git@",
}

var localPrefixes = []string{
	"file://",
	"file:",
}

var scpLike = regexp.MustCompile(`^git@[^:]+:`)

// Classify maps raw to a Spec. Git markers win over file markers, which win
// over semantic versions. It performs no I/O.
func Classify(raw string) (Spec, error) {
	spec := strings.TrimSpace(raw)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnrecognizedVersionSpec)
	}

	for _, prefix := range vcsPrefixes {
		if strings.HasPrefix(spec, prefix) {
			return classifyVcs(spec)
		}
	}

	for _, prefix := range localPrefixes {
		if rest, ok := strings.CutPrefix(spec, prefix); ok {
			return classifyLocal(spec, rest)
		}
	}

	v, err := semver.StrictNewVersion(strings.TrimPrefix(spec, "v"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedVersionSpec, raw)
	}
	return Semver{Version: spec, Parsed: v}, nil
}

func classifyVcs(spec string) (Spec, error) {
	url, ref, _ := strings.Cut(spec, "#")
	url = strings.TrimPrefix(url, "git+")
	if url == "" || url == "ssh://" || url == "git://" {
		return nil, fmt.Errorf("%w: %q has no remote", ErrUnrecognizedVersionSpec, spec)
	}
	if strings.HasPrefix(url, "git@") && !scpLike.MatchString(url) {
		return nil, fmt.Errorf("%w: %q is not a valid git remote", ErrUnrecognizedVersionSpec, spec)
	}
	return VcsRef{Raw: spec, URL: url, Ref: ref}, nil
}

func classifyLocal(spec, rest string) (Spec, error) {
	if strings.HasPrefix(rest, "/") {
		return LocalPath{RelativePath: filepath.ToSlash(filepath.Clean(rest))}, nil
	}
	rest = strings.TrimPrefix(rest, "../")
	rest = strings.TrimPrefix(rest, "./")
	if rest == "" || rest == "." || rest == ".." {
		return nil, fmt.Errorf("%w: %q has no path", ErrUnrecognizedVersionSpec, spec)
	}
	return LocalPath{RelativePath: rest}, nil
}
