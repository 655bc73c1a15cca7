// Package tree walks a resolved manifest and fans out one operation per node.
package tree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tsukinoko-kun/ziplock/async"
	"github.com/tsukinoko-kun/ziplock/manifest"
	"go.trai.ch/zerr"
)

var ErrTreeIntegrity = zerr.New("tree integrity violation")

// Visitor is called once per node. It must not block on the node's I/O; it
// returns a Completion for it instead. A nil Completion counts as resolved.
type Visitor func(ctx context.Context, section manifest.Section, name, versionSpec string, prefix PathPrefix) *async.Completion

// Climb visits every entry of both sections at every depth and returns a
// Completion that resolves once all visitor operations resolved. It rejects
// with the first failure observed; operations already started keep running
// until the returned Completion's Settled channel closes.
func Climb(ctx context.Context, m *manifest.Manifest, visit Visitor) *async.Completion {
	if m == nil {
		return async.Rejected(fmt.Errorf("%w: manifest is nil", ErrTreeIntegrity))
	}
	var ops []*async.Completion
	for _, section := range manifest.Sections {
		ops = climb(ctx, section, m.Section(section), nil, visit, ops)
	}
	return async.All(ops...)
}

func climb(
	ctx context.Context,
	section manifest.Section,
	deps map[string]*manifest.Dependency,
	prefix PathPrefix,
	visit Visitor,
	ops []*async.Completion,
) []*async.Completion {
	for name, dep := range deps {
		if err := checkNode(name, dep, prefix); err != nil {
			ops = append(ops, async.Rejected(prefix.Err(err)))
			continue
		}

		ops = append(ops, visit(ctx, section, name, dep.Version, prefix))

		if len(dep.Dependencies) > 0 {
			ops = climb(ctx, section, dep.Dependencies, prefix.With(name), visit, ops)
		}
	}
	return ops
}

func checkNode(name string, dep *manifest.Dependency, prefix PathPrefix) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: entry without a name", ErrTreeIntegrity)
	case !validName(name):
		return fmt.Errorf("%w: invalid package name %q", ErrTreeIntegrity, name)
	case dep == nil:
		return fmt.Errorf("%w: %s has no entry", ErrTreeIntegrity, name)
	case dep.Version == "":
		return fmt.Errorf("%w: %s has no version", ErrTreeIntegrity, name)
	case prefix.Contains(name):
		return fmt.Errorf("%w: %s depends on itself", ErrTreeIntegrity, prefix.With(name))
	}
	return nil
}

// validName accepts a plain name or a single @scope/name pair. Anything that
// could leave the parent directory is refused.
func validName(name string) bool {
	if filepath.IsAbs(name) || strings.ContainsAny(name, "\\:") {
		return false
	}
	parts := strings.Split(name, "/")
	if len(parts) > 2 || (len(parts) == 2 && !strings.HasPrefix(name, "@")) {
		return false
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return false
		}
	}
	return true
}
