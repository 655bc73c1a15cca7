package vendoring

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tsukinoko-kun/ziplock/manifest"
	"github.com/tsukinoko-kun/ziplock/tree"
)

// RootDir is the directory below the vendor root that holds the archive.
const RootDir = "ziplock"

// DefaultStrip drops the "package/" directory every npm tarball wraps its
// contents in.
const DefaultStrip = 1

// BuildTargetPath returns vendorRoot/ziplock/<section dir>/<prefix...>/<name>.
// Scoped names keep their slash and nest one level deeper.
func BuildTargetPath(vendorRoot string, section manifest.Section, prefix tree.PathPrefix, name string) string {
	parts := make([]string, 0, len(prefix)+4)
	parts = append(parts, vendorRoot, RootDir, section.Dir())
	for _, p := range prefix {
		parts = append(parts, filepath.FromSlash(p))
	}
	parts = append(parts, filepath.FromSlash(name))
	return filepath.Join(parts...)
}

// checkTarget refuses a target that does not sit strictly below its section
// directory.
func checkTarget(vendorRoot string, section manifest.Section, target string) error {
	root := filepath.Join(vendorRoot, RootDir, section.Dir())
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: target %s is outside %s", tree.ErrTreeIntegrity, target, root)
	}
	return nil
}
