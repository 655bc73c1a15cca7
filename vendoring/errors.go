package vendoring

import (
	"fmt"

	"github.com/tsukinoko-kun/ziplock/manifest"
	"github.com/tsukinoko-kun/ziplock/tree"
	"go.trai.ch/zerr"
)

var ErrVendorFetch = zerr.New("failed to vendor package")

// FetchError describes one node that could not be vendored. It matches both
// ErrVendorFetch and its cause with errors.Is.
type FetchError struct {
	Section manifest.Section
	Prefix  tree.PathPrefix
	Name    string
	Spec    string
	Path    string
	Err     error
}

func (e *FetchError) Error() string {
	pkg := e.Name
	if len(e.Prefix) > 0 {
		pkg = e.Prefix.With(e.Name).String()
	}
	return fmt.Sprintf("%s %s@%s: %v", ErrVendorFetch.Error(), pkg, e.Spec, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrVendorFetch, e.Err}
}
