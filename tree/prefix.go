package tree

import (
	"fmt"
	"slices"
	"strings"
)

// PathPrefix is the chain of ancestor names from the manifest root down to a
// node. Root-level entries have an empty prefix.
type PathPrefix []string

func (p PathPrefix) String() string {
	return strings.Join(p, " -> ")
}

func (p PathPrefix) With(name string) PathPrefix {
	next := make(PathPrefix, len(p)+1)
	copy(next, p)
	next[len(p)] = name
	return next
}

func (p PathPrefix) Contains(name string) bool {
	return slices.Contains(p, name)
}

func (p PathPrefix) Err(err error) error {
	if len(p) == 0 {
		return err
	}
	return fmt.Errorf("%s: %w", p.String(), err)
}
