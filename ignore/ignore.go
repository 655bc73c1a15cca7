// Package ignore builds gitignore style matchers for local package copies.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.trai.ch/zerr"
)

// FileName is read from the root of a local package when present.
const FileName = ".ziplockignore"

var ignoreDirs = []string{
	".git",
}

// New returns a matcher for root. It combines the always skipped
// directories, patterns and the lines of root/.ziplockignore.
func New(root string, patterns ...string) (gitignore.Matcher, error) {
	var ps []gitignore.Pattern
	for _, dir := range ignoreDirs {
		ps = append(ps, gitignore.ParsePattern(dir+"/", nil))
	}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" && !strings.HasPrefix(p, "#") {
			ps = append(ps, gitignore.ParsePattern(p, nil))
		}
	}

	fileLines, err := readIgnoreFile(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}
	for _, line := range fileLines {
		ps = append(ps, gitignore.ParsePattern(line, nil))
	}

	return gitignore.NewMatcher(ps), nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open ignore file"), "file", path)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read ignore file"), "file", path)
	}
	return lines, nil
}

// Match reports whether rel, a slash or OS separated path relative to the
// matcher's root, is excluded.
func Match(m gitignore.Matcher, rel string, isDir bool) bool {
	if m == nil || rel == "" || rel == "." {
		return false
	}
	return m.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}
