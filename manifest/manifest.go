package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/tsukinoko-kun/jsonedit"
	"go.trai.ch/zerr"
)

var ErrManifestNotFound = zerr.New("manifest not found")

type Section uint8

const (
	SectionDependency Section = iota
	SectionDevDependency
)

// Sections lists every section in the order they are climbed.
var Sections = []Section{SectionDependency, SectionDevDependency}

func (s Section) String() string {
	switch s {
	case SectionDependency:
		return "dependencies"
	case SectionDevDependency:
		return "devDependencies"
	default:
		return fmt.Sprintf("Section(%d)", uint8(s))
	}
}

// Dir is the directory below the ziplock root that holds this section.
func (s Section) Dir() string {
	if s == SectionDevDependency {
		return "devDependencies"
	}
	return "node_modules"
}

// Dependency is one resolved entry. Its name is the key it is stored under.
type Dependency struct {
	Version      string                 `json:"version"`
	From         string                 `json:"from,omitempty"`
	Resolved     string                 `json:"resolved,omitempty"`
	Dependencies map[string]*Dependency `json:"dependencies,omitempty"`
}

type Manifest struct {
	fileLocation    string                 `json:"-"`
	Name            string                 `json:"name,omitempty"`
	Version         string                 `json:"version,omitempty"`
	Dependencies    map[string]*Dependency `json:"dependencies"`
	DevDependencies map[string]*Dependency `json:"devDependencies"`
}

func (m *Manifest) GetFileLocation() string {
	return m.fileLocation
}

func (m *Manifest) Section(s Section) map[string]*Dependency {
	if s == SectionDevDependency {
		return m.DevDependencies
	}
	return m.Dependencies
}

// Count returns the number of entries at every depth of both sections.
func (m *Manifest) Count() int {
	n := 0
	for _, s := range Sections {
		n += count(m.Section(s))
	}
	return n
}

func count(deps map[string]*Dependency) int {
	n := 0
	for _, dep := range deps {
		n++
		if dep != nil {
			n += count(dep.Dependencies)
		}
	}
	return n
}

var manifestFileName = []string{
	"ziplock.json",
	"npm-shrinkwrap.json",
}

func getManifestFilePath(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", zerr.With(zerr.Wrap(ErrManifestNotFound, root), "cause", err.Error())
	}
	if !info.IsDir() {
		return root, nil
	}
	for _, fileName := range manifestFileName {
		manifestFilePath := filepath.Join(root, fileName)
		if _, err := os.Stat(manifestFilePath); err == nil {
			return manifestFilePath, nil
		}
	}
	return "", zerr.With(zerr.Wrap(ErrManifestNotFound, root), "candidates", manifestFileName)
}

// Load reads a resolved manifest. path may name the file itself or a
// directory containing ziplock.json or npm-shrinkwrap.json.
func Load(path string) (*Manifest, error) {
	manifestFilePath, err := getManifestFilePath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(manifestFilePath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open manifest")
	}
	defer f.Close()
	return Decode(f, manifestFilePath)
}

// Decode parses a manifest from r. location is only used for reporting.
func Decode(r io.Reader, location string) (*Manifest, error) {
	m := &Manifest{fileLocation: location}
	doc, err := json.Parse(r, m)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse manifest"), "file", location)
	}
	m = doc.TypedData
	m.fileLocation = location
	return m, nil
}
