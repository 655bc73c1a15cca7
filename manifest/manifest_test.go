package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "ziplock.json"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "ziplock.json"), m.GetFileLocation())
	assert.Equal(t, "chroma-ui", m.Name)
	require.Len(t, m.Dependencies, 3)
	require.Len(t, m.DevDependencies, 4)
	assert.Equal(t, "2.0.5", m.Dependencies["primus-emitter"].Version)

	stealth := m.DevDependencies["jasmine-stealth"]
	require.NotNil(t, stealth)
	assert.Equal(t, "1.6.3", stealth.Dependencies["coffee-script"].Version)
	assert.Equal(t, 9, m.Count())
}

func TestLoadDirectory(t *testing.T) {
	m, err := Load("testdata")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "ziplock.json"), m.GetFileLocation())
}

func TestLoadPrefersZiplockOverShrinkwrap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "npm-shrinkwrap.json"), []byte(`{"dependencies":{}}`), 0o644))
	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "npm-shrinkwrap.json"), m.GetFileLocation())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ziplock.json"), []byte(`{"dependencies":{}}`), 0o644))
	m, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ziplock.json"), m.GetFileLocation())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	require.ErrorIs(t, err, ErrManifestNotFound)

	_, err = Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrManifestNotFound)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"dependencies": [`), "broken.json")
	require.Error(t, err)
}

func TestSection(t *testing.T) {
	assert.Equal(t, "node_modules", SectionDependency.Dir())
	assert.Equal(t, "devDependencies", SectionDevDependency.Dir())
	assert.Equal(t, "dependencies", SectionDependency.String())
	assert.Equal(t, "devDependencies", SectionDevDependency.String())

	m := &Manifest{
		Dependencies:    map[string]*Dependency{"a": {Version: "1.0.0"}},
		DevDependencies: map[string]*Dependency{"b": {Version: "1.0.0"}},
	}
	assert.Contains(t, m.Section(SectionDependency), "a")
	assert.Contains(t, m.Section(SectionDevDependency), "b")
}
