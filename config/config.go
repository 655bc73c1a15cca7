// Package config loads ziplock's run configuration from ziplock.toml or
// ziplock.yaml. Every value has a usable default so a config file is optional.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig    = zerr.New("invalid configuration")
	ErrConfigReadFailed = zerr.New("failed to read config file")
)

const (
	DefaultRegistry    = "https://registry.npmjs.org"
	DefaultConcurrency = 16
)

type Timeouts struct {
	Registry time.Duration `toml:"registry" yaml:"registry"`
	VCS      time.Duration `toml:"vcs" yaml:"vcs"`
	Local    time.Duration `toml:"local" yaml:"local"`
}

type Config struct {
	fileLocation string

	// VendorRoot is the directory the ziplock/ archive is written below.
	VendorRoot string `toml:"vendor_root" yaml:"vendor_root"`
	// WorkspaceRoot resolves file: specs. Defaults to the parent of the working directory.
	WorkspaceRoot string `toml:"workspace_root" yaml:"workspace_root"`
	Registry      string `toml:"registry" yaml:"registry"`
	Manifest      string `toml:"manifest" yaml:"manifest"`
	// Concurrency bounds simultaneous archiver I/O. 0 means unbounded.
	Concurrency      int  `toml:"concurrency" yaml:"concurrency"`
	CleanupOnFailure bool `toml:"cleanup_on_failure" yaml:"cleanup_on_failure"`
	// CacheDir enables the tarball cache when set.
	CacheDir string `toml:"cache_dir" yaml:"cache_dir"`
	// Exclude holds gitignore patterns skipped when copying local packages.
	Exclude  []string `toml:"exclude" yaml:"exclude"`
	Timeouts Timeouts `toml:"timeouts" yaml:"timeouts"`
}

func (c *Config) GetFileLocation() string {
	return c.fileLocation
}

// Default returns the configuration used when no file is present, relative to pwd.
func Default(pwd string) *Config {
	return &Config{
		VendorRoot:    pwd,
		WorkspaceRoot: filepath.Dir(pwd),
		Registry:      DefaultRegistry,
		Manifest:      pwd,
		Concurrency:   DefaultConcurrency,
		Timeouts: Timeouts{
			Registry: 5 * time.Minute,
			VCS:      10 * time.Minute,
			Local:    2 * time.Minute,
		},
	}
}

var configFileName = []string{
	"ziplock.toml",
	"ziplock.yaml",
	"ziplock.yml",
}

func getConfigFilePath(root string) (string, bool) {
	for _, fileName := range configFileName {
		configFilePath := filepath.Join(root, fileName)
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, true
		}
	}
	return "", false
}

// Load reads the config file at path, or searches pwd for one when path is
// empty. Values missing from the file keep their defaults and relative paths
// are resolved against the file's directory.
func Load(path string, pwd string) (*Config, error) {
	c := Default(pwd)
	if path == "" {
		found, ok := getConfigFilePath(pwd)
		if !ok {
			return c, c.Validate()
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", ErrConfigReadFailed, err), "file", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, zerr.With(fmt.Errorf("%w: %w", ErrInvalidConfig, err), "file", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, zerr.With(fmt.Errorf("%w: %w", ErrInvalidConfig, err), "file", path)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}

	c.fileLocation = path
	c.resolvePaths(filepath.Dir(path))
	return c, c.Validate()
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.VendorRoot = abs(c.VendorRoot)
	c.WorkspaceRoot = abs(c.WorkspaceRoot)
	c.Manifest = abs(c.Manifest)
	c.CacheDir = abs(c.CacheDir)
}

func (c *Config) Validate() error {
	if c.VendorRoot == "" {
		return fmt.Errorf("%w: vendor_root is empty", ErrInvalidConfig)
	}
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("%w: workspace_root is empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Registry)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: registry %q is not an absolute URL", ErrInvalidConfig, c.Registry)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}
	if c.Timeouts.Registry <= 0 || c.Timeouts.VCS <= 0 || c.Timeouts.Local <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}
