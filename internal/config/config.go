// Package config loads ftracer.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "ftracer.toml"

const (
	DefaultCassettesDir = "./cassettes"
	DefaultCassetteName = "A.tape"
	DefaultIndexDB      = ".ftracer/index.db"
	DefaultDedup        = "identity"
	DefaultLogLevel     = "info"
)

// Config holds the settings shared by the CLI commands. Relative paths are
// resolved against Root.
type Config struct {
	CassettesDir string   `toml:"cassettes_dir"`
	CassetteName string   `toml:"cassette_name"`
	IndexDB      string   `toml:"index_db"`
	Dedup        string   `toml:"dedup"`
	Step         bool     `toml:"step"`
	Filter       string   `toml:"filter"`
	LogLevel     string   `toml:"log_level"`
	Watch        []string `toml:"watch"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
	// Root is the directory relative paths are resolved against.
	Root string `toml:"-"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		CassettesDir: DefaultCassettesDir,
		CassetteName: DefaultCassetteName,
		IndexDB:      DefaultIndexDB,
		Dedup:        DefaultDedup,
		LogLevel:     DefaultLogLevel,
		Root:         dir,
	}
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("config: resolve %s: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("config: stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest FileName above startDir, or the defaults rooted
// at startDir when there is none.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		abs, err := filepath.Abs(startDir)
		if err != nil {
			return nil, fmt.Errorf("config: resolve %s: %w", startDir, err)
		}
		return Default(abs), nil
	}
	return Load(path)
}

// Load reads the config at path. Keys missing from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	cfg := Default(filepath.Dir(abs))
	meta, err := toml.DecodeFile(abs, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %s: parse: %w", abs, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: %s: unknown keys: %s", abs, strings.Join(keys, ", "))
	}
	if meta.IsDefined("cassettes_dir") && strings.TrimSpace(cfg.CassettesDir) == "" {
		return nil, fmt.Errorf("config: %s: cassettes_dir is empty", abs)
	}
	if meta.IsDefined("cassette_name") && strings.TrimSpace(cfg.CassetteName) == "" {
		return nil, fmt.Errorf("config: %s: cassette_name is empty", abs)
	}
	cfg.Path = abs
	return cfg, nil
}

// Resolve returns p joined to Root unless it is already absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// CassettesPath returns the absolute cassettes directory.
func (c *Config) CassettesPath() string {
	return c.Resolve(c.CassettesDir)
}

// CassettePath returns the default cassette file path.
func (c *Config) CassettePath() string {
	return filepath.Join(c.CassettesPath(), c.CassetteName)
}

// IndexDBPath returns the absolute index database path.
func (c *Config) IndexDBPath() string {
	return c.Resolve(c.IndexDB)
}

// WatchPaths returns the configured watch paths resolved against Root.
func (c *Config) WatchPaths() []string {
	out := make([]string, len(c.Watch))
	for i, p := range c.Watch {
		out[i] = c.Resolve(p)
	}
	return out
}

// EnsureCassettesDir creates the cassettes directory if needed and returns
// its path.
func (c *Config) EnsureCassettesDir() (string, error) {
	dir := c.CassettesPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureIndexDir creates the parent directory of the index database.
func (c *Config) EnsureIndexDir() (string, error) {
	path := c.IndexDBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("config: create %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}
