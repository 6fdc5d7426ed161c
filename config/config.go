// Package config loads and saves the per-repository configuration
// stored in .pit/config.yaml.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"

	"github.com/t7a/pitvc/hasher"
	"github.com/t7a/pitvc/index"
)

// Dir is the repository metadata directory, relative to the root.
const Dir = ".pit"

// File is the configuration file name inside Dir.
const File = "config.yaml"

// Config is the complete repository configuration.
type Config struct {
	Index  IndexConfig `yaml:"index"`
	Ignore []string    `yaml:"ignore"`
}

// IndexConfig configures the index file and how it is read and written.
type IndexConfig struct {
	Path        string `yaml:"path"`
	Algo        string `yaml:"algo"`
	Format      string `yaml:"format"`
	Orientation string `yaml:"orientation"`
	Strict      bool   `yaml:"strict"`
	NoLock      bool   `yaml:"no_lock"`
}

// Default returns the configuration of a freshly created repository.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Path returns the location of the configuration file under root.
func Path(root string) string {
	return filepath.Join(root, Dir, File)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Index.Path = os.ExpandEnv(cfg.Index.Path)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to path, replacing any existing file
// atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0644)
}

// applyDefaults fills in zero-value fields.
func (c *Config) applyDefaults() {
	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(Dir, "index")
	}
	if c.Index.Algo == "" {
		c.Index.Algo = hasher.DefaultAlgo
	}
	if c.Index.Format == "" {
		c.Index.Format = string(index.Text)
	}
	if c.Index.Orientation == "" {
		c.Index.Orientation = index.ByName.String()
	}
	if c.Ignore == nil {
		c.Ignore = []string{Dir, ".git"}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	if _, err := hasher.New(c.Index.Algo); err != nil {
		return fmt.Errorf("index.algo: %w", err)
	}
	if _, err := index.ParseFormat(c.Index.Format); err != nil {
		return fmt.Errorf("index.format: %w", err)
	}
	if _, err := index.ParseOrientation(c.Index.Orientation); err != nil {
		return fmt.Errorf("index.orientation: %w", err)
	}
	return nil
}

// IndexPath returns the index file location for a repository rooted at
// root.
func (c *Config) IndexPath(root string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(root, c.Index.Path)
}

// Options returns the index.Options described by c for a repository
// rooted at root.  The caller supplies the file source.
func (c *Config) Options(root string, src index.Source) (opts index.Options, err error) {
	h, err := hasher.New(c.Index.Algo)
	if err != nil {
		return
	}
	format, err := index.ParseFormat(c.Index.Format)
	if err != nil {
		return
	}
	orient, err := index.ParseOrientation(c.Index.Orientation)
	if err != nil {
		return
	}
	opts = index.Options{
		Path:        c.IndexPath(root),
		Orientation: orient,
		Format:      format,
		Lock:        !c.Index.NoLock,
		Strict:      c.Index.Strict,
		Hasher:      h,
		Source:      src,
	}
	return
}
