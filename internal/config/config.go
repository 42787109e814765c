package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	Root           string    `yaml:"root"             json:"root"`
	ExcludeNames   []string  `yaml:"exclude_names"    json:"exclude_names"`
	DataDir        string    `yaml:"data_dir"         json:"-"`
	DBPath         string    `yaml:"db_path"          json:"-"`
	HTTPAddr       string    `yaml:"http_addr"        json:"-"`
	Schedule       string    `yaml:"schedule"         json:"schedule"`
	SchedulePaused bool      `yaml:"schedule_paused"  json:"schedule_paused"`
	LogLevel       string    `yaml:"log_level"        json:"-"`
	LogFormat      string    `yaml:"log_format"       json:"-"`
	MinFreeBytes   uint64    `yaml:"min_free_bytes"   json:"min_free_bytes"`
	Pipeline       Pipeline  `yaml:"pipeline"         json:"pipeline"`
	MediaTool      MediaTool `yaml:"media_tool"       json:"media_tool"`
	Optimize       Optimize  `yaml:"optimize"         json:"optimize"`
}

// Pipeline controls which stages the default run includes.
type Pipeline struct {
	// Optimize is a pointer so an explicit "false" survives applyDefaults.
	Optimize *bool `yaml:"optimize" json:"optimize"`
}

// MediaTool locates the external transcoder.
type MediaTool struct {
	// BundledDir is searched before PATH. Relative paths are resolved
	// against the executable's directory.
	BundledDir string `yaml:"bundled_dir" json:"bundled_dir"`
	Binary     string `yaml:"binary"      json:"binary"`
}

// Optimize holds knobs for the image re-encoder.
type Optimize struct {
	MaxDimension int `yaml:"max_dimension" json:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality"  json:"jpeg_quality"`
}

// DefaultMinFreeBytes is the free-space floor for stages that write
// transcoded output.
const DefaultMinFreeBytes = 100 * 1024 * 1024

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.ExcludeNames == nil {
		c.ExcludeNames = []string{"logs"}
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "orgest.db")
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.MinFreeBytes == 0 {
		c.MinFreeBytes = DefaultMinFreeBytes
	}
	if c.Pipeline.Optimize == nil {
		on := true
		c.Pipeline.Optimize = &on
	}
	if c.MediaTool.BundledDir == "" {
		c.MediaTool.BundledDir = filepath.Join("ffmpeg", "bin")
	}
	if c.MediaTool.Binary == "" {
		c.MediaTool.Binary = "ffmpeg"
	}
	if c.Optimize.MaxDimension == 0 {
		c.Optimize.MaxDimension = 5000
	}
	if c.Optimize.JPEGQuality == 0 {
		c.Optimize.JPEGQuality = 85
	}
}

// Validate reports settings that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Optimize.MaxDimension < 1 {
		errs = append(errs, fmt.Errorf("optimize.max_dimension must be positive, got %d", c.Optimize.MaxDimension))
	}
	if c.Optimize.JPEGQuality < 1 || c.Optimize.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("optimize.jpeg_quality must be in 1..100, got %d", c.Optimize.JPEGQuality))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// OptimizeEnabled reports whether the default pipeline includes the
// optimize stage.
func (c *Config) OptimizeEnabled() bool {
	return c.Pipeline.Optimize == nil || *c.Pipeline.Optimize
}

// LockDir is where per-root run locks live.
func (c *Config) LockDir() string {
	return filepath.Join(c.DataDir, "locks")
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the CLI
// works without any config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

// DefaultPath is the config file looked up when no --config flag is given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "orgest", "config.yaml")
	}
	return "config.yaml"
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "orgest")
	}
	return ".orgest"
}
