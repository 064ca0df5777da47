package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corwinn/h3r-sub000/pkg/env"
	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/paths"
	"github.com/corwinn/h3r-sub000/pkg/resource"
	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

// Config holds the runtime settings of h3rvfs
type Config struct {
	LogLevel string `json:"log_level" yaml:"log_level"`
	// LogFile also writes the log to a dated file in the data directory.
	LogFile bool `json:"log_file" yaml:"log_file"`
	// GameDir is scanned for archives when Archives is empty.
	GameDir  string   `json:"game_dir" yaml:"game_dir"`
	Archives []string `json:"archives,omitempty" yaml:"archives,omitempty"`

	IORetries      int    `json:"io_retries" yaml:"io_retries"`
	IORetryDelayMs int    `json:"io_retry_delay_ms" yaml:"io_retry_delay_ms"`
	NameCharset    string `json:"name_charset" yaml:"name_charset"`
	// LookupCacheSize is the number of resolved names remembered; 0 disables the cache.
	LookupCacheSize int `json:"lookup_cache_size" yaml:"lookup_cache_size"`

	// Path of the loaded config file (not serialized)
	LoadedPath string `json:"-" yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:        "INFO",
		GameDir:         ".",
		IORetries:       stream.DefaultRetryPolicy.Attempts,
		IORetryDelayMs:  int(stream.DefaultRetryPolicy.Delay / time.Millisecond),
		NameCharset:     vfs.DefaultCharset,
		LookupCacheSize: resource.DefaultLookupCacheSize,
	}
}

// Load reads path (or config.json in the data directory when path is empty)
// over the defaults, then applies environment overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(paths.GetDataDir(), "config.json")
	}
	cfg := Default()
	cfg.LoadedPath = path

	if err := cfg.LoadFile(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		logger.Debug("No config found, using defaults", "path", path)
	} else {
		logger.Info("Loaded configuration", "path", path)
	}

	overrides, keys := env.ReadConfigOverrides()
	ApplyEnvOverrides(cfg, overrides, keys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overrides config with values from a JSON or YAML file, picked by
// extension.
func (c *Config) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if isYAML(path) {
		return yaml.NewDecoder(file).Decode(c)
	}
	return json.NewDecoder(file).Decode(c)
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	if c.IORetries < 1 {
		return fmt.Errorf("config: io_retries must be at least 1, got %d", c.IORetries)
	}
	if c.IORetryDelayMs < 0 {
		return fmt.Errorf("config: io_retry_delay_ms must not be negative, got %d", c.IORetryDelayMs)
	}
	if c.LookupCacheSize < 0 {
		return fmt.Errorf("config: lookup_cache_size must not be negative, got %d", c.LookupCacheSize)
	}
	return nil
}

// RetryPolicy is the file retry policy described by the config.
func (c *Config) RetryPolicy() stream.RetryPolicy {
	return stream.RetryPolicy{
		Attempts: c.IORetries,
		Delay:    time.Duration(c.IORetryDelayMs) * time.Millisecond,
	}
}

func (c *Config) Save() error {
	path := c.LoadedPath
	if path == "" {
		path = "config.json"
	}
	return c.SaveFile(path)
}

func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(file)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// keySet returns true if s is in list.
func keySet(list []string, s string) bool {
	for _, k := range list {
		if k == s {
			return true
		}
	}
	return false
}

// ApplyEnvOverrides applies environment-derived overrides to cfg (used at startup only).
// Only fields present in keys are applied, so env vars override file values per setting.
func ApplyEnvOverrides(cfg *Config, o env.ConfigOverrides, keys []string) {
	if keySet(keys, env.KeyLogLevel) {
		cfg.LogLevel = o.LogLevel
	}
	if keySet(keys, env.KeyLogFile) {
		cfg.LogFile = o.LogFile
	}
	if keySet(keys, env.KeyGameDir) {
		cfg.GameDir = o.GameDir
	}
	if keySet(keys, env.KeyArchives) {
		cfg.Archives = o.Archives
	}
	if keySet(keys, env.KeyIORetries) {
		cfg.IORetries = o.IORetries
	}
	if keySet(keys, env.KeyIORetryDelayMs) {
		cfg.IORetryDelayMs = o.IORetryDelayMs
	}
	if keySet(keys, env.KeyNameCharset) {
		cfg.NameCharset = o.NameCharset
	}
	if keySet(keys, env.KeyLookupCacheSize) {
		cfg.LookupCacheSize = o.LookupCacheSize
	}
}

// GetEnvOverrideKeys returns config keys that have environment variable overrides set.
func GetEnvOverrideKeys() []string {
	return env.OverrideKeys()
}
