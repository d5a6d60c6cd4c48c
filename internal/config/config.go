package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reductor/goldensync/internal/converter"
	"github.com/reductor/goldensync/internal/digest"
)

// DefaultFile is the config file looked up in the working directory
const DefaultFile = "goldensync.yaml"

const (
	defaultResourceDir = "src/test/resources"
	defaultTimeout     = 2 * time.Minute
	macOSMscore        = "/Applications/MuseScore 4.app/Contents/MacOS/mscore"
)

// Config represents the complete goldensync configuration
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Converter ConverterConfig `yaml:"converter"`
	Sync      SyncConfig      `yaml:"sync"`
	Targets   []TargetConfig  `yaml:"targets"`
}

// PathsConfig configures the source asset and its bookkeeping files.
// Relative paths are resolved against Root.
type PathsConfig struct {
	Root     string `yaml:"root"`
	Source   string `yaml:"source"`
	HashFile string `yaml:"hash_file"`
	Backup   string `yaml:"backup"`
}

// ConverterConfig configures the external conversion tool
type ConverterConfig struct {
	Binary string `yaml:"binary"`
	// Timeout bounds each conversion. Unset means the default; 0 disables the limit.
	Timeout *time.Duration `yaml:"timeout"`
}

// SyncConfig configures regeneration behavior
type SyncConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Digest      string `yaml:"digest"`
}

// TargetConfig is one generated output
type TargetConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg.finish()
}

// Default returns the reference deployment: the golden-test score under
// src/test/resources converted to MIDI, MusicXML, PDF and PNG.
func Default() (*Config, error) {
	var cfg Config
	return cfg.finish()
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return Load(path)
}

func (c *Config) finish() (*Config, error) {
	c.expandEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Paths.Root = os.ExpandEnv(c.Paths.Root)
	c.Paths.Source = os.ExpandEnv(c.Paths.Source)
	c.Paths.HashFile = os.ExpandEnv(c.Paths.HashFile)
	c.Paths.Backup = os.ExpandEnv(c.Paths.Backup)
	c.Converter.Binary = os.ExpandEnv(c.Converter.Binary)
	for i := range c.Targets {
		c.Targets[i].Path = os.ExpandEnv(c.Targets[i].Path)
	}
}

// applyDefaults fills in zero-value fields with the reference deployment.
func (c *Config) applyDefaults() {
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.Source == "" {
		c.Paths.Source = filepath.Join(defaultResourceDir, "golden-test.mscz")
	}
	if c.Paths.HashFile == "" {
		c.Paths.HashFile = filepath.Join(filepath.Dir(c.Paths.Source), ".golden.hash")
	}
	if c.Paths.Backup == "" {
		c.Paths.Backup = filepath.Join(filepath.Dir(c.Paths.Source), ".mscbackup")
	}
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultBinary()
	}
	if c.Converter.Timeout == nil {
		timeout := defaultTimeout
		c.Converter.Timeout = &timeout
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 1
	}
	if c.Sync.Digest == "" {
		c.Sync.Digest = string(digest.SHA256)
	}
	if len(c.Targets) == 0 {
		c.Targets = defaultTargets(c.Paths.Source)
	}
}

func defaultBinary() string {
	if runtime.GOOS == "darwin" {
		return macOSMscore
	}
	return "mscore"
}

// defaultTargets places one output per format next to the source, sharing its base name.
func defaultTargets(source string) []TargetConfig {
	base := source[:len(source)-len(filepath.Ext(source))]
	return []TargetConfig{
		{Format: "midi", Path: base + ".mid"},
		{Format: "musicxml", Path: base + ".musicxml"},
		{Format: "pdf", Path: base + ".pdf"},
		{Format: "png", Path: base + ".png"},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source is required")
	}
	if c.Paths.HashFile == "" {
		return fmt.Errorf("paths.hash_file is required")
	}
	if c.Converter.Binary == "" {
		return fmt.Errorf("converter.binary is required")
	}
	if c.Converter.Timeout != nil && *c.Converter.Timeout < 0 {
		return fmt.Errorf("converter.timeout must not be negative: %s", *c.Converter.Timeout)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1: %d", c.Sync.Concurrency)
	}
	if _, err := digest.ParseAlgorithm(c.Sync.Digest); err != nil {
		return fmt.Errorf("sync.digest: %w", err)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	// Outputs must not collide with each other or with the files the engine owns
	seen := map[string]string{
		c.SourcePath():   "paths.source",
		c.HashFilePath(): "paths.hash_file",
	}
	for i, t := range c.Targets {
		if t.Format == "" {
			return fmt.Errorf("targets[%d].format is required", i)
		}
		if t.Path == "" {
			return fmt.Errorf("targets[%d].path is required", i)
		}
		resolved := c.resolve(t.Path)
		if other, dup := seen[resolved]; dup {
			return fmt.Errorf("targets[%d].path %s clashes with %s", i, t.Path, other)
		}
		seen[resolved] = fmt.Sprintf("targets[%d].path", i)
	}

	return nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Paths.Root, path)
}

// SourcePath returns the resolved source asset path
func (c *Config) SourcePath() string {
	return c.resolve(c.Paths.Source)
}

// HashFilePath returns the resolved hash record path
func (c *Config) HashFilePath() string {
	return c.resolve(c.Paths.HashFile)
}

// BackupPath returns the resolved editor backup path
func (c *Config) BackupPath() string {
	return c.resolve(c.Paths.Backup)
}

// ConverterTimeout returns the per-conversion limit; 0 means none
func (c *Config) ConverterTimeout() time.Duration {
	if c.Converter.Timeout == nil {
		return defaultTimeout
	}
	return *c.Converter.Timeout
}

// DigestAlgorithm returns the configured digest algorithm
func (c *Config) DigestAlgorithm() digest.Algorithm {
	return digest.Algorithm(c.Sync.Digest)
}

// ConversionTargets returns the targets with resolved output paths
func (c *Config) ConversionTargets() []converter.Target {
	targets := make([]converter.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		targets = append(targets, converter.Target{Format: t.Format, Path: c.resolve(t.Path)})
	}
	return targets
}
