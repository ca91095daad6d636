package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Environment variable names for conversion configuration.
const (
	EnvScratchDir  = "SCRATCH_DIR"
	EnvSofficePath = "SOFFICE_PATH"
	EnvTimeout     = "CONVERT_TIMEOUT"
)

// Config holds conversion pipeline settings.
type Config struct {
	ScratchDir  string        `yaml:"scratch_dir"`
	SofficePath string        `yaml:"soffice_path"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies non-zero values from overlay onto the receiver.
func (c *Config) Merge(overlay *Config) {
	if overlay.ScratchDir != "" {
		c.ScratchDir = overlay.ScratchDir
	}
	if overlay.SofficePath != "" {
		c.SofficePath = overlay.SofficePath
	}
	if overlay.Timeout != 0 {
		c.Timeout = overlay.Timeout
	}
}

// EnsureScratchDir creates the scratch directory if it does not exist.
func (c *Config) EnsureScratchDir() error {
	if err := os.MkdirAll(c.ScratchDir, 0o700); err != nil {
		return fmt.Errorf("create scratch dir %s: %w", c.ScratchDir, err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "filegate")
	}
	if c.SofficePath == "" {
		c.SofficePath = "soffice"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvScratchDir); v != "" {
		c.ScratchDir = v
	}
	if v := os.Getenv(EnvSofficePath); v != "" {
		c.SofficePath = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
}

func (c *Config) validate() error {
	if !filepath.IsAbs(c.ScratchDir) {
		return fmt.Errorf("scratch_dir must be an absolute path")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("convert timeout must be positive")
	}
	return nil
}
