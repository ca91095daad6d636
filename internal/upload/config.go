package upload

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

// Environment variable names for upload configuration.
const (
	EnvMaxFiles     = "UPLOAD_MAX_FILES"
	EnvMaxFileSize  = "UPLOAD_MAX_FILE_SIZE"
	EnvConcurrency  = "UPLOAD_CONCURRENCY"
	EnvAllowedTypes = "UPLOAD_ALLOWED_TYPES"
)

// DefaultAllowedTypes is the MIME allow-list applied when none is configured.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/jpeg",
	"image/png",
	"image/jpg",
	"image/svg+xml",
}

// Config holds upload limits.
type Config struct {
	MaxFiles     int      `yaml:"max_files"`
	MaxFileSize  string   `yaml:"max_file_size"`
	Concurrency  int      `yaml:"concurrency"`
	AllowedTypes []string `yaml:"allowed_types"`

	maxFileSizeVal int64
}

// MaxFileSizeBytes returns max_file_size parsed by Finalize.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.maxFileSizeVal
}

// MaxRequestBytes bounds a whole multipart upload request: every file at
// its maximum size plus 1MB of form overhead.
func (c *Config) MaxRequestBytes() int64 {
	return int64(c.MaxFiles)*c.maxFileSizeVal + 1<<20
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies non-zero values from overlay onto the receiver.
func (c *Config) Merge(overlay *Config) {
	if overlay.MaxFiles != 0 {
		c.MaxFiles = overlay.MaxFiles
	}
	if size, err := units.FromHumanSize(overlay.MaxFileSize); err == nil {
		c.MaxFileSize = overlay.MaxFileSize
		c.maxFileSizeVal = size
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if len(overlay.AllowedTypes) > 0 {
		c.AllowedTypes = overlay.AllowedTypes
	}
}

func (c *Config) loadDefaults() {
	if c.MaxFiles <= 0 {
		c.MaxFiles = 10
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "50MB"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvMaxFiles); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxFiles = n
		}
	}
	if v := os.Getenv(EnvMaxFileSize); v != "" {
		c.MaxFileSize = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvAllowedTypes); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		c.AllowedTypes = types
	}
}

func (c *Config) validate() error {
	if c.MaxFiles < 1 {
		return fmt.Errorf("max_files must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("upload concurrency must be positive")
	}
	if len(c.AllowedTypes) == 0 {
		return fmt.Errorf("allowed_types must not be empty")
	}

	size, err := units.FromHumanSize(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	c.maxFileSizeVal = size

	return nil
}
