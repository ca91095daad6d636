// Package config loads the service configuration from a YAML file, a .env
// file and environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/filegate/internal/convert"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/paging"
	"github.com/koustreak/filegate/internal/upload"
)

const (
	// DefaultConfigFile is read when no path is given. It is optional.
	DefaultConfigFile = "filegate.yaml"

	// EnvServiceEnv names the deployment environment. When set, the file
	// <stem>.<env>.yaml next to the base file is merged over it if present.
	EnvServiceEnv = "FILEGATE_ENV"
)

// Config represents the root service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      filestore.Config `yaml:"store"`
	Pagination paging.Config    `yaml:"pagination"`
	Upload     upload.Config    `yaml:"upload"`
	Convert    convert.Config   `yaml:"convert"`
	Logging    LoggingConfig    `yaml:"logging"`
	CORS       CORSConfig       `yaml:"cors"`
}

// Load reads path (or DefaultConfigFile when path is empty) and the .env
// file of the working directory, then finalizes the result. A missing
// default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	cfg, err := load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = &Config{}
	case err != nil:
		return nil, err
	}

	if op := overlayPath(path); op != "" {
		overlay, err := load(op)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", op, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults, loads environment overrides, and validates
// every section.
func (c *Config) Finalize() error {
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Store.Finalize(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Pagination.Finalize(); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.Upload.Finalize(); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := c.Convert.Finalize(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if err := c.Logging.Finalize(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.CORS.Finalize(); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	return nil
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *Config) Merge(overlay *Config) {
	c.Server.Merge(&overlay.Server)
	c.Store.Merge(&overlay.Store)
	c.Pagination.Merge(&overlay.Pagination)
	c.Upload.Merge(&overlay.Upload)
	c.Convert.Merge(&overlay.Convert)
	c.Logging.Merge(&overlay.Logging)
	c.CORS.Merge(&overlay.CORS)
}

// overlayPath returns the environment overlay for base, or "" when
// EnvServiceEnv is unset or the file does not exist.
func overlayPath(base string) string {
	env := os.Getenv(EnvServiceEnv)
	if env == "" {
		return ""
	}
	ext := filepath.Ext(base)
	p := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(base, ext), env, ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
