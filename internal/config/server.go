package config

import (
	"fmt"
	"os"
	"time"

	"github.com/koustreak/filegate/internal/logger"
)

const (
	// EnvAddr overrides the listen address.
	EnvAddr = "FILEGATE_ADDR"

	// EnvPort sets the listen address to ":PORT" when EnvAddr is unset.
	EnvPort = "PORT"

	// EnvShutdownTimeout overrides the graceful shutdown timeout.
	EnvShutdownTimeout = "FILEGATE_SHUTDOWN_TIMEOUT"

	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
)

// ServerConfig holds HTTP listener settings. WriteTimeout defaults to zero
// because archive exports can stream for a long time.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies non-zero values from overlay onto the receiver.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Addr != "" {
		c.Addr = overlay.Addr
	}
	if overlay.ReadTimeout != 0 {
		c.ReadTimeout = overlay.ReadTimeout
	}
	if overlay.WriteTimeout != 0 {
		c.WriteTimeout = overlay.WriteTimeout
	}
	if overlay.IdleTimeout != 0 {
		c.IdleTimeout = overlay.IdleTimeout
	}
	if overlay.ShutdownTimeout != 0 {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Addr == "" {
		c.Addr = ":3333"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	} else if v := os.Getenv(EnvPort); v != "" {
		c.Addr = ":" + v
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = d
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr required")
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout cannot be negative")
	}
	return nil
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *LoggingConfig) Finalize() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Format = v
	}

	if !logger.ValidLevel(c.Level) {
		return fmt.Errorf("invalid level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid format %q: must be json or console", c.Format)
	}
	return nil
}

// Merge applies non-zero values from overlay onto the receiver.
func (c *LoggingConfig) Merge(overlay *LoggingConfig) {
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
}

// Logger returns the logger.Config for these settings.
func (c *LoggingConfig) Logger() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Level
	lc.Format = c.Format
	return lc
}
