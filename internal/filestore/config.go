package filestore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names for store configuration. The AWS_* names are
// accepted as fallbacks for deployments configured for the S3 SDK.
const (
	EnvProvider    = "STORE_PROVIDER"
	EnvEndpoint    = "STORE_ENDPOINT"
	EnvAccessKey   = "STORE_ACCESS_KEY"
	EnvSecretKey   = "STORE_SECRET_KEY"
	EnvBucket      = "STORE_BUCKET"
	EnvRegion      = "STORE_REGION"
	EnvUseSSL      = "STORE_USE_SSL"
	EnvBatchSize   = "STORE_BATCH_SIZE"
	EnvOpTimeout   = "STORE_OP_TIMEOUT"
	EnvReadTimeout = "STORE_READ_TIMEOUT"
	EnvPresignTTL  = "STORE_PRESIGN_TTL"

	EnvAWSAccessKey = "AWS_KEY"
	EnvAWSSecretKey = "AWS_SECRET_KEY"
	EnvAWSBucket    = "AWS_BUCKET_NAME"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO  Provider = "minio"
	ProviderS3     Provider = "s3"
	ProviderMemory Provider = "memory"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO. Optional for AWS S3.
	Endpoint string `yaml:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	Region string `yaml:"region"`

	// Bucket is the bucket every request of the service targets.
	Bucket string `yaml:"bucket"`

	// BatchSize is the MaxKeys value sent on each list call.
	BatchSize int `yaml:"batch_size"`

	// OpTimeout bounds list, stat, put, presign and ping calls.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// ReadTimeout bounds a GetObject from open until Close.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// PresignTTL is the lifetime of generated download URLs.
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:    ProviderMinIO,
		Endpoint:    endpoint,
		AccessKey:   accessKey,
		SecretKey:   secretKey,
		UseSSL:      false,
		BatchSize:   1000,
		OpTimeout:   30 * time.Second,
		ReadTimeout: 10 * time.Minute,
		PresignTTL:  15 * time.Minute,
	}
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies non-zero values from overlay onto the receiver.
func (c *Config) Merge(overlay *Config) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.AccessKey != "" {
		c.AccessKey = overlay.AccessKey
	}
	if overlay.SecretKey != "" {
		c.SecretKey = overlay.SecretKey
	}
	if overlay.UseSSL {
		c.UseSSL = true
	}
	if overlay.Region != "" {
		c.Region = overlay.Region
	}
	if overlay.Bucket != "" {
		c.Bucket = overlay.Bucket
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.OpTimeout != 0 {
		c.OpTimeout = overlay.OpTimeout
	}
	if overlay.ReadTimeout != 0 {
		c.ReadTimeout = overlay.ReadTimeout
	}
	if overlay.PresignTTL != 0 {
		c.PresignTTL = overlay.PresignTTL
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderMinIO
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Minute
	}
	if c.PresignTTL <= 0 {
		c.PresignTTL = 15 * time.Minute
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvProvider); v != "" {
		c.Provider = Provider(v)
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := firstEnv(EnvAccessKey, EnvAWSAccessKey); v != "" {
		c.AccessKey = v
	}
	if v := firstEnv(EnvSecretKey, EnvAWSSecretKey); v != "" {
		c.SecretKey = v
	}
	if v := firstEnv(EnvBucket, EnvAWSBucket); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv(EnvRegion); v != "" {
		c.Region = v
	}
	if v := os.Getenv(EnvUseSSL); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UseSSL = b
		}
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	for env, dst := range map[string]*time.Duration{
		EnvOpTimeout:   &c.OpTimeout,
		EnvReadTimeout: &c.ReadTimeout,
		EnvPresignTTL:  &c.PresignTTL,
	} {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderMinIO:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint required for provider %s", c.Provider)
		}
	case ProviderS3, ProviderMemory:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket required")
	}
	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return fmt.Errorf("batch_size must be between 1 and 1000")
	}
	if c.OpTimeout <= 0 || c.ReadTimeout <= 0 || c.PresignTTL <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
