package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/filegate/internal/filestore"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvServiceEnv, EnvAddr, EnvPort, EnvShutdownTimeout, EnvLogLevel, EnvLogFormat,
		EnvCORSOrigins, EnvCORSAllowedMethods, EnvCORSAllowedHeaders, EnvCORSMaxAge,
		filestore.EnvProvider, filestore.EnvEndpoint, filestore.EnvAccessKey, filestore.EnvSecretKey,
		filestore.EnvBucket, filestore.EnvRegion, filestore.EnvUseSSL, filestore.EnvBatchSize,
		filestore.EnvOpTimeout, filestore.EnvReadTimeout, filestore.EnvPresignTTL,
		filestore.EnvAWSAccessKey, filestore.EnvAWSSecretKey, filestore.EnvAWSBucket,
		"SCRATCH_DIR", "SOFFICE_PATH", "CONVERT_TIMEOUT",
		"PAGINATION_DEFAULT_PAGE_SIZE", "PAGINATION_MAX_PAGE_SIZE",
		"UPLOAD_MAX_FILES", "UPLOAD_MAX_FILE_SIZE", "UPLOAD_CONCURRENCY", "UPLOAD_ALLOWED_TYPES",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sample = `
server:
  addr: ":8080"
  shutdown_timeout: 10s
store:
  provider: minio
  endpoint: localhost:9000
  access_key: minioadmin
  secret_key: minioadmin
  bucket: uploads
  batch_size: 250
  op_timeout: 5s
pagination:
  default_page_size: 20
upload:
  max_files: 5
  max_file_size: 10MB
convert:
  scratch_dir: /tmp/filegate-test
logging:
  level: debug
  format: console
`

func TestLoad_FileWithDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filestore.ProviderMinIO, cfg.Store.Provider)
	assert.Equal(t, "uploads", cfg.Store.Bucket)
	assert.Equal(t, 250, cfg.Store.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Store.ReadTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Store.PresignTTL)
	assert.Equal(t, 20, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, 1000, cfg.Pagination.MaxPageSize)
	assert.Equal(t, 5, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(10_000_000), cfg.Upload.MaxFileSizeBytes())
	assert.Equal(t, "/tmp/filegate-test", cfg.Convert.ScratchDir)
	assert.Equal(t, "soffice", cfg.Convert.SofficePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.CORS.AllowedMethods)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9999")
	t.Setenv(filestore.EnvAWSBucket, "from-aws-env")
	t.Setenv(filestore.EnvAWSAccessKey, "AKIA")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "from-aws-env", cfg.Store.Bucket)
	assert.Equal(t, "AKIA", cfg.Store.AccessKey)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_StoreEnvWinsOverAWSAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv(filestore.EnvBucket, "primary")
	t.Setenv(filestore.EnvAWSBucket, "alias")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Store.Bucket)
}

func TestLoad_EnvironmentOverlay(t *testing.T) {
	clearEnv(t)
	base := writeConfig(t, sample)
	overlay := `
server:
  addr: ":9443"
store:
  bucket: staging-uploads
`
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(base), "filegate.staging.yaml"), []byte(overlay), 0o600))

	t.Setenv(EnvServiceEnv, "staging")
	cfg, err := Load(base)
	require.NoError(t, err)
	assert.Equal(t, ":9443", cfg.Server.Addr)
	assert.Equal(t, "staging-uploads", cfg.Store.Bucket)
	assert.Equal(t, 250, cfg.Store.BatchSize)
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv(EnvServiceEnv, "production")
	cfg, err = Load(base)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "uploads", cfg.Store.Bucket)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no bucket", body: "store:\n  provider: s3\n"},
		{name: "unknown provider", body: "store:\n  provider: ftp\n  bucket: b\n"},
		{name: "minio without endpoint", body: "store:\n  provider: minio\n  bucket: b\n"},
		{name: "bad log level", body: "store:\n  provider: memory\n  bucket: b\nlogging:\n  level: loud\n"},
		{name: "bad upload size", body: "store:\n  provider: memory\n  bucket: b\nupload:\n  max_file_size: huge\n"},
		{name: "relative scratch dir", body: "store:\n  provider: memory\n  bucket: b\nconvert:\n  scratch_dir: tmp\n"},
		{name: "not yaml", body: "store: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	clearEnv(t)

	base, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	base.CORS.AllowCredentials = true

	base.Merge(&Config{
		Server: ServerConfig{Addr: ":7000"},
		Store:  filestore.Config{Bucket: "other"},
	})
	assert.Equal(t, ":7000", base.Server.Addr)
	assert.Equal(t, "other", base.Store.Bucket)
	assert.Equal(t, "localhost:9000", base.Store.Endpoint)
	assert.Equal(t, "debug", base.Logging.Level)
	assert.True(t, base.CORS.AllowCredentials)
	assert.Equal(t, []string{"*"}, base.CORS.Origins)
}

func TestLoggingConfig_Logger(t *testing.T) {
	c := LoggingConfig{Level: "debug", Format: "console"}
	lc := c.Logger()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "console", lc.Format)
}
