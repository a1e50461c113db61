package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Server.AdminToken = "test-admin-token-123"
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "sideways"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRejectsShortAdminToken(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AdminToken = "short"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_token")
}

func TestValidateSkipsAdminTokenWhenServerDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Enabled = false
	cfg.Server.AdminToken = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownIngestSource(t *testing.T) {
	cfg := validConfig()
	cfg.Ingest.Source = "carrier-pigeon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: unknown source")
}

func TestValidateRejectsUnknownExecMode(t *testing.T) {
	cfg := validConfig()
	cfg.Exec.Mode = "yolo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec: unknown mode")
}

func TestValidateArchiveNeedsS3(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "sideways"
	cfg.Redis.Addr = ""
	cfg.Exec.MaxNotionalPerOrder = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "max_notional_per_order")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	raw := `mode = "worker"
log_level = "debug"

[ingest]
source = "real"
interval = "5s"

[exec]
mode = "manual"

[server]
admin_token = "file-admin-token-456"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "real", cfg.Ingest.Source)
	assert.Equal(t, 5*time.Second, cfg.Ingest.Interval.Duration)
	assert.Equal(t, "manual", cfg.Exec.Mode)
	assert.Equal(t, "file-admin-token-456", cfg.Server.AdminToken)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 100, cfg.Engine.MarketLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"worker\"\n"), 0o644))

	t.Setenv("MPX_MODE", "api")
	t.Setenv("MPX_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MPX_ENGINE_INTERVAL", "10s")
	t.Setenv("MPX_ML_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.Mode)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.Engine.Interval.Duration)
	assert.True(t, cfg.ML.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
