package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.AdminToken = "admin-token-123456"
	cfg.Notify.TelegramToken = "tg-token"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.AccessKey)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.AdminToken)
	assert.Equal(t, "***", out.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
	assert.Equal(t, "admin-token-123456", cfg.Server.AdminToken)

	// Empty secrets stay empty rather than becoming placeholders.
	assert.Empty(t, out.Postgres.DSN)
	assert.Empty(t, out.Notify.DiscordWebhookURL)
}
