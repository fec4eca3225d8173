package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  allowed_origins: ["https://app.example.com"]
database:
  url: "postgres://localhost/mailcraft"
tracking:
  base_url: "https://t.example.com/"
  secret: "s3cret"
sending:
  provider: ses
  ses_region: eu-west-1
worker:
  concurrency: 8
log:
  level: debug
  redact_pii: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address())
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/mailcraft", cfg.Database.URL)
	assert.Equal(t, "https://t.example.com", cfg.Tracking.BaseURL)
	assert.Equal(t, "ses", cfg.Sending.Provider)
	assert.Equal(t, "eu-west-1", cfg.Export.S3Region)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.RedactPII)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Server.TrackingPort)
	assert.Equal(t, "redis", cfg.Tracking.Transport)
	assert.Equal(t, "log", cfg.Sending.Provider)
	assert.Equal(t, "mailcraft:jobs", cfg.Redis.QueueKey)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 24, cfg.Auth.TokenTTLHours)
	assert.True(t, cfg.Log.RedactPII)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file"
server:
  port: 9090
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("PORT", "7000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TRACKING_TRANSPORT", "sqs")
	t.Setenv("TRACKING_SQS_URL", "https://sqs.us-west-2.amazonaws.com/1/events")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqs", cfg.Tracking.Transport)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")

	cfg.Database.Memory = true
	assert.NoError(t, cfg.Validate())

	cfg.Env = "production"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
	assert.Contains(t, err.Error(), "tracking.secret")
	assert.Contains(t, err.Error(), "sending.provider log")

	cfg.Sending.Provider = "resend"
	err = cfg.Validate()
	assert.Contains(t, err.Error(), "resend_api_key")
}

func TestDevSecrets(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.DevSecrets()
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.NotEmpty(t, cfg.Tracking.Secret)

	prod := &Config{Env: "production"}
	prod.DevSecrets()
	assert.Empty(t, prod.Auth.JWTSecret)
}
