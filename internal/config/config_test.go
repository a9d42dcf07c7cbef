package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/posgate/internal/webhook"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SECRETBOX_MASTER_KEY", testKey())
	t.Setenv("SQUARE_CLIENT_ID", "sq0idp-test")
	t.Setenv("SQUARE_CLIENT_SECRET", "sq0csp-test")
	t.Setenv("SQUARE_WEBHOOK_SIGNATURE_KEY", "whsec")
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsFromEnvOnly(t *testing.T) {
	baseEnv(t)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 24*time.Hour, c.Vault.RefreshAhead)
	assert.Equal(t, 10*time.Minute, c.OAuth.StateTTL)
	assert.Equal(t, 7*24*time.Hour, c.Scheduler.Period)
	assert.Equal(t, 1000, c.Webhook.DedupeMax)
	assert.Equal(t, 500, c.Webhook.DedupeEvict)
	assert.Equal(t, webhook.Secure, c.WebhookMode())
	assert.True(t, c.Scheduler.Enabled)
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	baseEnv(t)
	p := writeYAML(t, `
app:
  env: staging
server:
  addr: ":9000"
vault:
  refresh_ahead: 48h
scheduler:
  concurrency: 8
square:
  scopes: [MERCHANT_PROFILE_READ, ORDERS_READ]
`)
	t.Setenv("POSGATE_ADDR", ":9100")
	t.Setenv("SQUARE_SCOPES", "ITEMS_READ, ORDERS_WRITE")

	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "staging", c.App.Env)
	assert.Equal(t, ":9100", c.Server.Addr)
	assert.Equal(t, 48*time.Hour, c.Vault.RefreshAhead)
	assert.Equal(t, 8, c.Scheduler.Concurrency)
	assert.Equal(t, []string{"ITEMS_READ", "ORDERS_WRITE"}, c.Square.Scopes)
}

func TestLoad_MissingFile(t *testing.T) {
	baseEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_MasterKey(t *testing.T) {
	baseEnv(t)
	t.Setenv("SECRETBOX_MASTER_KEY", "too-short")
	_, err := Load("")
	require.ErrorContains(t, err, "SECRETBOX_MASTER_KEY")
}

func TestValidate_WebhookModes(t *testing.T) {
	t.Run("secure sin clave", func(t *testing.T) {
		baseEnv(t)
		t.Setenv("SQUARE_WEBHOOK_SIGNATURE_KEY", "")
		_, err := Load("")
		require.ErrorIs(t, err, webhook.ErrMissingSecret)
	})

	t.Run("insecure con clave", func(t *testing.T) {
		baseEnv(t)
		t.Setenv("POSGATE_WEBHOOK_MODE", "insecure_explicit")
		_, err := Load("")
		require.ErrorIs(t, err, webhook.ErrUnexpectedSecret)
	})

	t.Run("insecure en dev", func(t *testing.T) {
		baseEnv(t)
		t.Setenv("SQUARE_WEBHOOK_SIGNATURE_KEY", "")
		t.Setenv("POSGATE_WEBHOOK_MODE", "insecure_explicit")
		c, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, webhook.InsecureExplicit, c.WebhookMode())
	})

	t.Run("insecure en prod", func(t *testing.T) {
		baseEnv(t)
		t.Setenv("SQUARE_WEBHOOK_SIGNATURE_KEY", "")
		t.Setenv("POSGATE_WEBHOOK_MODE", "insecure_explicit")
		t.Setenv("POSGATE_ENV", "prod")
		_, err := Load("")
		require.ErrorContains(t, err, "insecure_explicit")
	})

	t.Run("modo desconocido", func(t *testing.T) {
		baseEnv(t)
		t.Setenv("POSGATE_WEBHOOK_MODE", "yolo")
		_, err := Load("")
		require.ErrorContains(t, err, "unknown mode")
	})
}

func TestValidate_Storage(t *testing.T) {
	baseEnv(t)
	t.Setenv("POSGATE_STORAGE_DRIVER", "postgres")
	_, err := Load("")
	require.ErrorContains(t, err, "dsn")

	t.Setenv("POSGATE_STORAGE_DSN", "postgres://u:p@localhost/posgate")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Storage.Driver)

	t.Setenv("POSGATE_STORAGE_DRIVER", "oracle")
	_, err = Load("")
	require.ErrorContains(t, err, "oracle")
}

func TestValidate_SquareCredentials(t *testing.T) {
	baseEnv(t)
	t.Setenv("SQUARE_CLIENT_SECRET", "")
	_, err := Load("")
	require.ErrorContains(t, err, "SQUARE_CLIENT_SECRET")

	t.Setenv("SQUARE_ENABLED", "false")
	_, err = Load("")
	require.NoError(t, err)
}

func TestValidate_SessionTTLs(t *testing.T) {
	baseEnv(t)
	t.Setenv("POSGATE_SESSION_ACCESS_TTL", "2h")
	t.Setenv("POSGATE_SESSION_REFRESH_TTL", "1h")
	_, err := Load("")
	require.ErrorContains(t, err, "refresh_ttl")
}

func TestRedacted(t *testing.T) {
	baseEnv(t)
	t.Setenv("POSGATE_REDIS_PASSWORD", "hunter2")
	c, err := Load("")
	require.NoError(t, err)

	r := c.Redacted()
	assert.Equal(t, "***", r.Security.SecretBoxMasterKey)
	assert.Equal(t, "***", r.Square.ClientSecret)
	assert.Equal(t, "***", r.Webhook.SignatureKey)
	assert.Equal(t, "***", r.Redis.Password)
	assert.Equal(t, testKey(), c.Security.SecretBoxMasterKey)
}
