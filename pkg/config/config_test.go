package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Gateway.Addr)
	assert.Equal(t, []string{"localhost:9042"}, cfg.Store.ScyllaHosts)
	assert.Equal(t, 2000, cfg.Messaging.MaxMessageLength)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.DevLogin)
}

func TestDevLoginFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("AUTH_DEV_LOGIN", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Auth.DevLogin)

	t.Setenv("AUTH_DEV_LOGIN", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
kafka:
  brokers: ["k1:9092"]
messaging:
  max_message_length: 10
auth:
  jwt_secret: from-file
`), 0o600))

	t.Setenv("KAFKA_BROKERS", "a:1, b:2 ,")
	t.Setenv("MAX_MESSAGE_LENGTH", "50")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, 50, cfg.Messaging.MaxMessageLength)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "x"
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Messaging.SnowflakeNode = 2048
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Store.Driver = "postgres"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Messaging.MaxMessageLength = 0
	assert.Error(t, bad.Validate())
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_TTL", "forever")
	assert.Error(t, ApplyEnv(Default()))
}
