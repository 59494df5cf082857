package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.WriteWait)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "header", cfg.Auth.Mode)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.Equal(t, cfg.InstanceID, cfg.PubSub.InstanceID)
	assert.Equal(t, cfg.Redis.Address, cfg.PubSub.Redis.Address)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
instance_id: gw-1
websocket:
  ping_interval: 5s
database:
  driver: postgres
  dbname: chat
kafka:
  enabled: true
  topic: from-file
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("CONFIG_PATH", dir)
	t.Chdir(t.TempDir())
	t.Setenv("KAFKA_TOPIC", "from-env")
	t.Setenv("AUTH_MODE", "jwt")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gw-1", cfg.InstanceID)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "chat", cfg.Database.DBName)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "from-env", cfg.Kafka.Topic)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
}
