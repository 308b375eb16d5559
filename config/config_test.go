package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IM_AUTH_SECRET", "unit-test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 5, cfg.Hub.MaxConnectionsPerUser)
	assert.Equal(t, 256, cfg.Hub.MailboxSize)
	assert.Equal(t, 300*time.Second, cfg.Presence.OnlineTTL)
	assert.Equal(t, 720*time.Hour, cfg.Presence.QueueTTL)
	assert.Equal(t, int64(64*1024), cfg.Router.ReadLimit)
	assert.Equal(t, float64(20), cfg.Router.Rate)
	assert.Equal(t, 40, cfg.Router.Burst)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NotEmpty(t, cfg.NodeID)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("IM_AUTH_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("IM_AUTH_SECRET", "unit-test-secret")
	t.Setenv("IM_HUB_MAILBOX_SIZE", "512")
	t.Setenv("IM_PRESENCE_ONLINE_TTL", "150s")
	t.Setenv("IM_REDIS_ADDR", "redis:6379")
	t.Setenv("IM_NODE_ID", "node-a")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Hub.MailboxSize)
	assert.Equal(t, 150*time.Second, cfg.Presence.OnlineTTL)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "node-a", cfg.NodeID)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "im.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
auth:
  secret: file-secret
hub:
  max_connections_per_user: 3
log:
  level: debug
`), 0o600))

	t.Setenv("IM_CONFIG_FILE", file)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.Auth.Secret)
	assert.Equal(t, 3, cfg.Hub.MaxConnectionsPerUser)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 256, cfg.Hub.MailboxSize)
}
