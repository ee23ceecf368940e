package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
telegram:
  token: "123456:test-token"
database:
  mongodb:
    uri: "mongodb://localhost:27017"
  redis:
    host: "localhost"
    port: 6379
webhook:
  url: "https://hooks.example.com/relay"
  max_concurrent: 5
relay:
  forward_duplicates: true
  denylisted_sender_ids:
    - 178220800
  filter_expression: "chat_id != 0"
logging:
  level: "debug"
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "123456:test-token", cfg.Telegram.Token)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.MongoDB.URI)
	assert.Equal(t, "localhost", cfg.Database.Redis.Host)
	assert.Equal(t, "https://hooks.example.com/relay", cfg.Webhook.URL)
	assert.Equal(t, int64(5), cfg.Webhook.MaxConcurrent)
	assert.True(t, cfg.Relay.ForwardDuplicates)
	assert.Equal(t, []int64{178220800}, cfg.Relay.DenylistedSenderIDs)
	assert.Equal(t, "chat_id != 0", cfg.Relay.FilterExpression)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// defaults fill in what the file leaves out
	assert.Equal(t, "telegram_logs", cfg.Database.MongoDB.Database)
	assert.Equal(t, "messages", cfg.Database.MongoDB.Collection)
	assert.Equal(t, "allow", cfg.Relay.FilterFallback)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "654321:env-token")
	t.Setenv("WEBHOOK_URL", "https://env.example.com/relay")

	cfg, err := LoadConfig(writeConfigFile(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "654321:env-token", cfg.Telegram.Token)
	assert.Equal(t, "https://env.example.com/relay", cfg.Webhook.URL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidConfigRejected(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, "server:\n  port: 9090\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
}
