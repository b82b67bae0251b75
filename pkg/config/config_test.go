package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "RELAY_LISTEN", "RELAY_STORE_DRIVER", "RELAY_THREAD_ANCHOR", "RELAY_PROFIT_UNIT", "RELAY_ENV", "TELEGRAM_TIMEOUT_SECONDS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "latest", cfg.Reconcile.ThreadAnchor)
	assert.Equal(t, "currency", cfg.Reconcile.ProfitUnit)
	assert.Equal(t, 10, cfg.Telegram.TimeoutSeconds)
	assert.Equal(t, "Markdown", cfg.Telegram.ParseMode)
	assert.False(t, cfg.IsProduction())
}

func TestLoadYAMLWithExpansion(t *testing.T) {
	t.Setenv("RELAY_TEST_CHAT", "-1001")
	path := writeFile(t, "relay.yaml", `
environment: production
telegram:
  token: file-token
  chat_id: ${RELAY_TEST_CHAT}
store:
  driver: badger
  badger:
    path: /tmp/relay-badger
reconcile:
  thread_anchor: open
  profit_unit: pips
kafka:
  brokers: [a:9092, b:9092]
  topic: trades
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, "-1001", cfg.Telegram.ChatID)
	assert.Equal(t, "badger", cfg.Store.Driver)
	assert.Equal(t, "/tmp/relay-badger", cfg.Store.Badger.Path)
	assert.Equal(t, "open", cfg.Reconcile.ThreadAnchor)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "traderelay", cfg.Kafka.GroupID, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateKafka())
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "relay.yaml", "telegram:\n  token: file-token\n")
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("NOTION_API_KEY", "secret_x")
	t.Setenv("NOTION_DB_ID", "db-1")
	t.Setenv("RELAY_STORE_DRIVER", "notion")
	t.Setenv("KAFKA_BROKERS", " k1:9092 , ,k2:9092")
	t.Setenv("PORT", "8080")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, "notion", cfg.Store.Driver)
	assert.Equal(t, "secret_x", cfg.Store.Notion.APIKey)
	assert.Equal(t, "db-1", cfg.Store.Notion.DatabaseID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "relay.yaml", "telegram:\n  tokn: typo\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Telegram.Token = "t"
		c.Telegram.ChatID = "1"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"missing chat", func(c *Config) { c.Telegram.ChatID = "" }},
		{"zero timeout", func(c *Config) { c.Telegram.TimeoutSeconds = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"redis without url", func(c *Config) { c.Store.Driver = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"notion without key", func(c *Config) { c.Store.Driver = "notion" }},
		{"bad anchor", func(c *Config) { c.Reconcile.ThreadAnchor = "first" }},
		{"bad profit unit", func(c *Config) { c.Reconcile.ProfitUnit = "points" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidateCoreSkipsTelegram(t *testing.T) {
	c := Default()
	assert.Error(t, c.Validate())
	assert.NoError(t, c.ValidateCore())
}

func TestValidateKafka(t *testing.T) {
	c := Default()
	assert.Error(t, c.ValidateKafka())
	c.Kafka.Brokers = []string{"k:9092"}
	c.Kafka.Topic = "trades"
	assert.NoError(t, c.ValidateKafka())
	c.Kafka.DLQTopic = "trades"
	assert.Error(t, c.ValidateKafka())
}
