package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/reconcile"
	"github.com/betbot/traderelay/internal/store"
	"github.com/betbot/traderelay/pkg/config"
)

func TestStoreConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "badger"
	cfg.Store.Badger.EncryptionKey = strings.Repeat("ab", 32)
	cfg.Store.Postgres.DSN = "postgres://x"
	cfg.Store.Postgres.ConnectTimeoutSeconds = 5
	cfg.Store.Redis.URL = "redis://localhost:6379/0"

	sc, err := StoreConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "badger", sc.Backend)
	assert.Len(t, sc.Badger.EncryptionKey, 32)
	assert.Equal(t, "postgres://x", sc.Postgres.DataSource)
	assert.Equal(t, 5*time.Second, sc.Postgres.ConnectTimeout)
	assert.Equal(t, "redis://localhost:6379/0", sc.Redis.ConnectionURL)
	assert.Equal(t, 10*time.Second, sc.Notion.Timeout)

	cfg.Store.Badger.EncryptionKey = "short"
	_, err = StoreConfig(cfg)
	require.Error(t, err)
}

func TestBuildStoreSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "relay.db")

	st, err := BuildStore(cfg)
	require.NoError(t, err)
	defer st.Close()
	_, isSQLite := st.(*store.SQLiteStore)
	assert.True(t, isSQLite)
}

func TestBuildRelay(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "memory"

	_, err := BuildRelay(cfg)
	require.Error(t, err, "telegram credentials are required")

	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = "-100"
	relay, err := BuildRelay(cfg)
	require.NoError(t, err)
	defer relay.Close()

	assert.NotNil(t, relay.Reconciler)
	_, isMemory := relay.Store.(*store.MemoryStore)
	assert.True(t, isMemory)
}

func TestReconcileOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Reconcile.ThreadAnchor = "open"
	cfg.Reconcile.ProfitUnit = "pips"
	cfg.Telegram.TimeoutSeconds = 3

	opts := ReconcileOptions(cfg)
	assert.Equal(t, reconcile.AnchorOpen, opts.Anchor)
	assert.Equal(t, domain.ProfitPips, opts.ProfitUnit)
	assert.Equal(t, 3*time.Second, opts.SendTimeout)
}

func TestKafkaConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Kafka.Brokers = []string{"a:9092", "b:9092"}
	cfg.Kafka.Topic = "trades"
	cfg.Kafka.DLQTopic = "trades.dlq"

	kc := KafkaConfig(cfg)
	assert.Equal(t, []string{"a:9092", "b:9092"}, kc.Brokers)
	assert.Equal(t, "traderelay", kc.GroupID)
	assert.Equal(t, "trades.dlq", kc.DLQTopic)
}
