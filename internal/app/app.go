// Package app turns a loaded config.Config into running components.
package app

import (
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/ingest"
	"github.com/betbot/traderelay/internal/notify"
	"github.com/betbot/traderelay/internal/reconcile"
	"github.com/betbot/traderelay/internal/store"
	"github.com/betbot/traderelay/pkg/config"
	"github.com/betbot/traderelay/pkg/logger"
)

func InitLogger(cfg *config.Config) error {
	return logger.Init(LoggerConfig(cfg))
}

func LoggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Color:      cfg.Log.Color,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

// StoreConfig maps the file/env configuration onto store.Config.
func StoreConfig(cfg *config.Config) (store.Config, error) {
	key, err := store.ParseEncryptionKey(cfg.Store.Badger.EncryptionKey)
	if err != nil {
		return store.Config{}, errors.Wrap(err, "store.badger.encryption_key")
	}
	s := cfg.Store
	return store.Config{
		Backend:    s.Driver,
		SQLitePath: s.SQLite.Path,
		Badger:     store.BadgerOptions{Path: s.Badger.Path, EncryptionKey: key},
		Redis: store.RedisConfig{
			ConnectionURL:       s.Redis.URL,
			KeyPrefix:           s.Redis.KeyPrefix,
			PoolSize:            s.Redis.PoolSize,
			DialTimeoutSeconds:  s.Redis.DialTimeoutSeconds,
			ReadTimeoutSeconds:  s.Redis.ReadTimeoutSeconds,
			WriteTimeoutSeconds: s.Redis.WriteTimeoutSeconds,
		},
		Postgres: store.PostgresConfig{
			DataSource:                 s.Postgres.DSN,
			MaxOpenConns:               s.Postgres.MaxOpenConns,
			MaxIdleConns:               s.Postgres.MaxIdleConns,
			ConnMaxLifeTimeMiliseconds: s.Postgres.ConnMaxLifetimeMs,
			ConnectTimeout:             time.Duration(s.Postgres.ConnectTimeoutSeconds) * time.Second,
		},
		Notion: store.NotionConfig{
			BaseURL:    s.Notion.BaseURL,
			APIKey:     s.Notion.APIKey,
			DatabaseID: s.Notion.DatabaseID,
			Timeout:    sendTimeout(cfg),
		},
	}, nil
}

func BuildStore(cfg *config.Config) (store.RecordStore, error) {
	sc, err := StoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", sc.Backend)
	}
	logger.Infof("record store ready: driver=%s", sc.Backend)
	return st, nil
}

func BuildChannel(cfg *config.Config) (notify.Channel, error) {
	return notify.NewTelegram(notify.TelegramConfig{
		BaseURL:   cfg.Telegram.BaseURL,
		Token:     cfg.Telegram.Token,
		ChatID:    cfg.Telegram.ChatID,
		ParseMode: cfg.Telegram.ParseMode,
		Timeout:   sendTimeout(cfg),
	})
}

func ReconcileOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		Anchor:      reconcile.AnchorPolicy(cfg.Reconcile.ThreadAnchor),
		SendTimeout: sendTimeout(cfg),
		ProfitUnit:  domain.ProfitUnit(cfg.Reconcile.ProfitUnit),
	}
}

func KafkaConfig(cfg *config.Config) ingest.KafkaConfig {
	return ingest.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		DLQTopic: cfg.Kafka.DLQTopic,
		MinBytes: cfg.Kafka.MinBytes,
		MaxBytes: cfg.Kafka.MaxBytes,
	}
}

// Relay bundles a reconciler with the store it owns.
type Relay struct {
	Store      store.RecordStore
	Reconciler *reconcile.Reconciler
}

// BuildRelay validates cfg and wires store, Telegram channel and reconciler.
func BuildRelay(cfg *config.Config) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ch, err := BuildChannel(cfg)
	if err != nil {
		return nil, err
	}
	st, err := BuildStore(cfg)
	if err != nil {
		return nil, err
	}
	return &Relay{Store: st, Reconciler: reconcile.New(st, ch, ReconcileOptions(cfg))}, nil
}

func (r *Relay) Close() error {
	return r.Store.Close()
}

func sendTimeout(cfg *config.Config) time.Duration {
	if cfg.Telegram.TimeoutSeconds <= 0 {
		return reconcile.DefaultSendTimeout
	}
	return time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second
}
