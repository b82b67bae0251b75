package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type ServerConfig struct {
	Listen              string `yaml:"listen"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	// MaxBodyBytes caps the webhook payload size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Color      bool   `yaml:"color"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type TelegramConfig struct {
	Token          string `yaml:"token"`
	ChatID         string `yaml:"chat_id"`
	BaseURL        string `yaml:"base_url"`
	ParseMode      string `yaml:"parse_mode"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type BadgerConfig struct {
	Path string `yaml:"path"`
	// EncryptionKey is 32 bytes as hex or base64; empty disables encryption.
	EncryptionKey string `yaml:"encryption_key"`
}

type RedisConfig struct {
	URL                 string `yaml:"url"`
	KeyPrefix           string `yaml:"key_prefix"`
	PoolSize            int    `yaml:"pool_size"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type PostgresConfig struct {
	DSN                   string `yaml:"dsn"`
	MaxOpenConns          int    `yaml:"max_open_conns"`
	MaxIdleConns          int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMs     int64  `yaml:"conn_max_lifetime_ms"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

type NotionConfig struct {
	APIKey     string `yaml:"api_key"`
	DatabaseID string `yaml:"database_id"`
	BaseURL    string `yaml:"base_url"`
}

type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Badger   BadgerConfig   `yaml:"badger"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Notion   NotionConfig   `yaml:"notion"`
}

type ReconcileConfig struct {
	// ThreadAnchor is "latest" or "open".
	ThreadAnchor string `yaml:"thread_anchor"`
	// ProfitUnit is "currency" or "pips".
	ProfitUnit string `yaml:"profit_unit"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	GroupID  string   `yaml:"group_id"`
	DLQTopic string   `yaml:"dlq_topic"`
	MinBytes int      `yaml:"min_bytes"`
	MaxBytes int      `yaml:"max_bytes"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Telegram    TelegramConfig  `yaml:"telegram"`
	Store       StoreConfig     `yaml:"store"`
	Reconcile   ReconcileConfig `yaml:"reconcile"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

// Default returns the configuration used when no file and no environment are given.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Listen:              ":3000",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
			MaxBodyBytes:        1 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Telegram: TelegramConfig{
			ParseMode:      "Markdown",
			TimeoutSeconds: 10,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "data/relay.db"},
			Badger: BadgerConfig{Path: "data/badger"},
			Redis:  RedisConfig{KeyPrefix: "traderelay:"},
			Postgres: PostgresConfig{
				MaxOpenConns:          10,
				MaxIdleConns:          5,
				ConnectTimeoutSeconds: 60,
			},
		},
		Reconcile: ReconcileConfig{
			ThreadAnchor: "latest",
			ProfitUnit:   "currency",
		},
		Kafka: KafkaConfig{
			GroupID:  "traderelay",
			MinBytes: 1,
			MaxBytes: 10 << 20,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, expanding ${VAR} references, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets environment variables win over the file. The unprefixed
// names are the ones the webhook service has always used.
func applyEnv(c *Config) {
	c.Environment = getEnv("RELAY_ENV", c.Environment)
	c.Server.Listen = getEnv("RELAY_LISTEN", c.Server.Listen)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("RELAY_LISTEN") == "" {
		c.Server.Listen = ":" + port
	}
	c.Log.Level = getEnv("RELAY_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("RELAY_LOG_FILE", c.Log.File)

	c.Telegram.Token = getEnv("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Telegram.BaseURL = getEnv("TELEGRAM_BASE_URL", c.Telegram.BaseURL)
	c.Telegram.TimeoutSeconds = parseIntEnv("TELEGRAM_TIMEOUT_SECONDS", c.Telegram.TimeoutSeconds)

	c.Store.Driver = getEnv("RELAY_STORE_DRIVER", c.Store.Driver)
	c.Store.SQLite.Path = getEnv("RELAY_SQLITE_PATH", c.Store.SQLite.Path)
	c.Store.Badger.Path = getEnv("RELAY_BADGER_PATH", c.Store.Badger.Path)
	c.Store.Badger.EncryptionKey = getEnv("RELAY_BADGER_KEY", c.Store.Badger.EncryptionKey)
	c.Store.Redis.URL = getEnv("REDIS_URL", c.Store.Redis.URL)
	c.Store.Postgres.DSN = getEnv("POSTGRES_DSN", c.Store.Postgres.DSN)
	c.Store.Notion.APIKey = getEnv("NOTION_API_KEY", c.Store.Notion.APIKey)
	c.Store.Notion.DatabaseID = getEnv("NOTION_DB_ID", c.Store.Notion.DatabaseID)

	c.Reconcile.ThreadAnchor = getEnv("RELAY_THREAD_ANCHOR", c.Reconcile.ThreadAnchor)
	c.Reconcile.ProfitUnit = getEnv("RELAY_PROFIT_UNIT", c.Reconcile.ProfitUnit)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)
	c.Kafka.DLQTopic = getEnv("KAFKA_DLQ_TOPIC", c.Kafka.DLQTopic)

	c.Metrics.Listen = getEnv("RELAY_METRICS_LISTEN", c.Metrics.Listen)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate checks what the relay needs to serve events.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is not configured")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is not configured")
	}
	if c.Telegram.TimeoutSeconds <= 0 {
		return fmt.Errorf("telegram.timeout_seconds must be greater than 0")
	}
	return c.ValidateCore()
}

// ValidateCore checks store and reconcile settings only; it is enough for a dry run.
func (c *Config) ValidateCore() error {
	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must not be empty")
		}
	case "badger":
		if c.Store.Badger.Path == "" {
			return fmt.Errorf("store.badger.path must not be empty")
		}
	case "redis":
		if c.Store.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is not configured")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is not configured")
		}
	case "notion":
		if c.Store.Notion.APIKey == "" {
			return fmt.Errorf("NOTION_API_KEY is not configured")
		}
		if c.Store.Notion.DatabaseID == "" {
			return fmt.Errorf("NOTION_DB_ID is not configured")
		}
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}

	switch c.Reconcile.ThreadAnchor {
	case "latest", "open":
	default:
		return fmt.Errorf("unknown reconcile.thread_anchor: %s", c.Reconcile.ThreadAnchor)
	}
	switch c.Reconcile.ProfitUnit {
	case "currency", "pips":
	default:
		return fmt.Errorf("unknown reconcile.profit_unit: %s", c.Reconcile.ProfitUnit)
	}
	return nil
}

// ValidateKafka checks the consumer settings.
func (c *Config) ValidateKafka() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is not configured")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is not configured")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("kafka.group_id must not be empty")
	}
	if c.Kafka.DLQTopic != "" && c.Kafka.DLQTopic == c.Kafka.Topic {
		return fmt.Errorf("kafka.dlq_topic must differ from kafka.topic")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
