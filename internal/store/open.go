package store

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNotion   = "notion"
)

type Config struct {
	Backend    string
	SQLitePath string
	Badger     BadgerOptions
	Redis      RedisConfig
	Postgres   PostgresConfig
	Notion     NotionConfig
}

// Open builds the backend named by cfg.Backend.
func Open(cfg Config) (RecordStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case BackendBadger:
		return OpenBadger(cfg.Badger)
	case BackendRedis:
		return OpenRedis(cfg.Redis)
	case BackendPostgres:
		return OpenPostgres(cfg.Postgres)
	case BackendNotion:
		return NewNotionStore(cfg.Notion)
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// ParseEncryptionKey accepts a 32-byte key as hex (optionally 0x-prefixed) or base64.
// An empty string yields a nil key.
func ParseEncryptionKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.New("encryption key must be hex or base64")
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	return b, nil
}
