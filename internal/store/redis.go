package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/betbot/traderelay/internal/domain"
)

type RedisConfig struct {
	ConnectionURL       string
	KeyPrefix           string
	PoolSize            int
	DialTimeoutSeconds  int
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
}

// RedisStore keeps each order as a hash; the hash key is the record handle.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func OpenRedis(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Wrap(err, "redis: parse url")
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeoutSeconds > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutSeconds) * time.Second
	}
	if cfg.ReadTimeoutSeconds > 0 {
		opts.ReadTimeout = time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	}
	if cfg.WriteTimeoutSeconds > 0 {
		opts.WriteTimeout = time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis: ping")
	}
	return NewRedisStore(client, cfg.KeyPrefix), nil
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "traderelay:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(orderID int64) string {
	return s.prefix + "order:" + strconv.FormatInt(orderID, 10)
}

func (s *RedisStore) FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error) {
	key := s.key(orderID)
	h, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Order{}, lookupError("redis: find", err)
	}
	if len(h) == 0 {
		return domain.Order{}, ErrRecordNotFound
	}
	o, err := orderFromHash(h)
	if err != nil {
		return domain.Order{}, lookupError("redis: decode", err)
	}
	o.RecordHandle = key
	return o, nil
}

func orderFromHash(h map[string]string) (domain.Order, error) {
	var (
		o   domain.Order
		err error
	)
	if o.OrderID, err = strconv.ParseInt(h[colOrderID], 10, 64); err != nil {
		return o, fmt.Errorf("column %s: %w", colOrderID, err)
	}
	o.Action = domain.Action(h[colAction])
	o.Symbol = h[colSymbol]
	o.Direction = domain.Direction(h[colDirection])
	o.Closed = h[colClosed] == "1" || h[colClosed] == "true"
	o.NotificationHandle = h[colNotificationHandle]

	if o.Volume, err = parseDecimal(colVolume, h[colVolume]); err != nil {
		return o, err
	}
	if o.OpenPrice, err = parseDecimal(colOpenPrice, h[colOpenPrice]); err != nil {
		return o, err
	}
	if o.Balance, err = parseDecimal(colBalance, h[colBalance]); err != nil {
		return o, err
	}
	sl, ok := h[colStopLoss]
	if o.StopLoss, err = parseNullDecimal(colStopLoss, sl, ok); err != nil {
		return o, err
	}
	tp, ok := h[colTakeProfit]
	if o.TakeProfit, err = parseNullDecimal(colTakeProfit, tp, ok); err != nil {
		return o, err
	}
	cp, ok := h[colClosePrice]
	if o.ClosePrice, err = parseNullDecimal(colClosePrice, cp, ok); err != nil {
		return o, err
	}
	pf, ok := h[colProfit]
	o.Profit, err = parseNullDecimal(colProfit, pf, ok)
	return o, err
}

func hashArgs(fields []field) []any {
	args := make([]any, 0, len(fields)*2+2)
	for _, f := range fields {
		v := f.Value
		if b, ok := v.(bool); ok {
			v = "0"
			if b {
				v = "1"
			}
		}
		args = append(args, f.Column, v)
	}
	return append(args, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
}

func (s *RedisStore) Create(ctx context.Context, order domain.Order) (string, error) {
	key := s.key(order.OrderID)
	args := hashArgs(createFields(order))
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Errorf("order %d already has a record", order.OrderID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, args...)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return "", writeError("redis: create", err)
	}
	return key, nil
}

// Update refuses to touch a missing hash so a stale handle never leaves a partial record.
func (s *RedisStore) Update(ctx context.Context, recordHandle string, changes domain.Changes) error {
	if !strings.HasPrefix(recordHandle, s.prefix) {
		return writeError("redis: update", errors.Errorf("record handle %q", recordHandle))
	}
	fields := changeFields(changes)
	if len(fields) == 0 {
		return nil
	}
	args := hashArgs(fields)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, recordHandle).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Errorf("record %s does not exist", recordHandle)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, recordHandle, args...)
			return nil
		})
		return err
	}, recordHandle)
	if err != nil {
		return writeError("redis: update", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
