package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/traderelay/internal/domain"
)

const badgerKeyPrefix = "order/"

// BadgerStore keeps one JSON document per order in an embedded Badger KV.
// The key doubles as the record handle.
type BadgerStore struct {
	db *badger.DB
}

type BadgerOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens without encryption
}

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("badger: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// encrypted workloads need an index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "badger: open")
	}
	return &BadgerStore{db: db}, nil
}

// orderDoc is the stored shape; absent optional values are omitted, never zeroed.
type orderDoc struct {
	OrderID            int64            `json:"order_id"`
	Action             string           `json:"action"`
	Symbol             string           `json:"symbol"`
	Direction          string           `json:"direction,omitempty"`
	Volume             decimal.Decimal  `json:"volume"`
	OpenPrice          decimal.Decimal  `json:"open_price"`
	StopLoss           *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit         *decimal.Decimal `json:"take_profit,omitempty"`
	ClosePrice         *decimal.Decimal `json:"close_price,omitempty"`
	Profit             *decimal.Decimal `json:"profit,omitempty"`
	Balance            decimal.Decimal  `json:"balance"`
	Closed             bool             `json:"closed"`
	NotificationHandle string           `json:"notification_handle"`
}

func toDoc(o domain.Order) orderDoc {
	return orderDoc{
		OrderID:            o.OrderID,
		Action:             string(o.Action),
		Symbol:             o.Symbol,
		Direction:          string(o.Direction),
		Volume:             o.Volume,
		OpenPrice:          o.OpenPrice,
		StopLoss:           domain.NullPtr(o.StopLoss),
		TakeProfit:         domain.NullPtr(o.TakeProfit),
		ClosePrice:         domain.NullPtr(o.ClosePrice),
		Profit:             domain.NullPtr(o.Profit),
		Balance:            o.Balance,
		Closed:             o.Closed,
		NotificationHandle: o.NotificationHandle,
	}
}

func (d orderDoc) order() domain.Order {
	null := func(p *decimal.Decimal) decimal.NullDecimal {
		if p == nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(*p)
	}
	return domain.Order{
		OrderID:            d.OrderID,
		Action:             domain.Action(d.Action),
		Symbol:             d.Symbol,
		Direction:          domain.Direction(d.Direction),
		Volume:             d.Volume,
		OpenPrice:          d.OpenPrice,
		StopLoss:           null(d.StopLoss),
		TakeProfit:         null(d.TakeProfit),
		ClosePrice:         null(d.ClosePrice),
		Profit:             null(d.Profit),
		Balance:            d.Balance,
		Closed:             d.Closed,
		NotificationHandle: d.NotificationHandle,
	}
}

func badgerKey(orderID int64) string {
	return badgerKeyPrefix + strconv.FormatInt(orderID, 10)
}

func (s *BadgerStore) FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error) {
	key := badgerKey(orderID)
	var doc orderDoc
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Order{}, ErrRecordNotFound
		}
		return domain.Order{}, lookupError("badger: find", err)
	}
	o := doc.order()
	o.RecordHandle = key
	return o, nil
}

func (s *BadgerStore) Create(ctx context.Context, order domain.Order) (string, error) {
	key := badgerKey(order.OrderID)
	val, err := json.Marshal(toDoc(order))
	if err != nil {
		return "", writeError("badger: create", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return errors.Errorf("order %d already has a record", order.OrderID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return "", writeError("badger: create", err)
	}
	return key, nil
}

// Update reads, merges and writes inside one transaction; a concurrent writer
// on the same key makes the commit fail with badger.ErrConflict.
func (s *BadgerStore) Update(ctx context.Context, recordHandle string, changes domain.Changes) error {
	if !strings.HasPrefix(recordHandle, badgerKeyPrefix) {
		return writeError("badger: update", errors.Errorf("record handle %q", recordHandle))
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordHandle))
		if err != nil {
			return err
		}
		var doc orderDoc
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &doc) }); err != nil {
			return err
		}
		o := doc.order()
		changes.Apply(&o)
		val, err := json.Marshal(toDoc(o))
		if err != nil {
			return err
		}
		return txn.Set([]byte(recordHandle), val)
	})
	if err != nil {
		return writeError("badger: update", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
