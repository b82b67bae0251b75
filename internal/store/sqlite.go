package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/betbot/traderelay/internal/domain"
)

// SQLiteStore keeps one row per order in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "sqlite: mkdir db dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1) // single writer keeps per-record updates serialized
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id INTEGER NOT NULL,
  action TEXT NOT NULL,
  symbol TEXT NOT NULL,
  direction TEXT,
  volume TEXT NOT NULL,
  open_price TEXT NOT NULL,
  stop_loss TEXT,
  take_profit TEXT,
  close_price TEXT,
  profit TEXT,
  balance TEXT NOT NULL,
  closed INTEGER NOT NULL DEFAULT 0,
  notification_handle TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_id ON orders(order_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "sqlite: migrate %q", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return stmt[:i]
	}
	return stmt
}

func (s *SQLiteStore) FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,order_id,action,symbol,direction,volume,open_price,stop_loss,take_profit,close_price,profit,balance,closed,notification_handle
FROM orders WHERE order_id=?
`, orderID)

	var (
		id                                    int64
		o                                     domain.Order
		action, volume, openPrice, balance    string
		direction, sl, tp, closePrice, profit sql.NullString
		closed                                int
	)
	err := row.Scan(&id, &o.OrderID, &action, &o.Symbol, &direction, &volume, &openPrice,
		&sl, &tp, &closePrice, &profit, &balance, &closed, &o.NotificationHandle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, ErrRecordNotFound
		}
		return domain.Order{}, lookupError("sqlite: find", err)
	}

	o.Action = domain.Action(action)
	o.Direction = domain.Direction(direction.String)
	o.Closed = closed != 0
	o.RecordHandle = strconv.FormatInt(id, 10)

	if err := scanDecimals(&o, volume, openPrice, balance, sl, tp, closePrice, profit); err != nil {
		return domain.Order{}, lookupError("sqlite: decode", err)
	}
	return o, nil
}

func scanDecimals(o *domain.Order, volume, openPrice, balance string, sl, tp, closePrice, profit sql.NullString) error {
	var err error
	if o.Volume, err = parseDecimal(colVolume, volume); err != nil {
		return err
	}
	if o.OpenPrice, err = parseDecimal(colOpenPrice, openPrice); err != nil {
		return err
	}
	if o.Balance, err = parseDecimal(colBalance, balance); err != nil {
		return err
	}
	if o.StopLoss, err = parseNullDecimal(colStopLoss, sl.String, sl.Valid); err != nil {
		return err
	}
	if o.TakeProfit, err = parseNullDecimal(colTakeProfit, tp.String, tp.Valid); err != nil {
		return err
	}
	if o.ClosePrice, err = parseNullDecimal(colClosePrice, closePrice.String, closePrice.Valid); err != nil {
		return err
	}
	o.Profit, err = parseNullDecimal(colProfit, profit.String, profit.Valid)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, order domain.Order) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	fields := append(createFields(order), field{"created_at", now}, field{"updated_at", now})

	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
		marks[i] = "?"
		args[i] = f.Value
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO orders (%s) VALUES (%s)", strings.Join(cols, ","), strings.Join(marks, ",")),
		args...)
	if err != nil {
		return "", writeError("sqlite: create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", writeError("sqlite: create", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) Update(ctx context.Context, recordHandle string, changes domain.Changes) error {
	id, err := strconv.ParseInt(recordHandle, 10, 64)
	if err != nil {
		return writeError("sqlite: update", errors.Wrapf(err, "record handle %q", recordHandle))
	}
	fields := changeFields(changes)
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		sets = append(sets, f.Column+"=?")
		args = append(args, f.Value)
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	res, err := s.db.ExecContext(ctx, "UPDATE orders SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
	if err != nil {
		return writeError("sqlite: update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return writeError("sqlite: update", fmt.Errorf("record %s does not exist", recordHandle))
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
