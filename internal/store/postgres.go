package store

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/pkg/logger"
)

type PostgresConfig struct {
	DataSource                 string
	MaxOpenConns               int
	MaxIdleConns               int
	ConnMaxLifeTimeMiliseconds int64
	// ConnectTimeout bounds the startup retry loop; 0 means one minute.
	ConnectTimeout time.Duration
}

// orderRow is the relay_orders table. Nullable columns hold the optional fields.
type orderRow struct {
	ID                 int64               `gorm:"primaryKey;autoIncrement"`
	OrderID            int64               `gorm:"column:order_id;uniqueIndex;not null"`
	Action             string              `gorm:"column:action;size:16;not null"`
	Symbol             string              `gorm:"column:symbol;size:64;not null"`
	Direction          *string             `gorm:"column:direction;size:8"`
	Volume             decimal.Decimal     `gorm:"column:volume;type:numeric;not null"`
	OpenPrice          decimal.Decimal     `gorm:"column:open_price;type:numeric;not null"`
	StopLoss           decimal.NullDecimal `gorm:"column:stop_loss;type:numeric"`
	TakeProfit         decimal.NullDecimal `gorm:"column:take_profit;type:numeric"`
	ClosePrice         decimal.NullDecimal `gorm:"column:close_price;type:numeric"`
	Profit             decimal.NullDecimal `gorm:"column:profit;type:numeric"`
	Balance            decimal.Decimal     `gorm:"column:balance;type:numeric;not null"`
	Closed             bool                `gorm:"column:closed;not null;default:false"`
	NotificationHandle string              `gorm:"column:notification_handle;not null;default:''"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (orderRow) TableName() string { return "relay_orders" }

// PostgresStore is the gorm-backed record store.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres retries the initial connection with exponential backoff, then migrates the table.
func OpenPostgres(cfg PostgresConfig) (*PostgresStore, error) {
	gl := gormlogger.New(logrus.StandardLogger(), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = cfg.ConnectTimeout
	if boff.MaxElapsedTime == 0 {
		boff.MaxElapsedTime = time.Minute
	}

	var db *gorm.DB
	err := backoff.Retry(func() error {
		var err error
		db, err = gorm.Open(pg.Open(cfg.DataSource), &gorm.Config{Logger: gl})
		if err != nil {
			logger.Warnf("connect postgres failed, retrying: %v", err)
		}
		return err
	}, boff)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: open")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get DB instance")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifeTimeMiliseconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeTimeMiliseconds) * time.Millisecond)
	}

	if err := db.AutoMigrate(&orderRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "postgres: migrate")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *PostgresStore) FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error) {
	var row orderRow
	err := s.dbWithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, ErrRecordNotFound
		}
		return domain.Order{}, lookupError("postgres: find", err)
	}

	o := domain.Order{
		OrderID:            row.OrderID,
		Action:             domain.Action(row.Action),
		Symbol:             row.Symbol,
		Volume:             row.Volume,
		OpenPrice:          row.OpenPrice,
		StopLoss:           row.StopLoss,
		TakeProfit:         row.TakeProfit,
		ClosePrice:         row.ClosePrice,
		Profit:             row.Profit,
		Balance:            row.Balance,
		Closed:             row.Closed,
		NotificationHandle: row.NotificationHandle,
		RecordHandle:       strconv.FormatInt(row.ID, 10),
	}
	if row.Direction != nil {
		o.Direction = domain.Direction(*row.Direction)
	}
	return o, nil
}

func (s *PostgresStore) Create(ctx context.Context, order domain.Order) (string, error) {
	row := orderRow{
		OrderID:            order.OrderID,
		Action:             string(order.Action),
		Symbol:             order.Symbol,
		Volume:             order.Volume,
		OpenPrice:          order.OpenPrice,
		StopLoss:           order.StopLoss,
		TakeProfit:         order.TakeProfit,
		ClosePrice:         order.ClosePrice,
		Profit:             order.Profit,
		Balance:            order.Balance,
		Closed:             order.Closed,
		NotificationHandle: order.NotificationHandle,
	}
	if order.Direction != "" {
		row.Direction = domain.Ptr(string(order.Direction))
	}
	if err := s.dbWithContext(ctx).Create(&row).Error; err != nil {
		return "", writeError("postgres: create", err)
	}
	return strconv.FormatInt(row.ID, 10), nil
}

func (s *PostgresStore) Update(ctx context.Context, recordHandle string, changes domain.Changes) error {
	id, err := strconv.ParseInt(recordHandle, 10, 64)
	if err != nil {
		return writeError("postgres: update", errors.Wrapf(err, "record handle %q", recordHandle))
	}
	fields := changeFields(changes)
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Column] = f.Value
	}

	res := s.dbWithContext(ctx).Model(&orderRow{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return writeError("postgres: update", res.Error)
	}
	if res.RowsAffected == 0 {
		return writeError("postgres: update", errors.Errorf("record %s does not exist", recordHandle))
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
