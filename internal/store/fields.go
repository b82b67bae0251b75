package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/traderelay/internal/domain"
)

// column names shared by the sqlite, postgres and redis backends.
const (
	colOrderID            = "order_id"
	colAction             = "action"
	colSymbol             = "symbol"
	colDirection          = "direction"
	colVolume             = "volume"
	colOpenPrice          = "open_price"
	colStopLoss           = "stop_loss"
	colTakeProfit         = "take_profit"
	colClosePrice         = "close_price"
	colProfit             = "profit"
	colBalance            = "balance"
	colClosed             = "closed"
	colNotificationHandle = "notification_handle"
)

type field struct {
	Column string
	Value  any
}

// changeFields lists the supplied fields of c in a fixed column order.
// Decimals are rendered as exact strings.
func changeFields(c domain.Changes) []field {
	var out []field
	add := func(col string, v any) { out = append(out, field{Column: col, Value: v}) }

	if c.Action != nil {
		add(colAction, string(*c.Action))
	}
	if c.Symbol != nil {
		add(colSymbol, *c.Symbol)
	}
	if c.Direction != nil {
		add(colDirection, string(*c.Direction))
	}
	for _, d := range []struct {
		col string
		v   *decimal.Decimal
	}{
		{colVolume, c.Volume},
		{colOpenPrice, c.OpenPrice},
		{colStopLoss, c.StopLoss},
		{colTakeProfit, c.TakeProfit},
		{colClosePrice, c.ClosePrice},
		{colProfit, c.Profit},
		{colBalance, c.Balance},
	} {
		if d.v != nil {
			add(d.col, d.v.String())
		}
	}
	if c.Closed != nil {
		add(colClosed, *c.Closed)
	}
	if c.NotificationHandle != nil {
		add(colNotificationHandle, *c.NotificationHandle)
	}
	return out
}

// createFields is the full field set of a new record. Optional values the
// event did not carry are left out so a later partial update cannot be
// confused with a stored zero.
func createFields(o domain.Order) []field {
	out := []field{
		{colOrderID, o.OrderID},
		{colAction, string(o.Action)},
		{colSymbol, o.Symbol},
	}
	if o.Direction != "" {
		out = append(out, field{colDirection, string(o.Direction)})
	}
	out = append(out,
		field{colVolume, o.Volume.String()},
		field{colOpenPrice, o.OpenPrice.String()},
	)
	for _, d := range []struct {
		col string
		v   decimal.NullDecimal
	}{
		{colStopLoss, o.StopLoss},
		{colTakeProfit, o.TakeProfit},
		{colClosePrice, o.ClosePrice},
		{colProfit, o.Profit},
	} {
		if d.v.Valid {
			out = append(out, field{d.col, d.v.Decimal.String()})
		}
	}
	out = append(out,
		field{colBalance, o.Balance.String()},
		field{colClosed, o.Closed},
		field{colNotificationHandle, o.NotificationHandle},
	)
	return out
}

func parseDecimal(col, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %w", col, err)
	}
	return d, nil
}

func parseNullDecimal(col string, s string, valid bool) (decimal.NullDecimal, error) {
	if !valid || s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("column %s: %w", col, err)
	}
	return decimal.NewNullDecimal(d), nil
}
