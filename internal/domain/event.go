package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Event is one lifecycle notification from the trading platform.
// Optional numeric fields stay invalid when the platform omitted them.
type Event struct {
	Action    Action
	OrderID   int64
	Symbol    string
	Direction Direction

	Volume     decimal.NullDecimal
	OpenPrice  decimal.NullDecimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	ClosePrice decimal.NullDecimal
	Profit     decimal.NullDecimal
	Balance    decimal.NullDecimal
}

// Validate checks the per-action required field set.
func (e Event) Validate() error {
	if !e.Action.Valid() {
		return NewError(KindInvalidAction, "validate event", errors.New("unknown action "+string(e.Action)))
	}
	if e.OrderID <= 0 {
		return NewError(KindInvalidEvent, "validate event", errors.New("orderId is required"))
	}

	var missing []string
	need := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	switch e.Action {
	case ActionOpen:
		need(e.Symbol != "", "symbol")
		need(e.Volume.Valid, "volume")
		need(e.OpenPrice.Valid, "openPrice")
		need(e.Balance.Valid, "balance")
	case ActionUpdate:
		if !e.StopLoss.Valid && !e.TakeProfit.Valid {
			return NewError(KindInvalidEvent, "validate event", errors.New("update needs stopLoss or takeProfit"))
		}
	case ActionClose:
		need(e.ClosePrice.Valid, "closePrice")
		need(e.Profit.Valid, "profit")
		need(e.Balance.Valid, "balance")
	}

	if len(missing) > 0 {
		return NewError(KindInvalidEvent, "validate event", errors.New("missing required fields: "+strings.Join(missing, ", ")))
	}
	return nil
}

// ChangeLabel names the protective levels an update touches: "SL", "TP" or "SL&TP".
// Both levels in one event count as a single combined change. A level sent as zero
// (the platform's way of clearing it) only counts when no non-zero level is present.
func (e Event) ChangeLabel() string {
	if l := changeLabel(nonZero(e.StopLoss), nonZero(e.TakeProfit)); l != "" {
		return l
	}
	return changeLabel(e.StopLoss.Valid, e.TakeProfit.Valid)
}

func changeLabel(sl, tp bool) string {
	switch {
	case sl && tp:
		return "SL&TP"
	case sl:
		return "SL"
	case tp:
		return "TP"
	}
	return ""
}

func nonZero(d decimal.NullDecimal) bool {
	return d.Valid && !d.Decimal.IsZero()
}
