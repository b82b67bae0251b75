// Package ingest turns inbound payloads into validated domain events and feeds
// them to the reconciler.
package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/traderelay/internal/domain"
)

// payload is the webhook body. Each canonical field has the alias the
// trading-platform script has always sent alongside it.
type payload struct {
	Action    string              `json:"action"`
	OrderID   decimal.NullDecimal `json:"orderId"`
	Position  decimal.NullDecimal `json:"position"`
	Symbol    string              `json:"symbol"`
	Direction string              `json:"direction"`

	Volume     decimal.NullDecimal `json:"volume"`
	OpenPrice  decimal.NullDecimal `json:"openPrice"`
	Price      decimal.NullDecimal `json:"price"`
	StopLoss   decimal.NullDecimal `json:"stopLoss"`
	SL         decimal.NullDecimal `json:"sl"`
	TakeProfit decimal.NullDecimal `json:"takeProfit"`
	TP         decimal.NullDecimal `json:"tp"`
	ClosePrice decimal.NullDecimal `json:"closePrice"`
	Outprice   decimal.NullDecimal `json:"outprice"`
	Profit     decimal.NullDecimal `json:"profit"`
	Balance    decimal.NullDecimal `json:"balance"`
}

// Decode parses and validates one inbound event. Action names are
// case-insensitive; `price` means the open price on Open and the close price
// on Close.
func Decode(body []byte) (domain.Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Event{}, domain.NewError(domain.KindInvalidEvent, "decode event", errors.Wrap(err, "malformed JSON"))
	}
	return p.event()
}

func (p payload) event() (domain.Event, error) {
	action, err := domain.ParseAction(p.Action)
	if err != nil {
		return domain.Event{}, err
	}
	direction, err := domain.ParseDirection(p.Direction)
	if err != nil {
		return domain.Event{}, err
	}
	orderID, err := parseOrderID(first(p.OrderID, p.Position))
	if err != nil {
		return domain.Event{}, err
	}

	ev := domain.Event{
		Action:     action,
		OrderID:    orderID,
		Symbol:     strings.TrimSpace(p.Symbol),
		Direction:  direction,
		Volume:     p.Volume,
		OpenPrice:  p.OpenPrice,
		StopLoss:   first(p.StopLoss, p.SL),
		TakeProfit: first(p.TakeProfit, p.TP),
		ClosePrice: first(p.ClosePrice, p.Outprice),
		Profit:     p.Profit,
		Balance:    p.Balance,
	}
	switch action {
	case domain.ActionOpen:
		ev.OpenPrice = first(ev.OpenPrice, p.Price)
	case domain.ActionClose:
		ev.ClosePrice = first(ev.ClosePrice, p.Price)
	}

	if err := ev.Validate(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func parseOrderID(d decimal.NullDecimal) (int64, error) {
	if !d.Valid {
		return 0, domain.NewError(domain.KindInvalidEvent, "decode event", errors.New("orderId is required"))
	}
	if !d.Decimal.IsInteger() || !d.Decimal.IsPositive() {
		return 0, domain.NewError(domain.KindInvalidEvent, "decode event",
			fmt.Errorf("orderId must be a positive integer, got %s", d.Decimal))
	}
	if d.Decimal.GreaterThan(maxOrderID) {
		return 0, domain.NewError(domain.KindInvalidEvent, "decode event",
			fmt.Errorf("orderId %s is out of range", d.Decimal))
	}
	return d.Decimal.IntPart(), nil
}

var maxOrderID = decimal.NewFromInt(math.MaxInt64)

func first(vals ...decimal.NullDecimal) decimal.NullDecimal {
	for _, v := range vals {
		if v.Valid {
			return v
		}
	}
	return decimal.NullDecimal{}
}
