package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the lifecycle event carried by a webhook.
type Action string

const (
	ActionOpen   Action = "open"
	ActionUpdate Action = "update"
	ActionClose  Action = "close"
)

// ParseAction accepts any letter case ("Open", "CLOSE").
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", NewError(KindInvalidAction, "parse action", fmt.Errorf("unknown action %q", s))
	}
	return a, nil
}

func (a Action) Valid() bool {
	switch a {
	case ActionOpen, ActionUpdate, ActionClose:
		return true
	}
	return false
}

func (a Action) String() string { return string(a) }

// Direction is the position side.
type Direction string

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
)

// ParseDirection returns "" for an empty input; direction is optional on the wire.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "buy", "long":
		return DirectionBuy, nil
	case "sell", "short":
		return DirectionSell, nil
	}
	return "", NewError(KindInvalidEvent, "parse direction", fmt.Errorf("unknown direction %q", s))
}

// Order is the reconciled record of one trading position.
type Order struct {
	OrderID   int64
	Action    Action
	Symbol    string
	Direction Direction // "" when the platform did not send one

	Volume    decimal.Decimal
	OpenPrice decimal.Decimal

	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal

	// close-time fields
	ClosePrice decimal.NullDecimal
	Profit     decimal.NullDecimal

	Balance decimal.Decimal
	Closed  bool

	// NotificationHandle is the reply anchor for the next notification about this order.
	NotificationHandle string
	// RecordHandle locates the record inside its store.
	RecordHandle string
}

// Changes is a partial field set; nil fields are left untouched by Apply and by store updates.
type Changes struct {
	Action     *Action
	Symbol     *string
	Direction  *Direction
	Volume     *decimal.Decimal
	OpenPrice  *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	ClosePrice *decimal.Decimal
	Profit     *decimal.Decimal
	Balance    *decimal.Decimal
	Closed     *bool

	NotificationHandle *string
}

// IsEmpty reports whether no field is supplied.
func (c Changes) IsEmpty() bool {
	return c.Action == nil && c.Symbol == nil && c.Direction == nil &&
		c.Volume == nil && c.OpenPrice == nil && c.StopLoss == nil && c.TakeProfit == nil &&
		c.ClosePrice == nil && c.Profit == nil && c.Balance == nil && c.Closed == nil &&
		c.NotificationHandle == nil
}

// Apply merges the supplied fields into o.
func (c Changes) Apply(o *Order) {
	if c.Action != nil {
		o.Action = *c.Action
	}
	if c.Symbol != nil {
		o.Symbol = *c.Symbol
	}
	if c.Direction != nil {
		o.Direction = *c.Direction
	}
	if c.Volume != nil {
		o.Volume = *c.Volume
	}
	if c.OpenPrice != nil {
		o.OpenPrice = *c.OpenPrice
	}
	if c.StopLoss != nil {
		o.StopLoss = decimal.NewNullDecimal(*c.StopLoss)
	}
	if c.TakeProfit != nil {
		o.TakeProfit = decimal.NewNullDecimal(*c.TakeProfit)
	}
	if c.ClosePrice != nil {
		o.ClosePrice = decimal.NewNullDecimal(*c.ClosePrice)
	}
	if c.Profit != nil {
		o.Profit = decimal.NewNullDecimal(*c.Profit)
	}
	if c.Balance != nil {
		o.Balance = *c.Balance
	}
	if c.Closed != nil {
		o.Closed = *c.Closed
	}
	if c.NotificationHandle != nil {
		o.NotificationHandle = *c.NotificationHandle
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// NullPtr converts an optional decimal into a Changes field.
func NullPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return Ptr(d.Decimal)
}
