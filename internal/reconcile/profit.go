package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/traderelay/internal/domain"
)

// ProfitCalculator turns a close event into the profit value that is shown and stored.
type ProfitCalculator interface {
	Profit(existing domain.Order, ev domain.Event) decimal.Decimal
}

// CurrencyProfit passes the platform's reported profit through.
type CurrencyProfit struct{}

func (CurrencyProfit) Profit(_ domain.Order, ev domain.Event) decimal.Decimal {
	return ev.Profit.Decimal
}

var (
	pipStandard = decimal.New(1, -4)
	pipJPY      = decimal.New(1, -2)
)

// PipProfit measures the move from the stored open price to the close price in
// pips, positive when the trade went the position's way.
type PipProfit struct{}

func (PipProfit) Profit(existing domain.Order, ev domain.Event) decimal.Decimal {
	move := ev.ClosePrice.Decimal.Sub(existing.OpenPrice)
	if existing.Direction == domain.DirectionSell {
		move = move.Neg()
	}
	return move.Div(PipSize(existing.Symbol)).Round(1)
}

// PipSize is 0.01 for yen-quoted pairs and 0.0001 otherwise.
func PipSize(symbol string) decimal.Decimal {
	if strings.Contains(strings.ToUpper(symbol), "JPY") {
		return pipJPY
	}
	return pipStandard
}

func NewProfitCalculator(unit domain.ProfitUnit) ProfitCalculator {
	if unit == domain.ProfitPips {
		return PipProfit{}
	}
	return CurrencyProfit{}
}
