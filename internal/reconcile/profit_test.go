package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/betbot/traderelay/internal/domain"
)

func TestPipProfit(t *testing.T) {
	tests := []struct {
		name      string
		symbol    string
		direction domain.Direction
		open      string
		close     string
		want      string
	}{
		{"buy win", "EURUSD", domain.DirectionBuy, "1.08500", "1.09000", "50"},
		{"buy loss", "EURUSD", domain.DirectionBuy, "1.08500", "1.08250", "-25"},
		{"sell win", "GBPUSD", domain.DirectionSell, "1.27000", "1.26855", "14.5"},
		{"jpy pair", "USDJPY", domain.DirectionBuy, "150.000", "150.237", "23.7"},
		{"no direction counts as buy", "eurjpy", "", "160.00", "159.50", "-50"},
		{"rounds to one decimal", "EURUSD", domain.DirectionBuy, "1.00000", "1.000026", "0.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := domain.Order{
				Symbol:    tt.symbol,
				Direction: tt.direction,
				OpenPrice: decimal.RequireFromString(tt.open),
			}
			ev := domain.Event{ClosePrice: nd(tt.close), Profit: nd("999")}
			got := PipProfit{}.Profit(existing, ev)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCurrencyProfitPassesThrough(t *testing.T) {
	got := CurrencyProfit{}.Profit(domain.Order{}, domain.Event{Profit: nd("-12.34")})
	assert.Equal(t, "-12.34", got.String())
}

func TestNewProfitCalculator(t *testing.T) {
	assert.IsType(t, PipProfit{}, NewProfitCalculator(domain.ProfitPips))
	assert.IsType(t, CurrencyProfit{}, NewProfitCalculator(domain.ProfitCurrency))
	assert.IsType(t, CurrencyProfit{}, NewProfitCalculator(""))
}

func TestPipSize(t *testing.T) {
	assert.Equal(t, "0.01", PipSize("GBPJPY").String())
	assert.Equal(t, "0.0001", PipSize("XAUUSD").String())
}
