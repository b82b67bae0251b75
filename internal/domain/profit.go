package domain

// ProfitUnit says how a stored profit value is measured.
type ProfitUnit string

const (
	ProfitCurrency ProfitUnit = "currency"
	ProfitPips     ProfitUnit = "pips"
)

func (u ProfitUnit) Valid() bool {
	return u == ProfitCurrency || u == ProfitPips
}
