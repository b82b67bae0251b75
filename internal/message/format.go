// Package message renders lifecycle events as chat notification text.
package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/traderelay/internal/domain"
)

const (
	pricePlaces  = 5
	amountPlaces = 2
	pipPlaces    = 1

	placeholder = "N/A"

	boxTop    = "┌────────────────"
	boxBottom = "└────────────────"
	boxLine   = "│ ▪ "
)

// Options tunes rendering.
type Options struct {
	// ProfitUnit selects "$12.50" (currency) or "12.5 pips" rendering of close profit.
	ProfitUnit domain.ProfitUnit
}

// Formatter is pure: the same event always renders the same text.
type Formatter struct {
	opts Options
}

func NewFormatter(opts Options) *Formatter {
	if !opts.ProfitUnit.Valid() {
		opts.ProfitUnit = domain.ProfitCurrency
	}
	return &Formatter{opts: opts}
}

// Format renders the Markdown message for ev.
func (f *Formatter) Format(ev domain.Event) (string, error) {
	switch ev.Action {
	case domain.ActionOpen:
		return f.open(ev), nil
	case domain.ActionUpdate:
		return f.update(ev), nil
	case domain.ActionClose:
		return f.close(ev), nil
	}
	return "", domain.NewError(domain.KindInvalidAction, "format message",
		errors.New("no template for action "+string(ev.Action)))
}

func (f *Formatter) open(ev domain.Event) string {
	dir := placeholder
	if ev.Direction != "" {
		dir = string(ev.Direction)
	}
	symbol := placeholder
	if ev.Symbol != "" {
		symbol = escape(ev.Symbol)
	}
	return box("📈 *Position opened* 📈",
		fmt.Sprintf("Pair: %s (%s)", symbol, dir),
		"Order: #"+fmt.Sprint(ev.OrderID),
		"Price: "+price(ev.OpenPrice),
		"Lot: "+amount(ev.Volume),
		"SL: "+price(ev.StopLoss),
		"TP: "+price(ev.TakeProfit),
		"Balance: "+money(ev.Balance),
	)
}

func (f *Formatter) update(ev domain.Event) string {
	label := ev.ChangeLabel()
	if label == "" {
		label = "SL/TP"
	}
	lines := []string{"Order: #" + fmt.Sprint(ev.OrderID)}
	if ev.StopLoss.Valid {
		lines = append(lines, "SL: "+price(ev.StopLoss))
	}
	if ev.TakeProfit.Valid {
		lines = append(lines, "TP: "+price(ev.TakeProfit))
	}
	return box("🔄 *"+label+" updated* 🔄", lines...)
}

func (f *Formatter) close(ev domain.Event) string {
	profit := money(ev.Profit)
	if f.opts.ProfitUnit == domain.ProfitPips {
		profit = pips(ev.Profit)
	}
	return box("📉 *Position closed* 📉",
		"Order: #"+fmt.Sprint(ev.OrderID),
		"Profit: "+profit,
		"Close price: "+price(ev.ClosePrice),
		"Balance: "+money(ev.Balance),
	)
}

func box(title string, lines ...string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(boxTop)
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(boxLine)
		b.WriteString(l)
	}
	b.WriteString("\n")
	b.WriteString(boxBottom)
	return b.String()
}

func price(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	return d.Decimal.StringFixed(pricePlaces)
}

func amount(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	return d.Decimal.StringFixed(amountPlaces)
}

// money renders "$10000.00" and "-$12.50".
func money(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	if d.Decimal.IsNegative() {
		return "-$" + d.Decimal.Abs().StringFixed(amountPlaces)
	}
	return "$" + d.Decimal.StringFixed(amountPlaces)
}

func pips(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	return d.Decimal.StringFixed(pipPlaces) + " pips"
}

// Telegram legacy Markdown: entity characters outside an entity take a backslash.
var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
