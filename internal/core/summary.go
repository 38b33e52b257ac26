package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Totals maps a currency code to the sum of amounts recorded in it.
// Currencies without matching expenses are absent, never zero.
type Totals map[Currency]decimal.Decimal

// Add accumulates amount into the bucket for c.
func (t Totals) Add(c Currency, amount decimal.Decimal) {
	t[c] = t[c].Add(amount)
}

// Currencies returns the codes present in t, sorted.
func (t Totals) Currencies() []Currency {
	out := make([]Currency, 0, len(t))
	for c := range t {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a copy of t that shares no state with it.
func (t Totals) Clone() Totals {
	out := make(Totals, len(t))
	for c, v := range t {
		out[c] = v
	}
	return out
}

// Format renders t as "₱20.00 PHP, $15.50 USD". Empty totals render as empty.
func (t Totals) Format() string {
	parts := make([]string, 0, len(t))
	for _, c := range t.Currencies() {
		parts = append(parts, c.Symbol()+FormatAmount(t[c])+" "+string(c))
	}
	return strings.Join(parts, ", ")
}

// Summary groups the week-to-date, month and year totals.
type Summary struct {
	Weekly  Totals
	Monthly Totals
	Yearly  Totals
}
