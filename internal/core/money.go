// Package core provides the expense domain types, the error taxonomy shared by
// the store and its callers, amount parsing and calendar period arithmetic.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input into a decimal amount.
//
// Any finite real number is accepted, including negative values and
// exponent notation. Surrounding whitespace is ignored. Everything else,
// including NaN and infinities, yields ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("10.50") -> 10.5, nil
//	ParseAmount("-3")    -> -3, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	// REAL columns hold float64; reject values that would not survive the trip.
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// StoredAmount returns d as it reads back from a REAL column.
func StoredAmount(d decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(d.InexactFloat64())
}

// FormatAmount renders d with thousands separators and two fraction digits,
// e.g. 1234.5 -> "1,234.50".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
