package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk representation of an expense timestamp.
// Lexicographic order of formatted values equals chronological order.
const DateLayout = "2006-01-02 15:04:05"

// DefaultCurrency is used when an expense is recorded without a currency.
const DefaultCurrency Currency = "USD"

type (
	Currency string

	Expense struct {
		ID          int64
		Date        time.Time
		Description string
		Amount      decimal.Decimal
		Category    string
		Currency    Currency
	}

	// ExpenseInput carries the user-editable fields of an expense. Amount is
	// kept as entered so that parsing failures surface as ErrInvalidAmount.
	ExpenseInput struct {
		Description string
		Amount      string
		Category    string
		Currency    Currency
	}
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageWrite       = errors.New("storage write failure")
	ErrStorageRead        = errors.New("storage read failure")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNotFound           = errors.New("expense not found")

	ErrEmptyDescription    = errors.New("empty description")
	ErrEmptyCategory       = errors.New("empty category")
	ErrEmptyAmount         = errors.New("empty amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

var currencySymbols = map[Currency]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"PHP": "₱",
	"AUD": "A$",
	"CAD": "C$",
	"CHF": "Fr",
	"CNY": "¥",
	"INR": "₹",
}

var supportedCurrencies = []Currency{"USD", "EUR", "GBP", "JPY", "PHP", "AUD", "CAD", "CHF", "CNY", "INR"}

// SupportedCurrencies returns the closed set of currency codes in display order.
func SupportedCurrencies() []Currency {
	return append([]Currency(nil), supportedCurrencies...)
}

// NormalizeCurrency trims and upper-cases c, falling back to DefaultCurrency when empty.
func NormalizeCurrency(c Currency) Currency {
	s := strings.ToUpper(strings.TrimSpace(string(c)))
	if s == "" {
		return DefaultCurrency
	}
	return Currency(s)
}

// Supported reports whether c belongs to the closed set.
func (c Currency) Supported() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display prefix for c, or "" for unknown codes.
func (c Currency) Symbol() string {
	return currencySymbols[c]
}

func (c Currency) String() string {
	return string(c)
}

// Validate performs the checks the entry form applies before handing an
// input to the store. The store itself only requires a parseable amount.
func (in ExpenseInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(in.Amount) == "" {
		return ErrEmptyAmount
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if _, err := ParseAmount(in.Amount); err != nil {
		return err
	}
	if !NormalizeCurrency(in.Currency).Supported() {
		return ErrUnsupportedCurrency
	}
	return nil
}

// FormatDate renders t in the on-disk layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate reads an on-disk timestamp as wall-clock time in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}
