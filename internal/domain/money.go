package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money pairs a decimal amount with its currency. All cart math goes through
// decimal arithmetic; rounding to the configured precision happens at
// presentation points, not during accumulation.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value from an amount and currency code.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// FormatContext carries display parameters. It is passed explicitly into
// formatting calls instead of living in package-level state, so long-lived
// processes cannot leak overrides across requests.
type FormatContext struct {
	Currency  string
	Precision int32
}

// Rounded returns a copy rounded half-up to the given precision.
func (m Money) Rounded(precision int32) Money {
	return Money{Amount: m.Amount.Round(precision), Currency: m.Currency}
}

// Format renders the amount at the context's precision, e.g. "39.98 USD".
func (m Money) Format(fc FormatContext) string {
	precision := fc.Precision
	currency := m.Currency
	if fc.Currency != "" {
		currency = fc.Currency
	}
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(precision), currency)
}

// StringFixed renders just the amount at the given precision.
func (m Money) StringFixed(precision int32) string {
	return m.Amount.StringFixed(precision)
}
