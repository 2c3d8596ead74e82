// Package money holds peso arithmetic helpers shared by the calculators.
//
// Amounts are decimal.Decimal with two fractional digits. Rounding is
// half-up (half away from zero for negative values) at the last step of a
// calculation, never on intermediate products.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the ledger accepts.
const Currency = "PHP"

// Places is the number of fractional digits kept on stored amounts.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds d to centavos.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns amount × pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// Parse reads a peso amount from its string form.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}
