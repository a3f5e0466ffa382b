// Package money holds the fixed-point rules every ledger amount follows.
// Amounts are decimals with two fractional digits; nothing in the ledger
// uses floating point.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits stored for an amount.
const Places = 2

var (
	// Zero is 0.00.
	Zero = decimal.Zero

	// VerificationAmount is authorized and released to validate a card.
	VerificationAmount = decimal.New(1, -Places)

	// None is an absent optional amount.
	None = decimal.NullDecimal{}

	hundred = decimal.NewFromInt(100)
)

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Truncate drops anything below a cent.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Places)
}

// Some wraps d as a present optional amount.
func Some(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

// Parse reads a caller supplied amount. Negative amounts and amounts with
// more than two fractional digits are rejected.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return Zero, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	if !d.Equal(Truncate(d)) {
		return Zero, fmt.Errorf("invalid amount %q: at most %d decimal places", s, Places)
	}
	return Round(d), nil
}

// ParseOptional is Parse for an optional field; an empty string is None.
func ParseOptional(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return None, nil
	}
	d, err := Parse(s)
	if err != nil {
		return None, err
	}
	return Some(d), nil
}

// ToMinorUnits converts to integer cents.
func ToMinorUnits(d decimal.Decimal) int64 {
	return Round(d).Mul(hundred).IntPart()
}

// FromMinorUnits converts integer cents to an amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// String formats with exactly two fractional digits, e.g. "125.00".
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}
