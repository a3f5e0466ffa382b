package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

// ResolveAmount picks the amount to record: explicit when given, else
// linked when given and non-zero, else fallback.
func ResolveAmount(explicit, linked decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if explicit.Valid {
		return money.Round(explicit.Decimal)
	}
	if linked.Valid && !linked.Decimal.IsZero() {
		return money.Round(linked.Decimal)
	}
	return money.Round(fallback)
}

// CapturableRemaining is how much of auth may still be captured: the
// authorized amount, capped by what the purchase has not yet collected.
func CapturableRemaining(auth *model.Authorization, b Balances) decimal.Decimal {
	if auth.Complete {
		return money.Zero
	}
	uncollected := b.Total.Sub(b.TotalPayments)
	capturable := money.Truncate(money.Min(auth.Amount, uncollected))
	if capturable.IsNegative() {
		return money.Zero
	}
	return capturable
}

// ClampCapture limits requested to capturable and reports whether it had to.
func ClampCapture(requested, capturable decimal.Decimal) (decimal.Decimal, bool) {
	if requested.GreaterThan(capturable) {
		return capturable, true
	}
	return requested, false
}
