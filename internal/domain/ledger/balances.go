// Package ledger derives a purchase's balances from its rows. Nothing here
// is cached; callers recompute from the rows they just read.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

// Balances is a snapshot of a purchase's derived amounts.
// Remaining == Total - TotalPayments - AuthorizedRemaining always holds.
type Balances struct {
	Total               decimal.Decimal `json:"total"`
	TotalPayments       decimal.Decimal `json:"total_payments"`
	AuthorizedRemaining decimal.Decimal `json:"authorized_remaining"`
	Remaining           decimal.Decimal `json:"remaining"`
}

// PaidInFull reports whether nothing is left to charge.
func (b Balances) PaidInFull() bool {
	return !b.Remaining.IsPositive()
}

// Overpaid reports whether more was collected or reserved than the total.
func (b Balances) Overpaid() bool {
	return b.Remaining.IsNegative()
}

// TotalPayments sums the successful payments.
func TotalPayments(payments []model.Payment) decimal.Decimal {
	sum := money.Zero
	for i := range payments {
		if payments[i].Success {
			sum = sum.Add(payments[i].Amount)
		}
	}
	return sum
}

// AuthorizedRemaining sums the authorizations not yet captured or released.
func AuthorizedRemaining(auths []model.Authorization) decimal.Decimal {
	sum := money.Zero
	for i := range auths {
		if !auths[i].Complete {
			sum = sum.Add(auths[i].Amount)
		}
	}
	return sum
}

// Compute derives the balances of a purchase with the given total.
func Compute(total decimal.Decimal, payments []model.Payment, auths []model.Authorization) Balances {
	paid := TotalPayments(payments)
	authorized := AuthorizedRemaining(auths)
	return Balances{
		Total:               total,
		TotalPayments:       paid,
		AuthorizedRemaining: authorized,
		Remaining:           total.Sub(paid).Sub(authorized),
	}
}

// ForPurchase computes from a purchase loaded with its payments and
// authorizations.
func ForPurchase(p *model.Purchase) Balances {
	return Compute(p.Total, p.Payments, p.Authorizations)
}
