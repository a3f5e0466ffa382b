package repository

import (
	"context"

	"github.com/wekeepgrowing/bursar/internal/domain/ledger"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
)

// LedgerRepository reads the ledger and opens per-purchase write
// transactions. Only the payment recorder writes through it.
type LedgerRepository interface {
	// CreatePurchase stores a new purchase with its line items.
	CreatePurchase(ctx context.Context, purchase *model.Purchase) error

	// GetPurchase loads a purchase with all of its child rows.
	// Returns nil when it does not exist.
	GetPurchase(ctx context.Context, id int64) (*model.Purchase, error)

	// GetPurchaseByOrderNo loads a purchase by order number. Returns nil when
	// it does not exist.
	GetPurchaseByOrderNo(ctx context.Context, orderNo string) (*model.Purchase, error)

	// GetAuthorization returns nil when it does not exist.
	GetAuthorization(ctx context.Context, id int64) (*model.Authorization, error)

	// FindIncompleteAuthorizations lists the authorizations of a purchase
	// through one gateway that are neither captured nor released.
	FindIncompleteAuthorizations(ctx context.Context, purchaseID int64, key string) ([]*model.Authorization, error)

	// WithPurchaseLock runs fn in one transaction holding the purchase row
	// lock. Writes made through tx commit together or not at all.
	WithPurchaseLock(ctx context.Context, purchaseID int64, fn func(tx LedgerTx) error) error
}

// LedgerTx is the write side of a locked purchase.
type LedgerTx interface {
	// Purchase is the locked purchase row, without children.
	Purchase() *model.Purchase

	// Balances recomputes the purchase balances from the rows as they are
	// inside this transaction.
	Balances() (ledger.Balances, error)

	FindPending(key string) (*model.PendingPayment, error)
	ListPending() ([]*model.PendingPayment, error)
	CreatePending(p *model.PendingPayment) error
	DeletePending(p *model.PendingPayment) error

	GetPayment(id int64) (*model.Payment, error)
	CreatePayment(p *model.Payment) error
	SavePayment(p *model.Payment) error
	DeletePayment(p *model.Payment) error
	// PaymentExists reports whether a non-placeholder payment of the
	// purchase carries the transaction id.
	PaymentExists(transactionID string) (bool, error)
	// FindPaymentByTransaction returns that payment, or nil.
	FindPaymentByTransaction(transactionID string) (*model.Payment, error)

	GetAuthorization(id int64) (*model.Authorization, error)
	FindIncompleteAuthorizationByTransaction(transactionID string) (*model.Authorization, error)
	CreateAuthorization(a *model.Authorization) error
	SaveAuthorization(a *model.Authorization) error

	CreateFailure(f *model.PaymentFailure) error
}
