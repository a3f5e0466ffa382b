package repository

import (
	"context"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
)

// CreditCardRepository stores encrypted card references.
type CreditCardRepository interface {
	Create(ctx context.Context, card *model.CreditCard) error

	// GetLatestByPurchase returns the most recently stored card of a
	// purchase, or nil.
	GetLatestByPurchase(ctx context.Context, purchaseID int64) (*model.CreditCard, error)
}
