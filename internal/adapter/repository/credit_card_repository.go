package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type creditCardRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCreditCardRepository creates a new credit card repository
func NewCreditCardRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CreditCardRepository {
	return &creditCardRepository{
		db:     db,
		logger: logger,
	}
}

func (r *creditCardRepository) Create(ctx context.Context, card *model.CreditCard) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		r.logger.Error("Failed to store credit card",
			zap.Int64("purchase_id", card.PurchaseID),
			zap.String("last_four", card.LastFour),
			zap.Error(err))
		return fmt.Errorf("failed to store credit card: %w", err)
	}
	return nil
}

func (r *creditCardRepository) GetLatestByPurchase(ctx context.Context, purchaseID int64) (*model.CreditCard, error) {
	var card model.CreditCard

	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("id DESC").
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credit card: %w", err)
	}

	return &card, nil
}
