package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recurringRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRecurringRepository creates a new recurring charge repository
func NewRecurringRepository(db *gorm.DB, logger *zap.Logger) domainRepo.RecurringRepository {
	return &recurringRepository{
		db:     db,
		logger: logger,
	}
}

func (r *recurringRepository) Create(ctx context.Context, charge *model.RecurringCharge) error {
	if err := r.db.WithContext(ctx).Create(charge).Error; err != nil {
		r.logger.Error("Failed to create recurring charge",
			zap.Int64("template_purchase_id", charge.TemplatePurchaseID),
			zap.Error(err))
		return fmt.Errorf("failed to create recurring charge: %w", err)
	}
	return nil
}

func (r *recurringRepository) Get(ctx context.Context, id int64) (*model.RecurringCharge, error) {
	var charge model.RecurringCharge

	err := r.db.WithContext(ctx).First(&charge, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recurring charge: %w", err)
	}

	return &charge, nil
}

func (r *recurringRepository) Save(ctx context.Context, charge *model.RecurringCharge) error {
	if err := r.db.WithContext(ctx).Save(charge).Error; err != nil {
		r.logger.Error("Failed to save recurring charge",
			zap.Int64("recurring_charge_id", charge.ID),
			zap.Error(err))
		return fmt.Errorf("failed to save recurring charge: %w", err)
	}
	return nil
}

func (r *recurringRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.RecurringCharge, error) {
	var charges []*model.RecurringCharge

	query := r.db.WithContext(ctx).
		Where("status = ? AND next_charge_at <= ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			model.RecurringStatusActive, now, now).
		Where("claimed_until IS NULL OR claimed_until <= ?", now).
		Order("next_charge_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&charges).Error; err != nil {
		r.logger.Error("Failed to list due recurring charges", zap.Error(err))
		return nil, fmt.Errorf("failed to list due recurring charges: %w", err)
	}

	return charges, nil
}

func (r *recurringRepository) Claim(ctx context.Context, charge *model.RecurringCharge, now, until time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RecurringCharge{}).
		Where("id = ? AND status = ? AND cycle = ? AND attempt_count = ?",
			charge.ID, model.RecurringStatusActive, charge.Cycle, charge.AttemptCount).
		Where("claimed_until IS NULL OR claimed_until <= ?", now).
		Update("claimed_until", until)
	if result.Error != nil {
		r.logger.Error("Failed to claim recurring charge",
			zap.Int64("recurring_charge_id", charge.ID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to claim recurring charge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	charge.ClaimedUntil = &until
	return true, nil
}
