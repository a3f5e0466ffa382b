package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

// Pending events younger than this belong to the request still handling them.
const pendingGrace = 5 * time.Minute

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *webhookRepository) byKey(ctx context.Context, gateway, eventID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("gateway = ? AND event_id = ?", gateway, eventID)
}

func (r *webhookRepository) Record(ctx context.Context, gateway, eventID, eventType string, data json.RawMessage) (bool, error) {
	event := &model.WebhookEvent{
		Gateway:   gateway,
		EventID:   eventID,
		EventType: eventType,
		Status:    model.WebhookStatusPending,
		Data:      datatypes.JSON(data),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		r.logger.Error("Failed to record webhook event",
			zap.String("gateway", gateway),
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to record webhook event: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *webhookRepository) Find(ctx context.Context, gateway, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.byKey(ctx, gateway, eventID).Take(&event).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find webhook event: %w", err)
	}
	return &event, nil
}

func (r *webhookRepository) Complete(ctx context.Context, gateway, eventID string) error {
	now := r.now()
	result := r.byKey(ctx, gateway, eventID).Updates(map[string]interface{}{
		"status":        model.WebhookStatusCompleted,
		"processed_at":  now,
		"next_retry_at": nil,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to complete webhook event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event %s/%s not found", gateway, eventID)
	}
	return nil
}

func (r *webhookRepository) Fail(ctx context.Context, gateway, eventID string, cause error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event model.WebhookEvent
		if err := lockForUpdate(tx).
			Where("gateway = ? AND event_id = ?", gateway, eventID).
			Take(&event).Error; err != nil {
			return fmt.Errorf("failed to load webhook event: %w", err)
		}

		attempts := event.Attempts + 1
		if attempts >= model.WebhookMaxAttempts {
			if err := tx.Model(&event).Updates(map[string]interface{}{
				"status":        model.WebhookStatusExhausted,
				"attempts":      attempts,
				"last_error":    cause.Error(),
				"next_retry_at": nil,
			}).Error; err != nil {
				return fmt.Errorf("failed to fail webhook event: %w", err)
			}

			r.logger.Error("Webhook event exhausted",
				zap.String("gateway", gateway),
				zap.String("event_id", eventID),
				zap.Int("attempts", attempts),
				zap.Error(cause))
			return nil
		}

		next := r.now().Add(model.RetryBackoff(attempts))
		if err := tx.Model(&event).Updates(map[string]interface{}{
			"status":        model.WebhookStatusFailed,
			"attempts":      attempts,
			"last_error":    cause.Error(),
			"next_retry_at": next,
		}).Error; err != nil {
			return fmt.Errorf("failed to fail webhook event: %w", err)
		}

		r.logger.Warn("Webhook event failed",
			zap.String("gateway", gateway),
			zap.String("event_id", eventID),
			zap.Int("attempts", attempts),
			zap.Time("next_retry_at", next),
			zap.Error(cause))
		return nil
	})
}

// ListRetryable returns failed events that are due and pending events
// abandoned past the grace period, oldest first.
func (r *webhookRepository) ListRetryable(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	now := r.now()
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", model.WebhookStatusPending, now.Add(-pendingGrace)).
		Or("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", model.WebhookStatusFailed, now).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []*model.WebhookEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list retryable webhook events: %w", err)
	}
	return events, nil
}
