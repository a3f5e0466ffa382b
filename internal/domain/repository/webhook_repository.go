package repository

import (
	"context"
	"encoding/json"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
)

// WebhookRepository keeps received notifications for dedupe and replay.
// Events are keyed by gateway and event id.
type WebhookRepository interface {
	// Record stores the event unless it is already known and reports
	// whether it was stored.
	Record(ctx context.Context, gateway, eventID, eventType string, data json.RawMessage) (bool, error)
	Find(ctx context.Context, gateway, eventID string) (*model.WebhookEvent, error)
	Complete(ctx context.Context, gateway, eventID string) error
	// Fail counts a failed attempt and schedules the next one, or marks
	// the event exhausted once it has used up its attempts.
	Fail(ctx context.Context, gateway, eventID string, cause error) error
	ListRetryable(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
}
