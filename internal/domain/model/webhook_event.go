package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookStatus is where a stored notification stands.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusCompleted WebhookStatus = "completed"
	WebhookStatusFailed    WebhookStatus = "failed"
	// WebhookStatusExhausted events are no longer retried.
	WebhookStatusExhausted WebhookStatus = "exhausted"
)

// WebhookMaxAttempts is how many failed attempts exhaust an event.
const WebhookMaxAttempts = 10

// WebhookEvent is a gateway notification as received, unique per gateway
// and event id. Data holds the normalized notification so a failed event
// can be replayed without the original signature.
type WebhookEvent struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Gateway     string         `gorm:"size:50;not null;uniqueIndex:idx_webhook_events_gateway_event,priority:1" json:"gateway"`
	EventID     string         `gorm:"size:255;not null;uniqueIndex:idx_webhook_events_gateway_event,priority:2" json:"event_id"`
	EventType   string         `gorm:"size:100" json:"event_type"`
	Status      WebhookStatus  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Data        datatypes.JSON `gorm:"not null" json:"data"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt *time.Time     `gorm:"index" json:"next_retry_at,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
