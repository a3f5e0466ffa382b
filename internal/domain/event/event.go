package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tells subscribers what completed.
type Kind string

const (
	KindAuthorized Kind = "authorized"
	KindCaptured   Kind = "captured"
)

// PaymentCompleted is published after a successful ledger write commits.
type PaymentCompleted struct {
	PurchaseID      int64           `json:"purchase_id"`
	PaymentID       int64           `json:"payment_id"`
	AuthorizationID *int64          `json:"authorization_id,omitempty"`
	Gateway         string          `json:"gateway"`
	Amount          decimal.Decimal `json:"amount"`
	Kind            Kind            `json:"kind"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// Publisher delivers events without blocking the caller. Delivery
// problems are the publisher's to log; they never fail a write.
type Publisher interface {
	PublishPaymentCompleted(ctx context.Context, e PaymentCompleted)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishPaymentCompleted(context.Context, PaymentCompleted) {}
