// Package gateway defines the seam between the ledger and the payment
// gateways. Adapters do network I/O and report an Outcome; recording the
// outcome is the ledger's job.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
)

// Capabilities is declared by each adapter at registration.
type Capabilities struct {
	// Authorize means the gateway separates authorize and capture.
	Authorize bool
	Refund    bool
	RecurBill bool
	// Headless gateways never make a server side call; confirmations
	// arrive as notifications.
	Headless bool
}

// Settings is one gateway's configuration, built once at startup and
// handed to the adapter's constructor.
type Settings struct {
	Key   string
	Label string
	Live  bool
	// CaptureImmediately makes Process charge directly even when the
	// gateway can authorize.
	CaptureImmediately bool
	ExtraLogging       bool
	Timeout            time.Duration
	Currency           string
}

// Card is a stored card resolved for a single request.
type Card struct {
	Token       string
	LastFour    string
	CardType    string
	ExpireMonth int
	ExpireYear  int
}

// ChargeRequest asks a gateway to authorize or charge Amount.
type ChargeRequest struct {
	Purchase *model.Purchase
	Amount   decimal.Decimal
	Card     *Card
}

// CaptureRequest asks a gateway to capture or void a prior authorization.
type CaptureRequest struct {
	Purchase      *model.Purchase
	Authorization *model.Authorization
	Amount        decimal.Decimal
}

// FailureKind buckets gateway failures for the customer facing message.
type FailureKind string

const (
	FailureDeclined    FailureKind = "declined"
	FailureInvalidCard FailureKind = "invalid_card"
	FailureUnavailable FailureKind = "unavailable"
	FailureError       FailureKind = "error"
)

// Outcome is what a gateway said about one call.
type Outcome struct {
	Success       bool
	TransactionID string
	ReasonCode    string
	// Message is the gateway's own text; it is kept for the audit row.
	Message string
	Failure FailureKind
	// Amount is what the gateway reports it processed, when it says.
	Amount decimal.NullDecimal
}

// Adapter is implemented by every gateway.
type Adapter interface {
	Key() string
	Capabilities() Capabilities
}

// Charger is implemented by gateways that can take a payment in one step.
// Every gateway that is not headless must implement it.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (Outcome, error)
}

// Authorizer is implemented by gateways declaring Capabilities.Authorize.
type Authorizer interface {
	Authorize(ctx context.Context, req ChargeRequest) (Outcome, error)
	CapturePrior(ctx context.Context, req CaptureRequest) (Outcome, error)
	Void(ctx context.Context, req CaptureRequest) (Outcome, error)
}

// NotificationParser is implemented by gateways that push signed
// webhooks. It verifies the signature and normalizes the payload; a
// notification without a PurchaseID is an event the ledger ignores.
type NotificationParser interface {
	ParseNotification(payload []byte, signature string) (Notification, error)
}

// Notification is an asynchronous gateway report about a purchase,
// normalized from whatever the gateway sent.
type Notification struct {
	EventID       string              `json:"event_id"`
	EventType     string              `json:"event_type"`
	Gateway       string              `json:"gateway"`
	PurchaseID    int64               `json:"purchase_id"`
	Success       bool                `json:"success"`
	TransactionID string              `json:"transaction_id"`
	ReasonCode    string              `json:"reason_code,omitempty"`
	Message       string              `json:"message,omitempty"`
	Amount        decimal.NullDecimal `json:"amount"`
}

// Registration pairs an adapter with the settings it was built from.
type Registration struct {
	Adapter  Adapter
	Settings Settings
}
