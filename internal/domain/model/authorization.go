package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Linked is a ledger row that owns a capture Payment: a PendingPayment
// until it is consumed, then an Authorization until it is captured.
type Linked interface {
	LinkedPaymentID() *int64
	LinkPayment(p *Payment)
	GatewayKey() string
}

// Authorization is funds reserved at a gateway and not yet captured.
// Complete flips to true once, on capture or release.
type Authorization struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID    int64           `gorm:"column:purchase_id;not null;index" json:"purchase_id"`
	Method        string          `gorm:"size:50;not null;index" json:"method"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	TransactionID string          `gorm:"column:transaction_id;size:255;index" json:"transaction_id"`
	ReasonCode    string          `gorm:"column:reason_code;size:255" json:"-"`
	Details       string          `gorm:"type:text" json:"-"`
	Complete      bool            `gorm:"not null;default:false" json:"complete"`
	CaptureID     *int64          `gorm:"column:capture_id;not null" json:"capture_id"`
	TimeStamp     *time.Time      `gorm:"column:time_stamp" json:"time_stamp,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Authorization) TableName() string {
	return "authorizations"
}

func (a *Authorization) LinkedPaymentID() *int64 { return a.CaptureID }
func (a *Authorization) LinkPayment(p *Payment)  { a.CaptureID = &p.ID }
func (a *Authorization) GatewayKey() string      { return a.Method }

// PendingPayment is a declared intent to pay through one gateway. At most
// one exists per purchase and gateway.
type PendingPayment struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID int64           `gorm:"column:purchase_id;not null;uniqueIndex:idx_pending_purchase_method" json:"purchase_id"`
	Method     string          `gorm:"size:50;not null;uniqueIndex:idx_pending_purchase_method" json:"method"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	CaptureID  *int64          `gorm:"column:capture_id" json:"capture_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName specifies the table name for GORM
func (PendingPayment) TableName() string {
	return "pending_payments"
}

func (p *PendingPayment) LinkedPaymentID() *int64  { return p.CaptureID }
func (p *PendingPayment) LinkPayment(pay *Payment) { p.CaptureID = &pay.ID }
func (p *PendingPayment) GatewayKey() string       { return p.Method }
