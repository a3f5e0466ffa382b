package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LinkedTransactionID marks a placeholder Payment that no gateway outcome
// has been written to yet.
const LinkedTransactionID = "LINKED"

// Payment is money that moved, or a placeholder for money that will.
type Payment struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID    int64           `gorm:"column:purchase_id;not null;index" json:"purchase_id"`
	Method        string          `gorm:"size:50;not null" json:"method"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Success       bool            `gorm:"not null;default:false" json:"success"`
	TransactionID string          `gorm:"column:transaction_id;size:255;index" json:"transaction_id"`
	ReasonCode    string          `gorm:"column:reason_code;size:255" json:"-"`
	Details       string          `gorm:"type:text" json:"-"`
	TimeStamp     *time.Time      `gorm:"column:time_stamp" json:"time_stamp,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// IsPlaceholder reports whether no outcome has been written to p yet.
func (p *Payment) IsPlaceholder() bool {
	return p.TransactionID == LinkedTransactionID && !p.Success && p.Amount.IsZero()
}

// PaymentFailure is an audit row for a gateway call that did not succeed.
// It never contributes to any balance.
type PaymentFailure struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID      int64           `gorm:"column:purchase_id;not null;index" json:"purchase_id"`
	Method          string          `gorm:"size:50;not null" json:"method"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	TransactionID   string          `gorm:"column:transaction_id;size:255" json:"transaction_id,omitempty"`
	ReasonCode      string          `gorm:"column:reason_code;size:255" json:"-"`
	Details         string          `gorm:"type:text" json:"-"`
	AuthorizationID *int64          `gorm:"column:authorization_id" json:"authorization_id,omitempty"`
	TimeStamp       time.Time       `gorm:"column:time_stamp;not null" json:"time_stamp"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName specifies the table name for GORM
func (PaymentFailure) TableName() string {
	return "payment_failures"
}
