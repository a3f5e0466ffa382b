package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringStatus is the lifecycle state of a RecurringCharge.
type RecurringStatus string

const (
	RecurringStatusActive    RecurringStatus = "active"
	RecurringStatusCompleted RecurringStatus = "completed"
	RecurringStatusFailed    RecurringStatus = "failed"
	RecurringStatusCancelled RecurringStatus = "cancelled"
)

// RecurringCharge bills Amount through Gateway every IntervalDays. Each
// cycle charges a child purchase cloned from TemplatePurchaseID.
type RecurringCharge struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TemplatePurchaseID   int64           `gorm:"column:template_purchase_id;not null;index" json:"template_purchase_id"`
	Gateway              string          `gorm:"size:50;not null" json:"gateway"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	IntervalDays         int             `gorm:"column:interval_days;not null" json:"interval_days"`
	RemainingOccurrences *int            `gorm:"column:remaining_occurrences" json:"remaining_occurrences,omitempty"`
	Cycle                int             `gorm:"not null;default:0" json:"cycle"`
	Status               RecurringStatus `gorm:"size:20;not null;default:'active';index" json:"status"`
	NextChargeAt         time.Time       `gorm:"column:next_charge_at;not null;index" json:"next_charge_at"`
	CyclePurchaseID      *int64          `gorm:"column:cycle_purchase_id" json:"cycle_purchase_id,omitempty"`
	AttemptCount         int             `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	LastAttemptAt        *time.Time      `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError            string          `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	NextRetryAt          *time.Time      `gorm:"column:next_retry_at" json:"next_retry_at,omitempty"`
	LastPaymentID        *int64          `gorm:"column:last_payment_id" json:"last_payment_id,omitempty"`
	// ClaimedUntil is the lease of the runner charging the current attempt.
	ClaimedUntil *time.Time `gorm:"column:claimed_until" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RecurringCharge) TableName() string {
	return "recurring_charges"
}

// DueAt is the earliest time the next attempt may run.
func (r *RecurringCharge) DueAt() time.Time {
	if r.NextRetryAt != nil && r.NextRetryAt.After(r.NextChargeAt) {
		return *r.NextRetryAt
	}
	return r.NextChargeAt
}
