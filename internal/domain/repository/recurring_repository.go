package repository

import (
	"context"
	"time"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
)

// RecurringRepository manages recurring charge schedules.
type RecurringRepository interface {
	Create(ctx context.Context, charge *model.RecurringCharge) error
	Get(ctx context.Context, id int64) (*model.RecurringCharge, error)
	Save(ctx context.Context, charge *model.RecurringCharge) error

	// ListDue returns active, unclaimed schedules whose next charge, and
	// retry when one is set, are at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.RecurringCharge, error)
	// Claim leases a listed schedule until the given time. It reports false
	// when another runner holds it or has already moved it past the
	// attempt it was listed for.
	Claim(ctx context.Context, charge *model.RecurringCharge, now, until time.Time) (bool, error)
}
