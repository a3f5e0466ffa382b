package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

var errNoStoredCard = errors.New("no stored card")

// RecurringPolicy bounds a billing run.
type RecurringPolicy struct {
	BatchSize   int
	MaxAttempts int
	// ClaimTTL is how long a runner holds a schedule it is charging.
	ClaimTTL time.Duration
}

const defaultClaimTTL = 10 * time.Minute

type ScheduleInput struct {
	TemplatePurchaseID int64
	Gateway            string
	Amount             decimal.Decimal
	IntervalDays       int
	// Occurrences limits the number of cycles; nil bills until cancelled.
	Occurrences *int
	// StartAt is the first charge; zero means one interval from now.
	StartAt time.Time
}

// RunSummary counts what one RunDue did.
type RunSummary struct {
	Charged  int `json:"charged"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// RecurringService bills schedules against stored cards. Every cycle is
// charged on its own purchase cloned from the schedule's template.
type RecurringService struct {
	repo      domainRepo.RecurringRepository
	ledger    domainRepo.LedgerRepository
	purchases *PurchaseService
	cards     *CardVault
	registry  *ProcessorRegistry
	policy    RecurringPolicy
	logger    *zap.Logger
	now       func() time.Time
}

func NewRecurringService(
	repo domainRepo.RecurringRepository,
	ledger domainRepo.LedgerRepository,
	purchases *PurchaseService,
	cards *CardVault,
	registry *ProcessorRegistry,
	policy RecurringPolicy,
	logger *zap.Logger,
) *RecurringService {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 4
	}
	if policy.ClaimTTL <= 0 {
		policy.ClaimTTL = defaultClaimTTL
	}
	return &RecurringService{
		repo:      repo,
		ledger:    ledger,
		purchases: purchases,
		cards:     cards,
		registry:  registry,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule starts billing the template purchase's stored card.
func (s *RecurringService) Schedule(ctx context.Context, in ScheduleInput) (*model.RecurringCharge, error) {
	proc, err := s.registry.Get(in.Gateway)
	if err != nil {
		return nil, err
	}
	if !proc.CanRecurBill() {
		return nil, domainErrors.NewValidationError(in.TemplatePurchaseID, in.Gateway, domainErrors.ErrUnsupported)
	}
	if !in.Amount.IsPositive() {
		return nil, domainErrors.NewValidationError(in.TemplatePurchaseID, in.Gateway, domainErrors.ErrInvalidAmount)
	}
	if in.IntervalDays <= 0 || (in.Occurrences != nil && *in.Occurrences <= 0) {
		return nil, domainErrors.NewValidationError(in.TemplatePurchaseID, in.Gateway, errors.New("interval and occurrences must be positive"))
	}

	template, err := s.ledger.GetPurchase(ctx, in.TemplatePurchaseID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, domainErrors.NewValidationError(in.TemplatePurchaseID, in.Gateway, domainErrors.ErrPurchaseNotFound)
	}

	card, err := s.cards.CardForPurchase(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, domainErrors.NewValidationError(template.ID, in.Gateway, errNoStoredCard)
	}

	start := in.StartAt
	if start.IsZero() {
		start = s.now().AddDate(0, 0, in.IntervalDays)
	}

	charge := &model.RecurringCharge{
		TemplatePurchaseID:   template.ID,
		Gateway:              in.Gateway,
		Amount:               money.Truncate(in.Amount),
		IntervalDays:         in.IntervalDays,
		RemainingOccurrences: in.Occurrences,
		Status:               model.RecurringStatusActive,
		NextChargeAt:         start.UTC(),
	}
	if err := s.repo.Create(ctx, charge); err != nil {
		return nil, err
	}

	s.logger.Info("Recurring charge scheduled",
		zap.Int64("recurring_charge_id", charge.ID),
		zap.Int64("template_purchase_id", template.ID),
		zap.String("gateway", in.Gateway),
		zap.String("amount", charge.Amount.StringFixed(2)),
		zap.Time("next_charge_at", charge.NextChargeAt))

	return charge, nil
}

// Cancel stops an active schedule.
func (s *RecurringService) Cancel(ctx context.Context, id int64) (*model.RecurringCharge, error) {
	charge, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, domainErrors.NewValidationError(0, "", fmt.Errorf("recurring charge %d not found", id))
	}
	if charge.Status != model.RecurringStatusActive {
		return charge, nil
	}

	charge.Status = model.RecurringStatusCancelled
	charge.NextRetryAt = nil
	if err := s.repo.Save(ctx, charge); err != nil {
		return nil, err
	}

	s.logger.Info("Recurring charge cancelled", zap.Int64("recurring_charge_id", id))
	return charge, nil
}

// RunDue charges every schedule due at now, one batch. A schedule is
// claimed before it is charged, so concurrent runs never bill the same
// attempt twice.
func (s *RecurringService) RunDue(ctx context.Context, now time.Time) (RunSummary, error) {
	var summary RunSummary

	due, err := s.repo.ListDue(ctx, now.UTC(), s.policy.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, charge := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		claimed, err := s.repo.Claim(ctx, charge, now.UTC(), now.UTC().Add(s.policy.ClaimTTL))
		if err != nil {
			return summary, err
		}
		if !claimed {
			s.logger.Debug("Recurring charge claimed elsewhere", zap.Int64("recurring_charge_id", charge.ID))
			summary.Skipped++
			continue
		}

		attemptErr := s.attempt(ctx, charge)
		if attemptErr != nil && !isChargeFailure(attemptErr) {
			s.logger.Error("Recurring charge aborted",
				zap.Int64("recurring_charge_id", charge.ID),
				zap.Error(attemptErr))
		}

		s.advance(charge, now.UTC(), attemptErr)
		if err := s.repo.Save(ctx, charge); err != nil {
			return summary, err
		}

		switch {
		case attemptErr == nil:
			summary.Charged++
		case charge.Status == model.RecurringStatusFailed:
			summary.Failed++
		default:
			summary.Retrying++
		}
	}

	s.logger.Info("Recurring run finished",
		zap.Int("due", len(due)),
		zap.Int("charged", summary.Charged),
		zap.Int("retrying", summary.Retrying),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))

	return summary, nil
}

// chargeFailure is a declined or otherwise unsuccessful cycle.
type chargeFailure struct{ msg string }

func (e *chargeFailure) Error() string { return e.msg }

func isChargeFailure(err error) bool {
	var cf *chargeFailure
	return errors.As(err, &cf)
}

// attempt charges the next cycle. On success it leaves the paying
// payment's id in charge.LastPaymentID.
func (s *RecurringService) attempt(ctx context.Context, charge *model.RecurringCharge) error {
	template, err := s.ledger.GetPurchase(ctx, charge.TemplatePurchaseID)
	if err != nil {
		return err
	}
	if template == nil {
		return domainErrors.ErrPurchaseNotFound
	}

	cycle := charge.Cycle + 1
	purchase, err := s.purchases.EnsureCyclePurchase(ctx, template, cycle, charge.Amount)
	if err != nil {
		return err
	}
	charge.CyclePurchaseID = &purchase.ID

	card, err := s.cards.CardForPurchase(ctx, purchase.ID)
	if err != nil {
		return err
	}
	if card == nil {
		copied, err := s.cards.CopyCard(ctx, template.ID, purchase.ID)
		if err != nil {
			return err
		}
		if !copied {
			return &chargeFailure{msg: errNoStoredCard.Error()}
		}
	}

	proc, err := s.registry.Get(charge.Gateway)
	if err != nil {
		return err
	}

	res, err := proc.CapturePayment(ctx, purchase.ID, money.None)
	if err != nil {
		return err
	}
	if !res.Success {
		msg := res.Message
		if res.Err != nil {
			msg = res.Err.Error()
		}
		return &chargeFailure{msg: msg}
	}

	if res.Payment != nil {
		charge.LastPaymentID = &res.Payment.ID
	}

	s.logger.Info("Recurring cycle charged",
		zap.Int64("recurring_charge_id", charge.ID),
		zap.Int64("purchase_id", purchase.ID),
		zap.Int("cycle", cycle),
		zap.String("message", res.Message))

	return nil
}

// advance moves the schedule after an attempt.
func (s *RecurringService) advance(charge *model.RecurringCharge, now time.Time, attemptErr error) {
	charge.LastAttemptAt = &now
	charge.ClaimedUntil = nil

	if attemptErr == nil {
		charge.Cycle++
		charge.NextChargeAt = charge.NextChargeAt.AddDate(0, 0, charge.IntervalDays)
		charge.CyclePurchaseID = nil
		charge.AttemptCount = 0
		charge.NextRetryAt = nil
		charge.LastError = ""

		if charge.RemainingOccurrences != nil {
			left := *charge.RemainingOccurrences - 1
			charge.RemainingOccurrences = &left
			if left <= 0 {
				charge.Status = model.RecurringStatusCompleted
				s.logger.Info("Recurring charge completed", zap.Int64("recurring_charge_id", charge.ID))
			}
		}
		return
	}

	charge.AttemptCount++
	charge.LastError = attemptErr.Error()

	if charge.AttemptCount >= s.policy.MaxAttempts {
		charge.Status = model.RecurringStatusFailed
		charge.NextRetryAt = nil
		s.logger.Warn("Recurring charge failed",
			zap.Int64("recurring_charge_id", charge.ID),
			zap.Int("attempts", charge.AttemptCount),
			zap.String("last_error", charge.LastError))
		return
	}

	retry := now.Add(model.RetryBackoff(charge.AttemptCount))
	charge.NextRetryAt = &retry
	s.logger.Warn("Recurring charge will retry",
		zap.Int64("recurring_charge_id", charge.ID),
		zap.Int("attempts", charge.AttemptCount),
		zap.Time("next_retry_at", retry),
		zap.String("last_error", charge.LastError))
}
