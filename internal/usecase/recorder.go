package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/internal/domain/ledger"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	apperrors "github.com/wekeepgrowing/bursar/pkg/errors"
)

// Record is a gateway outcome as the recorder writes it. A missing
// Amount is resolved from the pending payment or authorization, then
// from the purchase.
type Record struct {
	Amount        decimal.NullDecimal
	TransactionID string
	ReasonCode    string
	Details       string
	// AuthorizationID ties a failure to the authorization it concerned.
	AuthorizationID *int64
	// Unique marks TransactionID as issued by the gateway for this charge
	// alone, so a payment already carrying it is the same charge.
	Unique bool
}

// PaymentRecorder is the only writer of ledger rows. Every method runs in
// one transaction holding the purchase lock and never calls a gateway.
type PaymentRecorder struct {
	repo      domainRepo.LedgerRepository
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentRecorder creates a recorder. A nil publisher drops events.
func NewPaymentRecorder(repo domainRepo.LedgerRepository, publisher event.Publisher, logger *zap.Logger) *PaymentRecorder {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &PaymentRecorder{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePending declares the intent to pay amount through key, replacing
// any earlier intent for the same gateway. amount defaults to what the
// purchase still owes.
func (r *PaymentRecorder) CreatePending(ctx context.Context, purchaseID int64, key string, amount decimal.NullDecimal) (*model.PendingPayment, error) {
	var pending *model.PendingPayment

	err := r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		if err := r.discardPending(tx, key); err != nil {
			return err
		}

		balances, err := tx.Balances()
		if err != nil {
			return err
		}
		owed := balances.Remaining
		if owed.IsNegative() {
			owed = money.Zero
		}

		pending = &model.PendingPayment{
			PurchaseID: purchaseID,
			Method:     key,
			Amount:     ledger.ResolveAmount(amount, money.None, owed),
		}
		if _, err := r.ensureLinkedPayment(tx, pending); err != nil {
			return err
		}
		return tx.CreatePending(pending)
	})
	if err != nil {
		return nil, r.failed("create pending payment", purchaseID, key, err)
	}

	r.logger.Info("Pending payment created",
		zap.Int64("purchase_id", purchaseID),
		zap.String("gateway", key),
		zap.String("amount", money.String(pending.Amount)))

	return pending, nil
}

// Authorize records funds reserved by the gateway. A pending payment for
// key is consumed and its placeholder becomes the authorization's capture.
func (r *PaymentRecorder) Authorize(ctx context.Context, purchaseID int64, key string, rec Record) (*model.Authorization, error) {
	var auth *model.Authorization

	err := r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		purchase := tx.Purchase()

		pending, err := tx.FindPending(key)
		if err != nil {
			return err
		}

		auth = &model.Authorization{PurchaseID: purchase.ID, Method: key}
		linked := money.None
		if pending != nil {
			auth.CaptureID = pending.CaptureID
			linked = money.Some(pending.Amount)
		}
		if _, err := r.ensureLinkedPayment(tx, auth); err != nil {
			return err
		}

		now := r.now()
		auth.Amount = ledger.ResolveAmount(rec.Amount, linked, purchase.Total)
		auth.TransactionID = rec.TransactionID
		auth.ReasonCode = rec.ReasonCode
		auth.Details = rec.Details
		auth.TimeStamp = &now
		if err := tx.CreateAuthorization(auth); err != nil {
			return err
		}

		return r.consumePending(tx, pending)
	})
	if err != nil {
		return nil, r.failed("record authorization", purchaseID, key, err)
	}

	r.logger.Info("Authorization recorded",
		zap.Int64("purchase_id", purchaseID),
		zap.Int64("authorization_id", auth.ID),
		zap.String("gateway", key),
		zap.String("amount", money.String(auth.Amount)),
		zap.String("transaction_id", auth.TransactionID))

	r.publisher.PublishPaymentCompleted(ctx, event.PaymentCompleted{
		PurchaseID:      purchaseID,
		PaymentID:       *auth.CaptureID,
		AuthorizationID: &auth.ID,
		Gateway:         key,
		Amount:          auth.Amount,
		Kind:            event.KindAuthorized,
		OccurredAt:      *auth.TimeStamp,
	})

	return auth, nil
}

// CaptureAuthorized turns an authorization into a successful payment and
// completes it. The amount is clamped to what the authorization may still
// capture.
func (r *PaymentRecorder) CaptureAuthorized(ctx context.Context, purchaseID, authorizationID int64, rec Record) (*model.Payment, error) {
	var (
		payment *model.Payment
		auth    *model.Authorization
	)

	err := r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		var err error
		auth, err = r.openAuthorization(tx, authorizationID)
		if err != nil {
			return err
		}
		payment, err = r.captureAuthorizedTx(tx, auth, rec)
		return err
	})
	if err != nil {
		return nil, r.failed("capture authorization", purchaseID, "", err)
	}

	r.logCaptured(payment, &auth.ID)
	r.publishCaptured(ctx, payment, &auth.ID)

	return payment, nil
}

// Release completes an authorization without capturing it (a void).
func (r *PaymentRecorder) Release(ctx context.Context, purchaseID, authorizationID int64, rec Record) (*model.Authorization, error) {
	var auth *model.Authorization

	err := r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		var err error
		auth, err = r.openAuthorization(tx, authorizationID)
		if err != nil {
			return err
		}
		if _, err := r.ensureLinkedPayment(tx, auth); err != nil {
			return err
		}

		auth.Complete = true
		if rec.ReasonCode != "" {
			auth.ReasonCode = rec.ReasonCode
		}
		return tx.SaveAuthorization(auth)
	})
	if err != nil {
		return nil, r.failed("release authorization", purchaseID, "", err)
	}

	r.logger.Info("Authorization released",
		zap.Int64("purchase_id", purchaseID),
		zap.Int64("authorization_id", auth.ID),
		zap.String("gateway", auth.Method),
		zap.String("amount", money.String(auth.Amount)))

	return auth, nil
}

// CaptureDirect records a one-step charge. A pending payment for key is
// consumed and its placeholder becomes the payment. For a unique
// transaction id that a notification already recorded, that payment is
// returned and nothing is written.
func (r *PaymentRecorder) CaptureDirect(ctx context.Context, purchaseID int64, key string, rec Record) (*model.Payment, error) {
	var (
		payment   *model.Payment
		duplicate bool
	)

	err := r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		if rec.Unique && rec.TransactionID != "" {
			existing, err := tx.FindPaymentByTransaction(rec.TransactionID)
			if err != nil {
				return err
			}
			if existing != nil {
				payment, duplicate = existing, true
				return nil
			}
		}

		var err error
		payment, err = r.captureDirectTx(tx, key, rec)
		return err
	})
	if err != nil {
		return nil, r.failed("record payment", purchaseID, key, err)
	}

	if duplicate {
		r.logger.Info("Payment already recorded",
			zap.Int64("purchase_id", purchaseID),
			zap.Int64("payment_id", payment.ID),
			zap.String("gateway", key),
			zap.String("transaction_id", rec.TransactionID))
		return payment, nil
	}

	r.logCaptured(payment, nil)
	r.publishCaptured(ctx, payment, nil)

	return payment, nil
}

// CaptureNotified records a payment reported asynchronously by a gateway.
// A transaction id that is already recorded makes it a duplicate: nothing
// is written and duplicate is true. A matching open authorization is
// captured; otherwise the payment is recorded as a direct capture.
func (r *PaymentRecorder) CaptureNotified(ctx context.Context, purchaseID int64, key string, rec Record) (payment *model.Payment, duplicate bool, err error) {
	if rec.TransactionID == "" {
		return nil, false, r.failed("accept notification", purchaseID, key,
			domainErrors.NewValidationError(purchaseID, key, domainErrors.ErrMissingTransactionID))
	}

	var authID *int64

	err = r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		exists, err := tx.PaymentExists(rec.TransactionID)
		if err != nil {
			return err
		}
		if exists {
			duplicate = true
			return nil
		}

		auth, err := tx.FindIncompleteAuthorizationByTransaction(rec.TransactionID)
		if err != nil {
			return err
		}
		if auth != nil {
			authID = &auth.ID
			payment, err = r.captureAuthorizedTx(tx, auth, rec)
			return err
		}

		payment, err = r.captureDirectTx(tx, key, rec)
		return err
	})
	if err != nil {
		return nil, false, r.failed("accept notification", purchaseID, key, err)
	}

	if duplicate {
		r.logger.Info("Notification already processed",
			zap.Int64("purchase_id", purchaseID),
			zap.String("gateway", key),
			zap.String("transaction_id", rec.TransactionID))
		return nil, true, nil
	}

	r.logCaptured(payment, authID)
	r.publishCaptured(ctx, payment, authID)

	return payment, false, nil
}

// RecordFailure writes an audit row for an unsuccessful gateway call. It
// touches nothing else.
func (r *PaymentRecorder) RecordFailure(ctx context.Context, purchaseID int64, key string, rec Record) (*model.PaymentFailure, error) {
	var failure *model.PaymentFailure

	err := r.repo.WithPurchaseLock(ctx, purchaseID, func(tx domainRepo.LedgerTx) error {
		purchase := tx.Purchase()
		failure = &model.PaymentFailure{
			PurchaseID:      purchase.ID,
			Method:          key,
			Amount:          ledger.ResolveAmount(rec.Amount, money.None, purchase.Total),
			TransactionID:   rec.TransactionID,
			ReasonCode:      rec.ReasonCode,
			Details:         rec.Details,
			AuthorizationID: rec.AuthorizationID,
			TimeStamp:       r.now(),
		}
		return tx.CreateFailure(failure)
	})
	if err != nil {
		return nil, r.failed("record payment failure", purchaseID, key, err)
	}

	r.logger.Warn("Payment failure recorded",
		zap.Int64("purchase_id", purchaseID),
		zap.String("gateway", key),
		zap.String("amount", money.String(failure.Amount)),
		zap.String("reason_code", failure.ReasonCode),
		zap.String("details", failure.Details))

	return failure, nil
}

// ensureLinkedPayment returns the capture payment of linked, creating the
// LINKED placeholder when it has none yet. A reference to a payment that
// does not exist is a consistency error.
func (r *PaymentRecorder) ensureLinkedPayment(tx domainRepo.LedgerTx, linked model.Linked) (*model.Payment, error) {
	purchase := tx.Purchase()

	if id := linked.LinkedPaymentID(); id != nil {
		payment, err := tx.GetPayment(*id)
		if err != nil {
			return nil, err
		}
		if payment == nil {
			err := domainErrors.NewConsistencyError(purchase.ID,
				fmt.Sprintf("%T references capture payment %d", linked, *id),
				domainErrors.ErrMissingCapture)
			apperrors.LogError(r.logger, err, "Ledger invariant violated",
				zap.Int64("purchase_id", purchase.ID),
				zap.Int64("capture_id", *id),
				zap.String("gateway", linked.GatewayKey()))
			return nil, err
		}
		return payment, nil
	}

	payment := &model.Payment{
		PurchaseID:    purchase.ID,
		Method:        linked.GatewayKey(),
		Amount:        money.Zero,
		TransactionID: model.LinkedTransactionID,
	}
	if err := tx.CreatePayment(payment); err != nil {
		return nil, err
	}
	linked.LinkPayment(payment)

	return payment, nil
}

// discardPending removes the pending payment for key along with its
// placeholder.
func (r *PaymentRecorder) discardPending(tx domainRepo.LedgerTx, key string) error {
	existing, err := tx.FindPending(key)
	if err != nil || existing == nil {
		return err
	}
	return r.dropPending(tx, existing)
}

// consumePending deletes the consumed pending payment, then every other
// pending payment of the purchase whose placeholder was never used.
func (r *PaymentRecorder) consumePending(tx domainRepo.LedgerTx, consumed *model.PendingPayment) error {
	if consumed == nil {
		return nil
	}
	if err := tx.DeletePending(consumed); err != nil {
		return err
	}

	others, err := tx.ListPending()
	if err != nil {
		return err
	}
	for _, other := range others {
		if err := r.dropPending(tx, other); err != nil {
			return err
		}
	}
	return nil
}

// dropPending deletes p and its placeholder. A capture that already
// carries an outcome is kept.
func (r *PaymentRecorder) dropPending(tx domainRepo.LedgerTx, p *model.PendingPayment) error {
	if p.CaptureID != nil {
		capture, err := tx.GetPayment(*p.CaptureID)
		if err != nil {
			return err
		}
		if capture != nil && capture.IsPlaceholder() {
			if err := tx.DeletePayment(capture); err != nil {
				return err
			}
		}
	}
	return tx.DeletePending(p)
}

// openAuthorization loads an authorization of the locked purchase that can
// still be captured or released.
func (r *PaymentRecorder) openAuthorization(tx domainRepo.LedgerTx, id int64) (*model.Authorization, error) {
	purchase := tx.Purchase()

	auth, err := tx.GetAuthorization(id)
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, domainErrors.NewValidationError(purchase.ID, "", domainErrors.ErrAuthorizationNotFound)
	}
	if auth.PurchaseID != purchase.ID {
		return nil, domainErrors.NewValidationError(purchase.ID, auth.Method, domainErrors.ErrWrongPurchase)
	}
	if auth.Complete {
		return nil, domainErrors.NewValidationError(purchase.ID, auth.Method, domainErrors.ErrAuthorizationComplete)
	}
	return auth, nil
}

func (r *PaymentRecorder) captureAuthorizedTx(tx domainRepo.LedgerTx, auth *model.Authorization, rec Record) (*model.Payment, error) {
	purchase := tx.Purchase()

	payment, err := r.ensureLinkedPayment(tx, auth)
	if err != nil {
		return nil, err
	}

	balances, err := tx.Balances()
	if err != nil {
		return nil, err
	}

	requested := ledger.ResolveAmount(rec.Amount, money.Some(auth.Amount), purchase.Total)
	amount, clamped := ledger.ClampCapture(requested, ledger.CapturableRemaining(auth, balances))
	if clamped {
		r.logger.Warn("Capture amount clamped to capturable remaining",
			zap.Int64("purchase_id", purchase.ID),
			zap.Int64("authorization_id", auth.ID),
			zap.String("requested", money.String(requested)),
			zap.String("captured", money.String(amount)))
	}

	now := r.now()
	payment.Method = auth.Method
	payment.Amount = amount
	payment.Success = true
	payment.TransactionID = auth.TransactionID
	if rec.TransactionID != "" {
		payment.TransactionID = rec.TransactionID
	}
	payment.ReasonCode = rec.ReasonCode
	payment.Details = rec.Details
	payment.TimeStamp = &now
	if err := tx.SavePayment(payment); err != nil {
		return nil, err
	}

	auth.Complete = true
	if err := tx.SaveAuthorization(auth); err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRecorder) captureDirectTx(tx domainRepo.LedgerTx, key string, rec Record) (*model.Payment, error) {
	purchase := tx.Purchase()

	pending, err := tx.FindPending(key)
	if err != nil {
		return nil, err
	}

	payment := &model.Payment{PurchaseID: purchase.ID}
	linked := money.None
	if pending != nil {
		if payment, err = r.ensureLinkedPayment(tx, pending); err != nil {
			return nil, err
		}
		linked = money.Some(pending.Amount)
	}

	now := r.now()
	payment.Method = key
	payment.Amount = ledger.ResolveAmount(rec.Amount, linked, purchase.Total)
	payment.Success = true
	payment.TransactionID = rec.TransactionID
	payment.ReasonCode = rec.ReasonCode
	payment.Details = rec.Details
	payment.TimeStamp = &now

	if payment.ID == 0 {
		err = tx.CreatePayment(payment)
	} else {
		err = tx.SavePayment(payment)
	}
	if err != nil {
		return nil, err
	}

	if err := r.consumePending(tx, pending); err != nil {
		return nil, err
	}

	balances, err := tx.Balances()
	if err != nil {
		return nil, err
	}
	if balances.Overpaid() {
		r.logger.Warn("Purchase is overpaid",
			zap.Int64("purchase_id", purchase.ID),
			zap.String("total", money.String(balances.Total)),
			zap.String("total_payments", money.String(balances.TotalPayments)),
			zap.String("authorized_remaining", money.String(balances.AuthorizedRemaining)))
	}

	return payment, nil
}

func (r *PaymentRecorder) logCaptured(payment *model.Payment, authID *int64) {
	fields := []zap.Field{
		zap.Int64("purchase_id", payment.PurchaseID),
		zap.Int64("payment_id", payment.ID),
		zap.String("gateway", payment.Method),
		zap.String("amount", money.String(payment.Amount)),
		zap.String("transaction_id", payment.TransactionID),
	}
	if authID != nil {
		fields = append(fields, zap.Int64("authorization_id", *authID))
	}
	r.logger.Info("Payment recorded", fields...)
}

func (r *PaymentRecorder) publishCaptured(ctx context.Context, payment *model.Payment, authID *int64) {
	r.publisher.PublishPaymentCompleted(ctx, event.PaymentCompleted{
		PurchaseID:      payment.PurchaseID,
		PaymentID:       payment.ID,
		AuthorizationID: authID,
		Gateway:         payment.Method,
		Amount:          payment.Amount,
		Kind:            event.KindCaptured,
		OccurredAt:      *payment.TimeStamp,
	})
}

// failed logs err at a level matching its kind and wraps it with op.
func (r *PaymentRecorder) failed(op string, purchaseID int64, key string, err error) error {
	fields := []zap.Field{
		zap.Int64("purchase_id", purchaseID),
		zap.String("gateway", key),
		zap.Error(err),
	}
	switch {
	case domainErrors.IsKind(err, domainErrors.KindValidation):
		r.logger.Warn("Rejected ledger write: "+op, fields...)
	case domainErrors.IsKind(err, domainErrors.KindConsistency):
		// already logged with full context where detected
	default:
		r.logger.Error("Failed to "+op, fields...)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
