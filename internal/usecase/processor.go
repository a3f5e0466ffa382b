package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/ledger"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

const defaultGatewayTimeout = 30 * time.Second

// CardSource resolves the stored card a purchase pays with.
type CardSource interface {
	// CardForPurchase returns nil when the purchase has no stored card.
	CardForPurchase(ctx context.Context, purchaseID int64) (*gateway.Card, error)
}

// Processor runs the gateway independent payment flows for one gateway.
// The adapter does the I/O; every outcome is written through the
// recorder exactly once.
type Processor struct {
	adapter    gateway.Adapter
	charger    gateway.Charger
	authorizer gateway.Authorizer
	caps       gateway.Capabilities
	settings   gateway.Settings
	// notified gateways may report a charge before the call returns.
	notified bool

	recorder *PaymentRecorder
	repo     domainRepo.LedgerRepository
	cards    CardSource
	logger   *zap.Logger
}

// NewProcessor checks the adapter against the capabilities it declares.
// A mismatch is a configuration error.
func NewProcessor(
	reg gateway.Registration,
	recorder *PaymentRecorder,
	repo domainRepo.LedgerRepository,
	cards CardSource,
	logger *zap.Logger,
) (*Processor, error) {
	if reg.Adapter == nil {
		return nil, domainErrors.NewConfigurationError(reg.Settings.Key, "no adapter")
	}

	key := reg.Adapter.Key()
	if key == "" {
		return nil, domainErrors.NewConfigurationError("", "adapter has no key")
	}
	if reg.Settings.Key != "" && reg.Settings.Key != key {
		return nil, domainErrors.NewConfigurationError(key,
			fmt.Sprintf("settings are for gateway %q", reg.Settings.Key))
	}

	caps := reg.Adapter.Capabilities()
	p := &Processor{
		adapter:  reg.Adapter,
		caps:     caps,
		settings: reg.Settings,
		recorder: recorder,
		repo:     repo,
		cards:    cards,
		logger:   logger.With(zap.String("gateway", key)),
	}
	p.settings.Key = key
	_, p.notified = reg.Adapter.(gateway.NotificationParser)

	if caps.Headless && caps.Authorize {
		return nil, domainErrors.NewConfigurationError(key, "a headless gateway cannot authorize")
	}
	if caps.Authorize {
		authorizer, ok := reg.Adapter.(gateway.Authorizer)
		if !ok {
			return nil, domainErrors.NewConfigurationError(key, "declares authorize but does not implement it")
		}
		p.authorizer = authorizer
	}
	if !caps.Headless {
		charger, ok := reg.Adapter.(gateway.Charger)
		if !ok {
			return nil, domainErrors.NewConfigurationError(key, "gateway is not headless but cannot charge")
		}
		p.charger = charger
	}

	return p, nil
}

func (p *Processor) Key() string                        { return p.settings.Key }
func (p *Processor) Label() string                      { return p.settings.Label }
func (p *Processor) Capabilities() gateway.Capabilities { return p.caps }
func (p *Processor) CanAuthorize() bool                 { return p.caps.Authorize }
func (p *Processor) CanRefund() bool                    { return p.caps.Refund }
func (p *Processor) CanRecurBill() bool                 { return p.caps.RecurBill }
func (p *Processor) IsHeadless() bool                   { return p.caps.Headless }

// Process charges the purchase the way the gateway is configured to:
// authorize only when it can and is not set to capture immediately.
func (p *Processor) Process(ctx context.Context, purchaseID int64) (gateway.Result, error) {
	if p.caps.Headless {
		return p.invalid(purchaseID, domainErrors.ErrHeadless), nil
	}
	if p.caps.Authorize && !p.settings.CaptureImmediately {
		return p.AuthorizePayment(ctx, purchaseID, money.None)
	}
	return p.CapturePayment(ctx, purchaseID, money.None)
}

// AuthorizePayment reserves amount, or what the purchase still owes.
func (p *Processor) AuthorizePayment(ctx context.Context, purchaseID int64, amount decimal.NullDecimal) (gateway.Result, error) {
	if p.authorizer == nil {
		return p.invalid(purchaseID, domainErrors.ErrUnsupported), nil
	}

	purchase, res, err := p.loadPurchase(ctx, purchaseID)
	if purchase == nil {
		return res, err
	}

	balances := ledger.ForPurchase(purchase)
	if balances.PaidInFull() {
		return p.paidInFull(purchase, balances), nil
	}

	charge, ok := p.requestAmount(purchase, amount, balances)
	if !ok {
		return p.invalid(purchaseID, domainErrors.ErrInvalidAmount), nil
	}

	req, err := p.chargeRequest(ctx, purchase, charge)
	if err != nil {
		return gateway.Result{Gateway: p.Key()}, err
	}

	outcome, callErr := p.call(ctx, "authorize", func(ctx context.Context) (gateway.Outcome, error) {
		return p.authorizer.Authorize(ctx, req)
	})

	rctx := context.WithoutCancel(ctx)
	if callErr != nil || !outcome.Success {
		return p.recordFailure(rctx, purchase, charge, nil, outcome, callErr)
	}

	auth, err := p.recorder.Authorize(rctx, purchase.ID, p.Key(), Record{
		Amount:        money.Some(processedAmount(outcome, charge)),
		TransactionID: outcome.TransactionID,
		ReasonCode:    outcome.ReasonCode,
		Details:       outcome.Message,
	})
	if err != nil {
		return p.recordError(purchase.ID, err)
	}

	return gateway.Result{
		Gateway:       p.Key(),
		Success:       true,
		Message:       gateway.MessageSuccess,
		Authorization: auth,
	}, nil
}

// CapturePayment charges in one step. Nothing is sent to the gateway when
// the purchase is already paid in full.
func (p *Processor) CapturePayment(ctx context.Context, purchaseID int64, amount decimal.NullDecimal) (gateway.Result, error) {
	if p.charger == nil {
		return p.invalid(purchaseID, domainErrors.ErrHeadless), nil
	}

	purchase, res, err := p.loadPurchase(ctx, purchaseID)
	if purchase == nil {
		return res, err
	}

	balances := ledger.ForPurchase(purchase)
	if balances.PaidInFull() {
		return p.paidInFull(purchase, balances), nil
	}

	charge, ok := p.requestAmount(purchase, amount, balances)
	if !ok {
		return p.invalid(purchaseID, domainErrors.ErrInvalidAmount), nil
	}

	req, err := p.chargeRequest(ctx, purchase, charge)
	if err != nil {
		return gateway.Result{Gateway: p.Key()}, err
	}

	outcome, callErr := p.call(ctx, "charge", func(ctx context.Context) (gateway.Outcome, error) {
		return p.charger.Charge(ctx, req)
	})

	rctx := context.WithoutCancel(ctx)
	if callErr != nil || !outcome.Success {
		return p.recordFailure(rctx, purchase, charge, nil, outcome, callErr)
	}

	payment, err := p.recorder.CaptureDirect(rctx, purchase.ID, p.Key(), Record{
		Amount:        money.Some(processedAmount(outcome, charge)),
		TransactionID: outcome.TransactionID,
		ReasonCode:    outcome.ReasonCode,
		Details:       outcome.Message,
		Unique:        p.notified,
	})
	if err != nil {
		return p.recordError(purchase.ID, err)
	}

	return gateway.Result{
		Gateway: p.Key(),
		Success: true,
		Message: gateway.MessageSuccess,
		Payment: payment,
	}, nil
}

// CaptureAuthorizedPayment settles one authorization. amount defaults to
// the authorized amount and is clamped to what the purchase has not yet
// collected. An authorization with nothing left to capture is released.
func (p *Processor) CaptureAuthorizedPayment(ctx context.Context, purchaseID, authorizationID int64, amount decimal.NullDecimal) (gateway.Result, error) {
	if p.authorizer == nil {
		return p.invalid(purchaseID, domainErrors.ErrUnsupported), nil
	}
	if amount.Valid && !amount.Decimal.IsPositive() {
		return p.invalid(purchaseID, domainErrors.ErrInvalidAmount), nil
	}

	auth, res, err := p.loadAuthorization(ctx, purchaseID, authorizationID)
	if auth == nil || auth.Complete {
		return res, err
	}

	purchase, res, err := p.loadPurchase(ctx, purchaseID)
	if purchase == nil {
		return res, err
	}

	requested := ledger.ResolveAmount(amount, money.Some(auth.Amount), purchase.Total)
	capture, clamped := ledger.ClampCapture(requested, ledger.CapturableRemaining(auth, ledger.ForPurchase(purchase)))
	if clamped {
		p.logger.Warn("Capture amount clamped to capturable remaining",
			zap.Int64("purchase_id", purchase.ID),
			zap.Int64("authorization_id", auth.ID),
			zap.String("requested", money.String(requested)),
			zap.String("capturable", money.String(capture)))
	}
	if !capture.IsPositive() {
		p.logger.Info("Nothing left to capture, releasing authorization",
			zap.Int64("purchase_id", purchase.ID),
			zap.Int64("authorization_id", auth.ID))
		return p.ReleaseAuthorizedPayment(ctx, purchaseID, authorizationID)
	}

	outcome, callErr := p.call(ctx, "capture", func(ctx context.Context) (gateway.Outcome, error) {
		return p.authorizer.CapturePrior(ctx, gateway.CaptureRequest{Purchase: purchase, Authorization: auth, Amount: capture})
	})

	rctx := context.WithoutCancel(ctx)
	if callErr != nil || !outcome.Success {
		return p.recordFailure(rctx, purchase, capture, &auth.ID, outcome, callErr)
	}

	payment, err := p.recorder.CaptureAuthorized(rctx, purchase.ID, auth.ID, Record{
		Amount:        money.Some(processedAmount(outcome, capture)),
		TransactionID: outcome.TransactionID,
		ReasonCode:    outcome.ReasonCode,
		Details:       outcome.Message,
	})
	if errors.Is(err, domainErrors.ErrAuthorizationComplete) {
		// a notification got there first
		return p.alreadyComplete(auth), nil
	}
	if err != nil {
		return p.recordError(purchase.ID, err)
	}

	auth.Complete = true
	return gateway.Result{
		Gateway:       p.Key(),
		Success:       true,
		Message:       gateway.MessageSuccess,
		Payment:       payment,
		Authorization: auth,
	}, nil
}

// ReleaseAuthorizedPayment voids an authorization at the gateway and
// completes it without a payment.
func (p *Processor) ReleaseAuthorizedPayment(ctx context.Context, purchaseID, authorizationID int64) (gateway.Result, error) {
	if p.authorizer == nil {
		return p.invalid(purchaseID, domainErrors.ErrUnsupported), nil
	}

	auth, res, err := p.loadAuthorization(ctx, purchaseID, authorizationID)
	if auth == nil || auth.Complete {
		return res, err
	}

	purchase, res, err := p.loadPurchase(ctx, purchaseID)
	if purchase == nil {
		return res, err
	}

	outcome, callErr := p.call(ctx, "void", func(ctx context.Context) (gateway.Outcome, error) {
		return p.authorizer.Void(ctx, gateway.CaptureRequest{Purchase: purchase, Authorization: auth, Amount: auth.Amount})
	})

	rctx := context.WithoutCancel(ctx)
	if callErr != nil || !outcome.Success {
		return p.recordFailure(rctx, purchase, auth.Amount, &auth.ID, outcome, callErr)
	}

	released, err := p.recorder.Release(rctx, purchase.ID, auth.ID, Record{
		TransactionID: outcome.TransactionID,
		ReasonCode:    outcome.ReasonCode,
		Details:       outcome.Message,
	})
	if errors.Is(err, domainErrors.ErrAuthorizationComplete) {
		return p.alreadyComplete(auth), nil
	}
	if err != nil {
		return p.recordError(purchase.ID, err)
	}

	return gateway.Result{
		Gateway:       p.Key(),
		Success:       true,
		Message:       gateway.MessageReleased,
		Authorization: released,
	}, nil
}

// CaptureAllAuthorized captures every open authorization of this gateway
// on the purchase, one result each. A failure does not stop the others;
// hard errors are joined.
func (p *Processor) CaptureAllAuthorized(ctx context.Context, purchaseID int64) ([]gateway.Result, error) {
	if p.authorizer == nil {
		return nil, nil
	}

	auths, err := p.repo.FindIncompleteAuthorizations(ctx, purchaseID, p.Key())
	if err != nil {
		return nil, err
	}

	results := make([]gateway.Result, 0, len(auths))
	var errs []error
	for _, auth := range auths {
		res, err := p.CaptureAuthorizedPayment(ctx, purchaseID, auth.ID, money.None)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// AuthorizeAndRelease verifies a card by authorizing a trivial amount and
// voiding it. A failed authorization is returned as is.
func (p *Processor) AuthorizeAndRelease(ctx context.Context, purchaseID int64, amount decimal.NullDecimal) (gateway.Result, error) {
	if !amount.Valid {
		amount = money.Some(money.VerificationAmount)
	}

	res, err := p.AuthorizePayment(ctx, purchaseID, amount)
	if err != nil || !res.Success || res.Authorization == nil {
		return res, err
	}

	return p.ReleaseAuthorizedPayment(ctx, purchaseID, res.Authorization.ID)
}

// CreatePendingPayment declares that the purchase will pay through this
// gateway next.
func (p *Processor) CreatePendingPayment(ctx context.Context, purchaseID int64, amount decimal.NullDecimal) (*model.PendingPayment, error) {
	if amount.Valid && amount.Decimal.IsNegative() {
		return nil, domainErrors.NewValidationError(purchaseID, p.Key(), domainErrors.ErrInvalidAmount)
	}
	return p.recorder.CreatePending(ctx, purchaseID, p.Key(), amount)
}

// AcceptNotification records what the gateway reported asynchronously.
// Redeliveries of a recorded transaction succeed without writing.
func (p *Processor) AcceptNotification(ctx context.Context, n gateway.Notification) (gateway.Result, error) {
	if n.PurchaseID == 0 {
		return p.invalid(0, domainErrors.ErrPurchaseNotFound), nil
	}

	rec := Record{
		Amount:        n.Amount,
		TransactionID: n.TransactionID,
		ReasonCode:    n.ReasonCode,
		Details:       n.Message,
	}

	if !n.Success {
		failure, err := p.recorder.RecordFailure(ctx, n.PurchaseID, p.Key(), rec)
		if err != nil {
			return p.recordError(n.PurchaseID, err)
		}
		return gateway.Result{
			Gateway: p.Key(),
			Message: gateway.PublicMessage(gateway.FailureDeclined),
			Failure: failure,
			Err:     domainErrors.NewGatewayFailure(n.PurchaseID, p.Key(), n.Message, nil),
		}, nil
	}

	payment, duplicate, err := p.recorder.CaptureNotified(ctx, n.PurchaseID, p.Key(), rec)
	if err != nil {
		return p.recordError(n.PurchaseID, err)
	}
	if duplicate {
		return gateway.Result{Gateway: p.Key(), Success: true, Message: gateway.MessageAlreadyProcessed}, nil
	}

	return gateway.Result{
		Gateway: p.Key(),
		Success: true,
		Message: gateway.MessageSuccess,
		Payment: payment,
	}, nil
}

// call runs fn under the gateway timeout.
func (p *Processor) call(ctx context.Context, op string, fn func(ctx context.Context) (gateway.Outcome, error)) (gateway.Outcome, error) {
	timeout := p.settings.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outcome, err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	if p.settings.ExtraLogging {
		p.logger.Info("Gateway call finished",
			zap.String("operation", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("success", err == nil && outcome.Success),
			zap.String("transaction_id", outcome.TransactionID),
			zap.String("reason_code", outcome.ReasonCode),
			zap.String("message", outcome.Message))
	}

	return outcome, err
}

// recordFailure writes the failure row and converts the outcome into a
// failed result. Only a storage error is returned as an error.
func (p *Processor) recordFailure(
	ctx context.Context,
	purchase *model.Purchase,
	amount decimal.Decimal,
	authID *int64,
	outcome gateway.Outcome,
	callErr error,
) (gateway.Result, error) {
	kind := outcome.Failure
	details := outcome.Message
	reason := outcome.ReasonCode
	if callErr != nil {
		kind = gateway.FailureUnavailable
		details = callErr.Error()
		if reason == "" {
			reason = "transport"
			if errors.Is(callErr, context.DeadlineExceeded) {
				reason = "timeout"
			}
		}
	}
	if kind == "" {
		kind = gateway.FailureError
	}

	failure, err := p.recorder.RecordFailure(ctx, purchase.ID, p.Key(), Record{
		Amount:          money.Some(amount),
		TransactionID:   outcome.TransactionID,
		ReasonCode:      reason,
		Details:         details,
		AuthorizationID: authID,
	})
	if err != nil {
		return p.recordError(purchase.ID, err)
	}

	return gateway.Result{
		Gateway: p.Key(),
		Message: gateway.PublicMessage(kind),
		Failure: failure,
		Err:     domainErrors.NewGatewayFailure(purchase.ID, p.Key(), details, callErr),
	}, nil
}

// recordError turns a validation error from the recorder into a failed
// result. Anything else is a hard error.
func (p *Processor) recordError(purchaseID int64, err error) (gateway.Result, error) {
	if domainErrors.IsKind(err, domainErrors.KindValidation) {
		return gateway.Result{
			Gateway: p.Key(),
			Message: gateway.MessageInvalidRequest,
			Err:     err,
		}, nil
	}
	return gateway.Result{
		Gateway: p.Key(),
		Message: gateway.PublicMessage(gateway.FailureError),
		Err:     err,
	}, err
}

func (p *Processor) loadPurchase(ctx context.Context, purchaseID int64) (*model.Purchase, gateway.Result, error) {
	purchase, err := p.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, gateway.Result{Gateway: p.Key(), Err: err}, err
	}
	if purchase == nil {
		return nil, p.invalid(purchaseID, domainErrors.ErrPurchaseNotFound), nil
	}
	return purchase, gateway.Result{}, nil
}

// loadAuthorization returns the authorization along with the result to
// give back when it cannot be used. A completed one yields a successful
// "already complete" result.
func (p *Processor) loadAuthorization(ctx context.Context, purchaseID, authorizationID int64) (*model.Authorization, gateway.Result, error) {
	auth, err := p.repo.GetAuthorization(ctx, authorizationID)
	if err != nil {
		return nil, gateway.Result{Gateway: p.Key(), Err: err}, err
	}

	switch {
	case auth == nil:
		return nil, p.invalid(purchaseID, domainErrors.ErrAuthorizationNotFound), nil
	case auth.PurchaseID != purchaseID:
		return nil, p.invalid(purchaseID, domainErrors.ErrWrongPurchase), nil
	case auth.Method != p.Key():
		return nil, p.invalid(purchaseID, domainErrors.ErrWrongGateway), nil
	case auth.Complete:
		return auth, p.alreadyComplete(auth), nil
	}
	return auth, gateway.Result{}, nil
}

// requestAmount is what to ask the gateway for: the explicit amount, else
// a non-zero pending amount for this gateway, else what is still owed.
func (p *Processor) requestAmount(purchase *model.Purchase, explicit decimal.NullDecimal, balances ledger.Balances) (decimal.Decimal, bool) {
	linked := money.None
	for i := range purchase.PendingPayments {
		if purchase.PendingPayments[i].Method == p.Key() {
			linked = money.Some(purchase.PendingPayments[i].Amount)
		}
	}

	amount := ledger.ResolveAmount(explicit, linked, balances.Remaining)
	return amount, amount.IsPositive()
}

func (p *Processor) chargeRequest(ctx context.Context, purchase *model.Purchase, amount decimal.Decimal) (gateway.ChargeRequest, error) {
	req := gateway.ChargeRequest{Purchase: purchase, Amount: amount}
	if p.cards == nil {
		return req, nil
	}

	card, err := p.cards.CardForPurchase(ctx, purchase.ID)
	if err != nil {
		return req, fmt.Errorf("failed to load card: %w", err)
	}
	req.Card = card
	return req, nil
}

func (p *Processor) invalid(purchaseID int64, cause error) gateway.Result {
	err := domainErrors.NewValidationError(purchaseID, p.Key(), cause)
	p.logger.Warn("Rejected payment request",
		zap.Int64("purchase_id", purchaseID),
		zap.Error(err))

	msg := gateway.MessageInvalidRequest
	if errors.Is(cause, domainErrors.ErrUnsupported) || errors.Is(cause, domainErrors.ErrHeadless) {
		msg = gateway.MessageUnsupported
	}
	return gateway.Result{Gateway: p.Key(), Message: msg, Err: err}
}

func (p *Processor) paidInFull(purchase *model.Purchase, balances ledger.Balances) gateway.Result {
	p.logger.Info("Purchase paid in full, no gateway call made",
		zap.Int64("purchase_id", purchase.ID),
		zap.String("total", money.String(balances.Total)),
		zap.String("remaining", money.String(balances.Remaining)))
	return gateway.Result{Gateway: p.Key(), Success: true, Message: gateway.MessagePaidInFull}
}

func (p *Processor) alreadyComplete(auth *model.Authorization) gateway.Result {
	return gateway.Result{
		Gateway:       p.Key(),
		Success:       true,
		Message:       gateway.MessageAlreadyComplete,
		Authorization: auth,
	}
}

// processedAmount prefers what the gateway says it processed.
func processedAmount(outcome gateway.Outcome, requested decimal.Decimal) decimal.Decimal {
	if outcome.Amount.Valid {
		return outcome.Amount.Decimal
	}
	return requested
}
