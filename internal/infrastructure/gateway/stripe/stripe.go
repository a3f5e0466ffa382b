// Package stripe charges cards through Stripe PaymentIntents. Authorize
// creates an intent with manual capture; the intent id is the transaction
// id for every later call and for webhooks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

const (
	Key = "stripe"

	metadataPurchaseID = "purchase_id"
	metadataOrderNo    = "order_no"
)

// Adapter implements gateway.Charger, gateway.Authorizer and
// gateway.NotificationParser.
type Adapter struct {
	settings      gateway.Settings
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewAdapter creates the Stripe gateway. A missing secret key is a
// configuration error.
func NewAdapter(settings gateway.Settings, secretKey, webhookSecret string, logger *zap.Logger) (*Adapter, error) {
	if settings.Key == "" {
		settings.Key = Key
	}
	if secretKey == "" {
		return nil, domainErrors.NewConfigurationError(settings.Key, "Stripe secret key not configured")
	}
	if settings.Live && strings.HasPrefix(secretKey, "sk_test_") {
		return nil, domainErrors.NewConfigurationError(settings.Key, "live mode configured with a test key")
	}

	return &Adapter{
		settings:      settings,
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		logger:        logger,
	}, nil
}

func (a *Adapter) Key() string {
	return a.settings.Key
}

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{Authorize: true, Refund: true, RecurBill: true}
}

// Charge creates and confirms an intent that captures automatically.
func (a *Adapter) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	if req.Card == nil {
		return noCard(), nil
	}

	params := a.intentParams(ctx, req, stripe.PaymentIntentCaptureMethodAutomatic)
	pi, err := a.api.PaymentIntents.New(params)
	return a.outcome(pi, err, stripe.PaymentIntentStatusSucceeded)
}

// Authorize creates and confirms an intent that waits for capture.
func (a *Adapter) Authorize(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	if req.Card == nil {
		return noCard(), nil
	}

	params := a.intentParams(ctx, req, stripe.PaymentIntentCaptureMethodManual)
	pi, err := a.api.PaymentIntents.New(params)
	return a.outcome(pi, err, stripe.PaymentIntentStatusRequiresCapture)
}

// CapturePrior captures an authorized intent, possibly partially.
func (a *Adapter) CapturePrior(ctx context.Context, req gateway.CaptureRequest) (gateway.Outcome, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(money.ToMinorUnits(req.Amount)),
	}
	params.Context = ctx

	pi, err := a.api.PaymentIntents.Capture(req.Authorization.TransactionID, params)
	return a.outcome(pi, err, stripe.PaymentIntentStatusSucceeded)
}

// Void cancels an authorized intent.
func (a *Adapter) Void(ctx context.Context, req gateway.CaptureRequest) (gateway.Outcome, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	pi, err := a.api.PaymentIntents.Cancel(req.Authorization.TransactionID, params)
	return a.outcome(pi, err, stripe.PaymentIntentStatusCanceled)
}

func (a *Adapter) intentParams(ctx context.Context, req gateway.ChargeRequest, method stripe.PaymentIntentCaptureMethod) *stripe.PaymentIntentParams {
	currency := req.Purchase.Currency
	if currency == "" {
		currency = a.settings.Currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(money.ToMinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(currency)),
		PaymentMethod: stripe.String(req.Card.Token),
		CaptureMethod: stripe.String(string(method)),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("Order " + req.Purchase.OrderNo),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.Purchase.Email != "" {
		params.ReceiptEmail = stripe.String(req.Purchase.Email)
	}
	params.Context = ctx
	params.AddMetadata(metadataPurchaseID, strconv.FormatInt(req.Purchase.ID, 10))
	params.AddMetadata(metadataOrderNo, req.Purchase.OrderNo)

	return params
}

// outcome translates a PaymentIntents call. API errors are gateway
// answers; anything else is a transport error.
func (a *Adapter) outcome(pi *stripe.PaymentIntent, err error, want stripe.PaymentIntentStatus) (gateway.Outcome, error) {
	if err != nil {
		var se *stripe.Error
		if !errors.As(err, &se) {
			return gateway.Outcome{}, err
		}

		o := gateway.Outcome{
			ReasonCode: string(se.Code),
			Message:    se.Msg,
			Failure:    failureKind(se),
		}
		if se.DeclineCode != "" {
			o.ReasonCode = string(se.DeclineCode)
		}
		if se.PaymentIntent != nil {
			o.TransactionID = se.PaymentIntent.ID
		}

		a.logger.Warn("Stripe rejected request",
			zap.String("type", string(se.Type)),
			zap.String("code", string(se.Code)),
			zap.Int("status", se.HTTPStatusCode),
			zap.String("request_id", se.RequestID))
		return o, nil
	}

	if pi.Status != want {
		return gateway.Outcome{
			TransactionID: pi.ID,
			ReasonCode:    string(pi.Status),
			Message:       fmt.Sprintf("payment intent is %s, expected %s", pi.Status, want),
			Failure:       gateway.FailureDeclined,
		}, nil
	}

	o := gateway.Outcome{
		Success:       true,
		TransactionID: pi.ID,
		ReasonCode:    string(pi.Status),
	}
	switch want {
	case stripe.PaymentIntentStatusSucceeded:
		o.Amount = money.Some(money.FromMinorUnits(pi.AmountReceived))
	case stripe.PaymentIntentStatusRequiresCapture:
		o.Amount = money.Some(money.FromMinorUnits(pi.AmountCapturable))
	}
	return o, nil
}

func failureKind(se *stripe.Error) gateway.FailureKind {
	switch se.Type {
	case stripe.ErrorTypeCard:
		if se.Code == stripe.ErrorCodeCardDeclined {
			return gateway.FailureDeclined
		}
		return gateway.FailureInvalidCard
	case stripe.ErrorTypeAPI:
		return gateway.FailureUnavailable
	default:
		if se.HTTPStatusCode == 429 || se.HTTPStatusCode >= 500 {
			return gateway.FailureUnavailable
		}
		return gateway.FailureError
	}
}

func noCard() gateway.Outcome {
	return gateway.Outcome{
		ReasonCode: "no_payment_method",
		Message:    "no stored card for purchase",
		Failure:    gateway.FailureInvalidCard,
	}
}
