// Package braintree charges vaulted payment methods through Braintree
// transactions. Authorize creates a sale without settlement; capture
// submits it for settlement.
package braintree

import (
	"context"
	"errors"
	"fmt"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

const Key = "braintree"

// Credentials of a Braintree merchant account.
type Credentials struct {
	MerchantID string
	PublicKey  string
	PrivateKey string
}

// Adapter implements gateway.Charger and gateway.Authorizer.
type Adapter struct {
	settings gateway.Settings
	bt       *braintree.Braintree
	logger   *zap.Logger
}

// NewAdapter creates the Braintree gateway against production when
// settings are live, the sandbox otherwise.
func NewAdapter(settings gateway.Settings, creds Credentials, logger *zap.Logger) (*Adapter, error) {
	if settings.Key == "" {
		settings.Key = Key
	}
	if creds.MerchantID == "" || creds.PublicKey == "" || creds.PrivateKey == "" {
		return nil, domainErrors.NewConfigurationError(settings.Key, "Braintree merchant id and keys are required")
	}

	env := braintree.Sandbox
	if settings.Live {
		env = braintree.Production
	}

	return &Adapter{
		settings: settings,
		bt:       braintree.New(env, creds.MerchantID, creds.PublicKey, creds.PrivateKey),
		logger:   logger,
	}, nil
}

func (a *Adapter) Key() string {
	return a.settings.Key
}

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{Authorize: true, Refund: true, RecurBill: true}
}

func (a *Adapter) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	return a.sale(ctx, req, true)
}

func (a *Adapter) Authorize(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	return a.sale(ctx, req, false)
}

func (a *Adapter) CapturePrior(ctx context.Context, req gateway.CaptureRequest) (gateway.Outcome, error) {
	tx, err := a.bt.Transaction().SubmitForSettlement(ctx, req.Authorization.TransactionID, toBraintree(req.Amount))
	return a.outcome(tx, err, braintree.TransactionStatusSubmittedForSettlement, braintree.TransactionStatusSettling, braintree.TransactionStatusSettled)
}

func (a *Adapter) Void(ctx context.Context, req gateway.CaptureRequest) (gateway.Outcome, error) {
	tx, err := a.bt.Transaction().Void(ctx, req.Authorization.TransactionID)
	return a.outcome(tx, err, braintree.TransactionStatusVoided)
}

func (a *Adapter) sale(ctx context.Context, req gateway.ChargeRequest, settle bool) (gateway.Outcome, error) {
	if req.Card == nil {
		return gateway.Outcome{
			ReasonCode: "no_payment_method",
			Message:    "no stored card for purchase",
			Failure:    gateway.FailureInvalidCard,
		}, nil
	}

	txReq := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             toBraintree(req.Amount),
		PaymentMethodToken: req.Card.Token,
		OrderId:            req.Purchase.OrderNo,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: settle,
		},
	}

	tx, err := a.bt.Transaction().Create(ctx, txReq)
	if settle {
		return a.outcome(tx, err, braintree.TransactionStatusSubmittedForSettlement, braintree.TransactionStatusSettling, braintree.TransactionStatusSettled)
	}
	return a.outcome(tx, err, braintree.TransactionStatusAuthorized)
}

// outcome translates a transaction call. Validation and processor
// rejections are gateway answers; anything else is a transport error.
func (a *Adapter) outcome(tx *braintree.Transaction, err error, want ...braintree.TransactionStatus) (gateway.Outcome, error) {
	if err != nil {
		var bte *braintree.BraintreeError
		if !errors.As(err, &bte) {
			return gateway.Outcome{}, err
		}

		a.logger.Warn("Braintree rejected request",
			zap.Int("status", bte.StatusCode()),
			zap.String("message", bte.ErrorMessage))

		if bte.Transaction == nil {
			kind := gateway.FailureError
			if bte.StatusCode() >= 500 {
				kind = gateway.FailureUnavailable
			}
			return gateway.Outcome{
				ReasonCode: "validation",
				Message:    bte.ErrorMessage,
				Failure:    kind,
			}, nil
		}
		tx = bte.Transaction
	}

	for _, status := range want {
		if tx.Status == status {
			o := gateway.Outcome{
				Success:       true,
				TransactionID: tx.Id,
				ReasonCode:    string(tx.Status),
				Message:       tx.ProcessorResponseText,
			}
			if tx.Amount != nil {
				o.Amount = money.Some(fromBraintree(tx.Amount))
			}
			return o, nil
		}
	}

	kind := gateway.FailureError
	switch tx.Status {
	case braintree.TransactionStatusProcessorDeclined:
		kind = gateway.FailureDeclined
	case braintree.TransactionStatusGatewayRejected:
		kind = gateway.FailureInvalidCard
	}

	return gateway.Outcome{
		TransactionID: tx.Id,
		ReasonCode:    fmt.Sprint(tx.ProcessorResponseCode),
		Message:       fmt.Sprintf("%s: %s", tx.Status, tx.ProcessorResponseText),
		Failure:       kind,
	}, nil
}

func toBraintree(d decimal.Decimal) *braintree.Decimal {
	return braintree.NewDecimal(money.ToMinorUnits(d), money.Places)
}

func fromBraintree(d *braintree.Decimal) decimal.Decimal {
	return decimal.New(d.Unscaled, int32(-d.Scale))
}
