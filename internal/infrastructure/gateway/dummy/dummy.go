// Package dummy is a test gateway that needs no network. Cards ending in
// 2222 are declined and cards ending in 0000 act as if the gateway were
// down; everything else succeeds.
package dummy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

const (
	Key = "dummy"

	DeclineLastFour     = "2222"
	UnavailableLastFour = "0000"
)

// ErrUnavailable is returned for the unavailable test card.
var ErrUnavailable = errors.New("dummy gateway unavailable")

// Adapter implements gateway.Charger and gateway.Authorizer.
type Adapter struct {
	settings gateway.Settings
	logger   *zap.Logger
}

// NewAdapter creates the dummy gateway.
func NewAdapter(settings gateway.Settings, logger *zap.Logger) *Adapter {
	if settings.Key == "" {
		settings.Key = Key
	}
	return &Adapter{settings: settings, logger: logger}
}

func (a *Adapter) Key() string {
	return a.settings.Key
}

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{Authorize: true, RecurBill: true}
}

func (a *Adapter) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	return a.respond(ctx, req.Card, req.Amount.String(), func() gateway.Outcome {
		return gateway.Outcome{
			Success:       true,
			TransactionID: uuid.NewString(),
			ReasonCode:    "charged",
			Message:       "Dummy charge approved",
			Amount:        money.Some(req.Amount),
		}
	})
}

func (a *Adapter) Authorize(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	return a.respond(ctx, req.Card, req.Amount.String(), func() gateway.Outcome {
		return gateway.Outcome{
			Success:       true,
			TransactionID: uuid.NewString(),
			ReasonCode:    "authorized",
			Message:       "Dummy authorization approved",
			Amount:        money.Some(req.Amount),
		}
	})
}

func (a *Adapter) CapturePrior(ctx context.Context, req gateway.CaptureRequest) (gateway.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Outcome{}, err
	}
	return gateway.Outcome{
		Success:       true,
		TransactionID: req.Authorization.TransactionID,
		ReasonCode:    "captured",
		Message:       "Dummy capture approved",
		Amount:        money.Some(req.Amount),
	}, nil
}

func (a *Adapter) Void(ctx context.Context, req gateway.CaptureRequest) (gateway.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Outcome{}, err
	}
	return gateway.Outcome{
		Success:       true,
		TransactionID: req.Authorization.TransactionID,
		ReasonCode:    "voided",
		Message:       "Dummy authorization voided",
	}, nil
}

func (a *Adapter) respond(ctx context.Context, card *gateway.Card, amount string, approve func() gateway.Outcome) (gateway.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Outcome{}, err
	}

	if card != nil {
		switch card.LastFour {
		case DeclineLastFour:
			return gateway.Outcome{
				TransactionID: uuid.NewString(),
				ReasonCode:    "2",
				Message:       "Dummy card declined",
				Failure:       gateway.FailureDeclined,
			}, nil
		case UnavailableLastFour:
			return gateway.Outcome{}, ErrUnavailable
		}
	}

	outcome := approve()
	if a.settings.ExtraLogging {
		a.logger.Debug("Dummy gateway approved",
			zap.String("amount", amount),
			zap.String("transaction_id", outcome.TransactionID))
	}
	return outcome, nil
}
