package stripe

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

// ParseNotification verifies a Stripe-Signature header and normalizes
// payment intent events. Other event types come back without a purchase.
func (a *Adapter) ParseNotification(payload []byte, signature string) (gateway.Notification, error) {
	if a.webhookSecret == "" {
		return gateway.Notification{}, domainErrors.NewConfigurationError(a.Key(), "Stripe webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, a.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		a.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		return gateway.Notification{}, domainErrors.NewValidationError(0, a.Key(), domainErrors.ErrInvalidSignature)
	}

	n := gateway.Notification{
		EventID:   event.ID,
		EventType: string(event.Type),
		Gateway:   a.Key(),
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
	default:
		return n, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return n, fmt.Errorf("failed to parse payment intent: %w", err)
	}

	purchaseID, err := strconv.ParseInt(pi.Metadata[metadataPurchaseID], 10, 64)
	if err != nil {
		a.logger.Warn("Payment intent carries no purchase id",
			zap.String("event_id", event.ID),
			zap.String("payment_intent", pi.ID))
		return n, nil
	}

	n.PurchaseID = purchaseID
	n.TransactionID = pi.ID
	if event.Type == stripe.EventTypePaymentIntentSucceeded {
		n.Success = true
		n.ReasonCode = string(pi.Status)
		n.Amount = money.Some(money.FromMinorUnits(pi.AmountReceived))
		return n, nil
	}

	n.Amount = money.Some(money.FromMinorUnits(pi.Amount))
	if pi.LastPaymentError != nil {
		n.ReasonCode = string(pi.LastPaymentError.Code)
		if pi.LastPaymentError.DeclineCode != "" {
			n.ReasonCode = string(pi.LastPaymentError.DeclineCode)
		}
		n.Message = pi.LastPaymentError.Msg
	}
	return n, nil
}
