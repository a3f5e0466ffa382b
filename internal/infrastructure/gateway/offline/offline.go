// Package offline holds the gateways that never leave the building:
// payments taken outside the system and recorded as they are.
package offline

import (
	"context"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
)

const (
	KeyCOD           = "cod"
	KeyPurchaseOrder = "purchaseorder"
	KeyAutoSuccess   = "autosuccess"
	KeyBankTransfer  = "banktransfer"
)

// Adapter records every charge as successful under a fixed transaction id.
type Adapter struct {
	settings      gateway.Settings
	transactionID string
	caps          gateway.Capabilities
	logger        *zap.Logger
}

// NewCOD creates the cash on delivery gateway.
func NewCOD(settings gateway.Settings, logger *zap.Logger) *Adapter {
	return newAdapter(settings, KeyCOD, "cod", gateway.Capabilities{}, logger)
}

// NewPurchaseOrder creates the purchase order gateway.
func NewPurchaseOrder(settings gateway.Settings, logger *zap.Logger) *Adapter {
	return newAdapter(settings, KeyPurchaseOrder, "PO", gateway.Capabilities{Refund: true}, logger)
}

// NewAutoSuccess creates a gateway that accepts everything. Meant for
// free orders and demos.
func NewAutoSuccess(settings gateway.Settings, logger *zap.Logger) *Adapter {
	return newAdapter(settings, KeyAutoSuccess, "AUTO", gateway.Capabilities{}, logger)
}

func newAdapter(settings gateway.Settings, key, txn string, caps gateway.Capabilities, logger *zap.Logger) *Adapter {
	if settings.Key == "" {
		settings.Key = key
	}
	return &Adapter{settings: settings, transactionID: txn, caps: caps, logger: logger}
}

func (a *Adapter) Key() string                        { return a.settings.Key }
func (a *Adapter) Capabilities() gateway.Capabilities { return a.caps }

func (a *Adapter) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Outcome{}, err
	}

	a.logger.Info("Offline payment accepted",
		zap.String("gateway", a.Key()),
		zap.Int64("purchase_id", req.Purchase.ID),
		zap.String("amount", money.String(req.Amount)))

	return gateway.Outcome{
		Success:       true,
		TransactionID: a.transactionID,
		Message:       a.settings.Label,
		Amount:        money.Some(req.Amount),
	}, nil
}

// Headless is a gateway whose payments are confirmed only by notification,
// such as a bank transfer.
type Headless struct {
	settings gateway.Settings
}

// NewBankTransfer creates the bank transfer gateway.
func NewBankTransfer(settings gateway.Settings) *Headless {
	if settings.Key == "" {
		settings.Key = KeyBankTransfer
	}
	return &Headless{settings: settings}
}

func (h *Headless) Key() string { return h.settings.Key }

func (h *Headless) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{Headless: true}
}
