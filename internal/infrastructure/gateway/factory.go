// Package gateway builds the configured gateway adapters.
package gateway

import (
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/config"
	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	domainGateway "github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway/braintree"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway/dummy"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway/offline"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway/stripe"
)

// Factory creates gateway adapters from configuration
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory creates a new gateway factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: cfg,
		logger: logger,
	}
}

// Registrations builds an adapter for every enabled gateway. The first
// gateway that cannot be built fails the whole set.
func (f *Factory) Registrations() ([]domainGateway.Registration, error) {
	var regs []domainGateway.Registration

	for _, key := range f.config.GatewayKeys() {
		gw, _ := f.config.Gateway(key)
		if !gw.Enabled {
			continue
		}

		reg, err := f.Build(key, gw)
		if err != nil {
			f.logger.Error("Failed to build gateway",
				zap.String("gateway", key),
				zap.String("kind", gw.Type()),
				zap.Error(err))
			return nil, err
		}
		regs = append(regs, reg)
	}

	return regs, nil
}

// Build creates the adapter for one gateway.
func (f *Factory) Build(key string, gw config.GatewayConfig) (domainGateway.Registration, error) {
	settings := f.settings(key, gw)
	log := f.logger.With(zap.String("gateway", key))

	var (
		adapter domainGateway.Adapter
		err     error
	)

	switch gw.Type() {
	case dummy.Key:
		if settings.Live {
			return domainGateway.Registration{}, domainErrors.NewConfigurationError(key, "the dummy gateway cannot run live")
		}
		adapter = dummy.NewAdapter(settings, log)
	case offline.KeyCOD:
		adapter = offline.NewCOD(settings, log)
	case offline.KeyPurchaseOrder:
		adapter = offline.NewPurchaseOrder(settings, log)
	case offline.KeyAutoSuccess:
		adapter = offline.NewAutoSuccess(settings, log)
	case offline.KeyBankTransfer:
		adapter = offline.NewBankTransfer(settings)
	case stripe.Key:
		adapter, err = stripe.NewAdapter(settings, gw.Credentials.SecretKey, gw.Credentials.WebhookSecret, log)
	case braintree.Key:
		adapter, err = braintree.NewAdapter(settings, braintree.Credentials{
			MerchantID: gw.Credentials.MerchantID,
			PublicKey:  gw.Credentials.PublicKey,
			PrivateKey: gw.Credentials.PrivateKey,
		}, log)
	default:
		return domainGateway.Registration{}, domainErrors.NewConfigurationError(key, "unsupported gateway kind: "+gw.Type())
	}
	if err != nil {
		return domainGateway.Registration{}, err
	}

	return domainGateway.Registration{Adapter: adapter, Settings: settings}, nil
}

// NotifySecrets returns the shared secrets of the gateways that accept
// signed notifications, by key.
func (f *Factory) NotifySecrets() map[string]string {
	secrets := make(map[string]string)
	for _, key := range f.config.GatewayKeys() {
		gw, _ := f.config.Gateway(key)
		if gw.Enabled && gw.Credentials.NotifySecret != "" {
			secrets[key] = gw.Credentials.NotifySecret
		}
	}
	return secrets
}

func (f *Factory) settings(key string, gw config.GatewayConfig) domainGateway.Settings {
	label := gw.Label
	if label == "" {
		label = key
	}
	return domainGateway.Settings{
		Key:                key,
		Label:              label,
		Live:               gw.Live,
		CaptureImmediately: gw.CaptureImmediately,
		ExtraLogging:       gw.ExtraLogging,
		Timeout:            gw.Timeout,
		Currency:           f.config.Service.Currency,
	}
}
