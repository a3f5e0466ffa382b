// Package bootstrap wires configuration, storage and gateways into the
// use cases shared by the commands.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/config"
	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/crypto"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/database"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/notify"
	"github.com/wekeepgrowing/bursar/internal/usecase"
	"github.com/wekeepgrowing/bursar/pkg/messaging"
)

// UseCases is the container of every use case.
type UseCases struct {
	Recorder  *usecase.PaymentRecorder
	Registry  *usecase.ProcessorRegistry
	Purchases *usecase.PurchaseService
	Cards     *usecase.CardVault
	Webhooks  *usecase.WebhookService
	Recurring *usecase.RecurringService
}

// NewUseCases builds the gateways and the use cases on top of them. A
// gateway that cannot be built is a startup error.
func NewUseCases(
	cfg *config.Config,
	repos *database.Repositories,
	publisher event.Publisher,
	logger *zap.Logger,
) (*UseCases, error) {
	cipher, err := crypto.NewAESGCM(cfg.Encryption.Key)
	if err != nil {
		return nil, domainErrors.NewConfigurationError("", fmt.Sprintf("encryption: %v", err))
	}

	factory := gateway.NewFactory(cfg, logger)
	regs, err := factory.Registrations()
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, domainErrors.NewConfigurationError("", "no gateway is enabled")
	}

	uc := &UseCases{}
	uc.Recorder = usecase.NewPaymentRecorder(repos.Ledger, publisher, logger)
	uc.Cards = usecase.NewCardVault(repos.CreditCard, repos.Ledger, cipher, logger)

	uc.Registry, err = usecase.NewProcessorRegistry(regs, uc.Recorder, repos.Ledger, uc.Cards, logger)
	if err != nil {
		return nil, err
	}

	uc.Purchases = usecase.NewPurchaseService(repos.Ledger, cfg.Service.Currency, logger)
	uc.Webhooks = usecase.NewWebhookService(uc.Registry, regs, factory.NotifySecrets(), repos.Webhook, logger)
	uc.Recurring = usecase.NewRecurringService(
		repos.Recurring,
		repos.Ledger,
		uc.Purchases,
		uc.Cards,
		uc.Registry,
		usecase.RecurringPolicy{
			BatchSize:   cfg.Recurring.BatchSize,
			MaxAttempts: cfg.Recurring.MaxAttempts,
			ClaimTTL:    cfg.Recurring.ClaimTTL,
		},
		logger,
	)

	return uc, nil
}

// NewPublisher starts the event dispatcher and, when configured, its Redis
// subscriber. The returned func drains the queue and closes Redis.
func NewPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (event.Publisher, func(), error) {
	dispatcher := notify.NewDispatcher(cfg.Notification.BufferSize, logger)

	var client *messaging.RedisClient
	if cfg.Notification.Redis.Enabled {
		var err error
		client, err = messaging.NewRedisClient(ctx, messaging.RedisOptions{
			Addr:        cfg.Notification.Redis.Addr,
			Password:    cfg.Notification.Redis.Password,
			DB:          cfg.Notification.Redis.DB,
			DialTimeout: cfg.Notification.Redis.DialTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		redisPub := notify.NewRedisPublisher(client, cfg.Notification.Channel, logger)
		dispatcher.Subscribe("redis", redisPub.Handle)
		logger.Info("Publishing payment events to Redis",
			zap.String("addr", cfg.Notification.Redis.Addr),
			zap.String("channel", cfg.Notification.Channel))
	}

	dispatcher.Start()

	cleanup := func() {
		dispatcher.Close()
		if client != nil {
			if err := client.Close(); err != nil {
				logger.Error("Failed to close redis client", zap.Error(err))
			}
		}
	}

	return dispatcher, cleanup, nil
}
