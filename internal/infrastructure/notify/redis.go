package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/pkg/messaging"
)

// RedisPublisher forwards events to a Redis channel for out-of-process
// subscribers.
type RedisPublisher struct {
	publisher messaging.Publisher
	channel   string
	logger    *zap.Logger
}

func NewRedisPublisher(publisher messaging.Publisher, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		publisher: publisher,
		channel:   channel,
		logger:    logger,
	}
}

// Handle is a dispatcher Handler.
func (p *RedisPublisher) Handle(ctx context.Context, e event.PaymentCompleted) error {
	if err := p.publisher.Publish(ctx, p.channel, e); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}

	p.logger.Debug("Event published",
		zap.String("channel", p.channel),
		zap.Int64("purchase_id", e.PurchaseID),
		zap.Int64("payment_id", e.PaymentID))
	return nil
}
