package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

// SignNotification is the hex HMAC-SHA256 of body, as expected in the
// signature header of a posted notification.
func SignNotification(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookService stores incoming gateway notifications once and applies
// them to the ledger.
type WebhookService struct {
	registry *ProcessorRegistry
	parsers  map[string]gateway.NotificationParser
	secrets  map[string]string
	repo     domainRepo.WebhookRepository
	logger   *zap.Logger
}

// NewWebhookService picks up a parser from every registered adapter that
// verifies its own webhooks. secrets holds the shared secret of each
// gateway accepting signed JSON notifications.
func NewWebhookService(
	registry *ProcessorRegistry,
	regs []gateway.Registration,
	secrets map[string]string,
	repo domainRepo.WebhookRepository,
	logger *zap.Logger,
) *WebhookService {
	parsers := make(map[string]gateway.NotificationParser)
	for _, reg := range regs {
		if parser, ok := reg.Adapter.(gateway.NotificationParser); ok {
			parsers[reg.Adapter.Key()] = parser
		}
	}

	return &WebhookService{
		registry: registry,
		parsers:  parsers,
		secrets:  secrets,
		repo:     repo,
		logger:   logger,
	}
}

// HandleGateway verifies and applies a webhook in the gateway's own
// format. It returns nil for events the ledger ignores.
func (s *WebhookService) HandleGateway(ctx context.Context, key string, payload []byte, signature string) (*gateway.Result, error) {
	parser, ok := s.parsers[key]
	if !ok {
		return nil, domainErrors.NewValidationError(0, key, domainErrors.ErrUnknownGateway)
	}

	n, err := parser.ParseNotification(payload, signature)
	if err != nil {
		s.logger.Warn("Webhook rejected",
			zap.String("gateway", key),
			zap.Error(err))
		return nil, err
	}
	n.Gateway = key

	return s.accept(ctx, n)
}

// HandleNotify verifies and applies a signed JSON notification.
func (s *WebhookService) HandleNotify(ctx context.Context, key string, payload []byte, signature string) (*gateway.Result, error) {
	secret := s.secrets[key]
	if secret == "" {
		return nil, domainErrors.NewValidationError(0, key, domainErrors.ErrUnknownGateway)
	}

	expected := SignNotification(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.logger.Warn("Notification signature mismatch", zap.String("gateway", key))
		return nil, domainErrors.NewValidationError(0, key, domainErrors.ErrInvalidSignature)
	}

	var n gateway.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domainErrors.NewValidationError(0, key, fmt.Errorf("malformed notification: %w", err))
	}
	if n.EventID == "" {
		return nil, domainErrors.NewValidationError(n.PurchaseID, key, errors.New("event_id is required"))
	}
	n.Gateway = key

	return s.accept(ctx, n)
}

// RetryPending re-applies stored events that failed or were never
// finished. It returns how many now succeeded.
func (s *WebhookService) RetryPending(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.ListRetryable(ctx, limit)
	if err != nil {
		return 0, err
	}

	succeeded := 0
	for _, e := range events {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}

		n, err := decodeEvent(e)
		if err != nil {
			s.logger.Error("Stored webhook event is unreadable",
				zap.String("event_id", e.EventID),
				zap.Error(err))
			if markErr := s.repo.Fail(ctx, e.Gateway, e.EventID, err); markErr != nil {
				return succeeded, markErr
			}
			continue
		}

		if _, err := s.process(ctx, n); err != nil {
			s.logger.Warn("Webhook retry failed",
				zap.String("event_id", e.EventID),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(err))
			continue
		}
		succeeded++
	}

	s.logger.Info("Webhook retry finished",
		zap.Int("events", len(events)),
		zap.Int("succeeded", succeeded))

	return succeeded, nil
}

func (s *WebhookService) accept(ctx context.Context, n gateway.Notification) (*gateway.Result, error) {
	if n.PurchaseID == 0 {
		s.logger.Debug("Webhook ignored",
			zap.String("gateway", n.Gateway),
			zap.String("event_id", n.EventID),
			zap.String("event_type", n.EventType))
		return nil, nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	stored, err := s.repo.Record(ctx, n.Gateway, n.EventID, n.EventType, data)
	if err != nil {
		return nil, err
	}
	if !stored {
		s.logger.Info("Duplicate webhook",
			zap.String("gateway", n.Gateway),
			zap.String("event_id", n.EventID))
		return &gateway.Result{Gateway: n.Gateway, Success: true, Message: gateway.MessageAlreadyProcessed}, nil
	}

	return s.process(ctx, n)
}

// process applies n and records the event's state. Validation results are
// final and mark the event processed.
func (s *WebhookService) process(ctx context.Context, n gateway.Notification) (*gateway.Result, error) {
	proc, err := s.registry.Get(n.Gateway)
	if err != nil {
		return nil, s.fail(ctx, n, err)
	}

	res, err := proc.AcceptNotification(ctx, n)
	if err != nil {
		return nil, s.fail(ctx, n, err)
	}

	if err := s.repo.Complete(ctx, n.Gateway, n.EventID); err != nil {
		return nil, err
	}

	s.logger.Info("Webhook processed",
		zap.String("gateway", n.Gateway),
		zap.String("event_id", n.EventID),
		zap.Int64("purchase_id", n.PurchaseID),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message))

	return &res, nil
}

func (s *WebhookService) fail(ctx context.Context, n gateway.Notification, cause error) error {
	if err := s.repo.Fail(context.WithoutCancel(ctx), n.Gateway, n.EventID, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func decodeEvent(e *model.WebhookEvent) (gateway.Notification, error) {
	var n gateway.Notification
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return n, fmt.Errorf("failed to decode webhook event: %w", err)
	}
	n.Gateway = e.Gateway
	n.EventID = e.EventID
	return n, nil
}
