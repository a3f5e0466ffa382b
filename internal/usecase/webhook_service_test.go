package usecase_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/adapter/repository"
	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway/offline"
	"github.com/wekeepgrowing/bursar/internal/usecase"
)

const notifySecret = "s3cret"

// pushGateway is a headless gateway that verifies its own webhooks.
type pushGateway struct {
	key          string
	notification gateway.Notification
	err          error
}

func (g pushGateway) Key() string { return g.key }
func (g pushGateway) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{Headless: true}
}
func (g pushGateway) ParseNotification([]byte, string) (gateway.Notification, error) {
	return g.notification, g.err
}

func (f *ledgerFixture) webhookService(t *testing.T, regs []gateway.Registration, secrets map[string]string) *usecase.WebhookService {
	t.Helper()

	registry, err := usecase.NewProcessorRegistry(regs, f.recorder, f.repo, nil, zap.NewNop())
	require.NoError(t, err)

	webhooks := repository.NewWebhookRepository(f.db, zap.NewNop())
	return usecase.NewWebhookService(registry, regs, secrets, webhooks, zap.NewNop())
}

func signedNotification(t *testing.T, n gateway.Notification) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(n)
	require.NoError(t, err)
	return body, usecase.SignNotification(notifySecret, body)
}

func TestWebhookService_HandleNotify(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	svc := f.webhookService(t,
		[]gateway.Registration{{Adapter: offline.NewBankTransfer(gateway.Settings{})}},
		map[string]string{offline.KeyBankTransfer: notifySecret})
	purchase := f.purchase(t, "80")

	body, sig := signedNotification(t, gateway.Notification{
		EventID:       "bank-1",
		EventType:     "transfer.received",
		PurchaseID:    purchase.ID,
		Success:       true,
		TransactionID: "wire-77",
	})

	res, err := svc.HandleNotify(ctx, offline.KeyBankTransfer, body, sig)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assertAmount(t, "80", res.Payment.Amount)
	assert.True(t, f.balances(t, purchase.ID).PaidInFull())

	t.Run("redelivery", func(t *testing.T) {
		res, err := svc.HandleNotify(ctx, offline.KeyBankTransfer, body, sig)
		require.NoError(t, err)
		assert.Equal(t, gateway.MessageAlreadyProcessed, res.Message)
		assert.Len(t, f.reload(t, purchase.ID).Payments, 1)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, err := svc.HandleNotify(ctx, offline.KeyBankTransfer, body, "00")
		assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		_, err := svc.HandleNotify(ctx, "cod", body, sig)
		assert.ErrorIs(t, err, domainErrors.ErrUnknownGateway)
	})

	t.Run("missing event id", func(t *testing.T) {
		body, sig := signedNotification(t, gateway.Notification{PurchaseID: purchase.ID, Success: true, TransactionID: "x"})
		_, err := svc.HandleNotify(ctx, offline.KeyBankTransfer, body, sig)
		assert.True(t, domainErrors.IsKind(err, domainErrors.KindValidation))
	})
}

func TestWebhookService_HandleGateway(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	purchase := f.purchase(t, "40")

	t.Run("applies parsed notification", func(t *testing.T) {
		gw := pushGateway{key: "push", notification: gateway.Notification{
			EventID:       "evt_1",
			PurchaseID:    purchase.ID,
			Success:       true,
			TransactionID: "pi_1",
		}}
		svc := f.webhookService(t, []gateway.Registration{{Adapter: gw}}, nil)

		res, err := svc.HandleGateway(ctx, "push", []byte("{}"), "sig")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.True(t, res.Success)

		stored, err := repository.NewWebhookRepository(f.db, zap.NewNop()).Find(ctx, "push", "evt_1")
		require.NoError(t, err)
		assert.Equal(t, model.WebhookStatusCompleted, stored.Status)
	})

	t.Run("ignored event", func(t *testing.T) {
		gw := pushGateway{key: "push", notification: gateway.Notification{EventID: "evt_2", EventType: "customer.created"}}
		svc := f.webhookService(t, []gateway.Registration{{Adapter: gw}}, nil)

		res, err := svc.HandleGateway(ctx, "push", []byte("{}"), "sig")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("rejected signature", func(t *testing.T) {
		rejected := domainErrors.NewValidationError(0, "push", domainErrors.ErrInvalidSignature)
		svc := f.webhookService(t, []gateway.Registration{{Adapter: pushGateway{key: "push", err: rejected}}}, nil)

		_, err := svc.HandleGateway(ctx, "push", []byte("{}"), "bad")
		assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)

		_, err = svc.HandleGateway(ctx, "other", []byte("{}"), "bad")
		assert.ErrorIs(t, err, domainErrors.ErrUnknownGateway)
	})
}

func TestWebhookService_RetryPending(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	purchase := f.purchase(t, "15")
	secrets := map[string]string{"late": notifySecret}

	// "late" is not registered yet, so the first delivery fails and is
	// kept for retry.
	first := f.webhookService(t, nil, secrets)
	body, sig := signedNotification(t, gateway.Notification{
		EventID:       "late-1",
		PurchaseID:    purchase.ID,
		Success:       true,
		TransactionID: "late-tx",
	})

	_, err := first.HandleNotify(ctx, "late", body, sig)
	require.Error(t, err)

	webhooks := repository.NewWebhookRepository(f.db, zap.NewNop())
	stored, err := webhooks.Find(ctx, "late", "late-1")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	require.NoError(t, f.db.Model(&model.WebhookEvent{}).
		Where("event_id = ?", "late-1").
		Update("next_retry_at", nil).Error)

	second := f.webhookService(t, []gateway.Registration{{Adapter: pushGateway{key: "late"}}}, secrets)
	succeeded, err := second.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.balances(t, purchase.ID).PaidInFull())

	stored, err = webhooks.Find(ctx, "late", "late-1")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusCompleted, stored.Status)

	succeeded, err = second.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, succeeded)
}
