package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/adapter/repository"
	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"github.com/wekeepgrowing/bursar/internal/testutil"
)

func newPurchase(total string) *model.Purchase {
	return &model.Purchase{
		OrderNo:  "ORD-" + total,
		Email:    "buyer@example.com",
		Currency: "USD",
		SubTotal: decimal.RequireFromString(total),
		Total:    decimal.RequireFromString(total),
	}
}

func TestLedgerRepository_CreateAndGetPurchase(t *testing.T) {
	repo := repository.NewLedgerRepository(testutil.NewDB(t), zap.NewNop())
	ctx := context.Background()

	purchase := newPurchase("0")
	purchase.LineItems = []model.LineItem{
		{Name: "Widget", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("10.00"), Ordering: 1},
		{Name: "Gadget", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("5.50"), Ordering: 2},
	}
	purchase.Recalc()
	require.NoError(t, repo.CreatePurchase(ctx, purchase))

	loaded, err := repo.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Total.Equal(decimal.RequireFromString("25.50")))
	require.Len(t, loaded.LineItems, 2)
	assert.Equal(t, "Widget", loaded.LineItems[0].Name)

	byOrder, err := repo.GetPurchaseByOrderNo(ctx, purchase.OrderNo)
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, purchase.ID, byOrder.ID)

	missing, err := repo.GetPurchase(ctx, 9999)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedgerRepository_WithPurchaseLock(t *testing.T) {
	repo := repository.NewLedgerRepository(testutil.NewDB(t), zap.NewNop())
	ctx := context.Background()

	purchase := newPurchase("125.00")
	require.NoError(t, repo.CreatePurchase(ctx, purchase))

	t.Run("writes commit together", func(t *testing.T) {
		err := repo.WithPurchaseLock(ctx, purchase.ID, func(tx domainRepo.LedgerTx) error {
			placeholder := &model.Payment{PurchaseID: purchase.ID, Method: "dummy", TransactionID: model.LinkedTransactionID}
			if err := tx.CreatePayment(placeholder); err != nil {
				return err
			}
			paid := &model.Payment{PurchaseID: purchase.ID, Method: "dummy", Amount: decimal.RequireFromString("25.00"), Success: true, TransactionID: "txn-1"}
			return tx.CreatePayment(paid)
		})
		require.NoError(t, err)

		loaded, err := repo.GetPurchase(ctx, purchase.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.Payments, 2)
	})

	t.Run("error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithPurchaseLock(ctx, purchase.ID, func(tx domainRepo.LedgerTx) error {
			if err := tx.CreatePayment(&model.Payment{PurchaseID: purchase.ID, Method: "dummy", Amount: decimal.RequireFromString("1.00"), Success: true, TransactionID: "txn-rollback"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		loaded, err := repo.GetPurchase(ctx, purchase.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.Payments, 2)
	})

	t.Run("balances and lookups inside the lock", func(t *testing.T) {
		err := repo.WithPurchaseLock(ctx, purchase.ID, func(tx domainRepo.LedgerTx) error {
			b, err := tx.Balances()
			require.NoError(t, err)
			assert.True(t, b.TotalPayments.Equal(decimal.RequireFromString("25.00")))
			assert.True(t, b.Remaining.Equal(decimal.RequireFromString("100.00")))

			exists, err := tx.PaymentExists("txn-1")
			require.NoError(t, err)
			assert.True(t, exists)

			exists, err = tx.PaymentExists(model.LinkedTransactionID)
			require.NoError(t, err)
			assert.False(t, exists)

			found, err := tx.FindPaymentByTransaction("txn-1")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, purchase.ID, found.PurchaseID)

			found, err = tx.FindPaymentByTransaction("txn-unknown")
			require.NoError(t, err)
			assert.Nil(t, found)

			pending, err := tx.FindPending("dummy")
			require.NoError(t, err)
			assert.Nil(t, pending)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("one pending payment per gateway", func(t *testing.T) {
		err := repo.WithPurchaseLock(ctx, purchase.ID, func(tx domainRepo.LedgerTx) error {
			if err := tx.CreatePending(&model.PendingPayment{PurchaseID: purchase.ID, Method: "dummy"}); err != nil {
				return err
			}
			return tx.CreatePending(&model.PendingPayment{PurchaseID: purchase.ID, Method: "dummy"})
		})
		assert.Error(t, err)

		loaded, err := repo.GetPurchase(ctx, purchase.ID)
		require.NoError(t, err)
		assert.Empty(t, loaded.PendingPayments)
	})

	t.Run("unknown purchase", func(t *testing.T) {
		err := repo.WithPurchaseLock(ctx, 4242, func(tx domainRepo.LedgerTx) error { return nil })
		assert.ErrorIs(t, err, domainErrors.ErrPurchaseNotFound)
		assert.True(t, domainErrors.IsKind(err, domainErrors.KindValidation))
	})
}

func TestLedgerRepository_FindIncompleteAuthorizations(t *testing.T) {
	repo := repository.NewLedgerRepository(testutil.NewDB(t), zap.NewNop())
	ctx := context.Background()

	purchase := newPurchase("125.00")
	require.NoError(t, repo.CreatePurchase(ctx, purchase))

	err := repo.WithPurchaseLock(ctx, purchase.ID, func(tx domainRepo.LedgerTx) error {
		for i, tc := range []struct {
			method   string
			complete bool
		}{{"dummy", false}, {"dummy", true}, {"stripe", false}} {
			capture := &model.Payment{PurchaseID: purchase.ID, Method: tc.method, TransactionID: model.LinkedTransactionID}
			if err := tx.CreatePayment(capture); err != nil {
				return err
			}
			auth := &model.Authorization{
				PurchaseID:    purchase.ID,
				Method:        tc.method,
				Amount:        decimal.NewFromInt(int64(10 * (i + 1))),
				TransactionID: "auth-" + tc.method,
				Complete:      tc.complete,
			}
			auth.LinkPayment(capture)
			if err := tx.CreateAuthorization(auth); err != nil {
				return err
			}
		}

		found, err := tx.FindIncompleteAuthorizationByTransaction("auth-dummy")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.False(t, found.Complete)
		return nil
	})
	require.NoError(t, err)

	auths, err := repo.FindIncompleteAuthorizations(ctx, purchase.ID, "dummy")
	require.NoError(t, err)
	require.Len(t, auths, 1)
	assert.True(t, auths[0].Amount.Equal(decimal.NewFromInt(10)))

	byID, err := repo.GetAuthorization(ctx, auths[0].ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.NotNil(t, byID.CaptureID)
}
