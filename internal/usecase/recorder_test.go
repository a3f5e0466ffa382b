package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"github.com/wekeepgrowing/bursar/internal/usecase"
)

func TestPaymentRecorder_PendingAuthorizeCapture(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	purchase := f.purchase(t, "125.00")

	pending, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.Some(dec("125.00")))
	require.NoError(t, err)
	assertAmount(t, "125.00", pending.Amount)
	require.NotNil(t, pending.CaptureID)

	auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "auth-1", ReasonCode: "approved"})
	require.NoError(t, err)
	assertAmount(t, "125.00", auth.Amount)
	assert.Equal(t, *pending.CaptureID, *auth.CaptureID)
	assert.False(t, auth.Complete)

	b := f.balances(t, purchase.ID)
	assertAmount(t, "125.00", b.AuthorizedRemaining)
	assertAmount(t, "0", b.Remaining)
	assert.Empty(t, f.reload(t, purchase.ID).PendingPayments)

	payment, err := f.recorder.CaptureAuthorized(ctx, purchase.ID, auth.ID, usecase.Record{})
	require.NoError(t, err)
	assertAmount(t, "125.00", payment.Amount)
	assert.True(t, payment.Success)
	assert.Equal(t, *auth.CaptureID, payment.ID)
	assert.Equal(t, "auth-1", payment.TransactionID)

	b = f.balances(t, purchase.ID)
	assertAmount(t, "0", b.AuthorizedRemaining)
	assertAmount(t, "125.00", b.TotalPayments)
	assertAmount(t, "0", b.Remaining)

	reloaded := f.reload(t, purchase.ID)
	require.Len(t, reloaded.Authorizations, 1)
	assert.True(t, reloaded.Authorizations[0].Complete)
	require.Len(t, reloaded.Payments, 1)

	events := f.events.All()
	require.Len(t, events, 2)
	assert.Equal(t, event.KindAuthorized, events[0].Kind)
	assert.Equal(t, event.KindCaptured, events[1].Kind)
	assert.Equal(t, payment.ID, events[1].PaymentID)
}

func TestPaymentRecorder_CreatePending(t *testing.T) {
	ctx := context.Background()

	t.Run("last intent wins", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "50.00")

		first, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.Some(dec("20.00")))
		require.NoError(t, err)
		require.NotNil(t, first.CaptureID)
		second, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.Some(dec("30.00")))
		require.NoError(t, err)

		reloaded := f.reload(t, purchase.ID)
		require.Len(t, reloaded.PendingPayments, 1)
		assert.Equal(t, second.ID, reloaded.PendingPayments[0].ID)
		assertAmount(t, "30.00", reloaded.PendingPayments[0].Amount)

		require.Len(t, reloaded.Payments, 1)
		assert.Equal(t, *second.CaptureID, reloaded.Payments[0].ID)
		assert.Equal(t, model.LinkedTransactionID, reloaded.Payments[0].TransactionID)
	})

	t.Run("pending over a recorded capture is replaced", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "50.00")

		var captureID int64
		err := f.repo.WithPurchaseLock(ctx, purchase.ID, func(tx domainRepo.LedgerTx) error {
			capture := &model.Payment{PurchaseID: purchase.ID, Method: "dummy", Amount: dec("20.00"), Success: true, TransactionID: "txn-9"}
			if err := tx.CreatePayment(capture); err != nil {
				return err
			}
			captureID = capture.ID
			return tx.CreatePending(&model.PendingPayment{PurchaseID: purchase.ID, Method: "dummy", Amount: dec("20.00"), CaptureID: &capture.ID})
		})
		require.NoError(t, err)

		pending, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.None)
		require.NoError(t, err)
		assertAmount(t, "30.00", pending.Amount)

		reloaded := f.reload(t, purchase.ID)
		require.Len(t, reloaded.PendingPayments, 1)
		assert.Equal(t, pending.ID, reloaded.PendingPayments[0].ID)
		require.Len(t, successfulPayments(reloaded), 1)
		assert.Equal(t, captureID, successfulPayments(reloaded)[0].ID)
	})

	t.Run("defaults to remaining", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "100.00")

		_, err := f.recorder.CaptureDirect(ctx, purchase.ID, "cod", usecase.Record{Amount: money.Some(dec("30.00")), TransactionID: "cod"})
		require.NoError(t, err)

		pending, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.None)
		require.NoError(t, err)
		assertAmount(t, "70.00", pending.Amount)
	})

	t.Run("pending payments do not change balances", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "40.00")

		_, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.None)
		require.NoError(t, err)

		b := f.balances(t, purchase.ID)
		assertAmount(t, "0", b.TotalPayments)
		assertAmount(t, "40.00", b.Remaining)
	})

	t.Run("unknown purchase", func(t *testing.T) {
		f := newLedgerFixture(t)

		_, err := f.recorder.CreatePending(ctx, 4242, "dummy", money.None)
		require.Error(t, err)
		assert.True(t, domainErrors.IsKind(err, domainErrors.KindValidation))
		assert.ErrorIs(t, err, domainErrors.ErrPurchaseNotFound)
	})
}

func TestPaymentRecorder_Authorize(t *testing.T) {
	ctx := context.Background()

	t.Run("zero pending amount falls back to total", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "60.00")

		_, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.Some(money.Zero))
		require.NoError(t, err)

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)
		assertAmount(t, "60.00", auth.Amount)
	})

	t.Run("explicit amount wins over pending", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "60.00")

		_, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.Some(dec("60.00")))
		require.NoError(t, err)

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{Amount: money.Some(dec("15.00")), TransactionID: "a"})
		require.NoError(t, err)
		assertAmount(t, "15.00", auth.Amount)
	})

	t.Run("without pending creates its own capture", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "60.00")

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)
		require.NotNil(t, auth.CaptureID)

		reloaded := f.reload(t, purchase.ID)
		require.Len(t, reloaded.Payments, 1)
		assert.True(t, reloaded.Payments[0].IsPlaceholder())
	})

	t.Run("consuming a pending drops abandoned ones", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "60.00")

		_, err := f.recorder.CreatePending(ctx, purchase.ID, "banktransfer", money.None)
		require.NoError(t, err)
		pending, err := f.recorder.CreatePending(ctx, purchase.ID, "dummy", money.None)
		require.NoError(t, err)

		_, err = f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)

		reloaded := f.reload(t, purchase.ID)
		assert.Empty(t, reloaded.PendingPayments)
		require.Len(t, reloaded.Payments, 1)
		assert.Equal(t, *pending.CaptureID, reloaded.Payments[0].ID)
	})
}

func TestPaymentRecorder_CaptureAuthorized(t *testing.T) {
	ctx := context.Background()

	t.Run("completes exactly once", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "80.00")

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)
		_, err = f.recorder.CaptureAuthorized(ctx, purchase.ID, auth.ID, usecase.Record{})
		require.NoError(t, err)

		_, err = f.recorder.CaptureAuthorized(ctx, purchase.ID, auth.ID, usecase.Record{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErrors.ErrAuthorizationComplete)

		reloaded := f.reload(t, purchase.ID)
		assert.True(t, reloaded.Authorizations[0].Complete)
		require.Len(t, successfulPayments(reloaded), 1)
		assertAmount(t, "80.00", f.balances(t, purchase.ID).TotalPayments)
	})

	t.Run("clamps to what is still uncollected", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "100.00")

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)
		_, err = f.recorder.CaptureDirect(ctx, purchase.ID, "cod", usecase.Record{Amount: money.Some(dec("30.00")), TransactionID: "cod"})
		require.NoError(t, err)

		payment, err := f.recorder.CaptureAuthorized(ctx, purchase.ID, auth.ID, usecase.Record{Amount: money.Some(dec("100.00"))})
		require.NoError(t, err)
		assertAmount(t, "70.00", payment.Amount)

		b := f.balances(t, purchase.ID)
		assertAmount(t, "100.00", b.TotalPayments)
		assertAmount(t, "0", b.Remaining)
	})

	t.Run("rejects another purchase's authorization", func(t *testing.T) {
		f := newLedgerFixture(t)
		owner := f.purchase(t, "10.00")
		other := f.purchase(t, "20.00")

		auth, err := f.recorder.Authorize(ctx, owner.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)

		_, err = f.recorder.CaptureAuthorized(ctx, other.ID, auth.ID, usecase.Record{})
		require.Error(t, err)
		assert.True(t, domainErrors.IsKind(err, domainErrors.KindValidation))
		assert.ErrorIs(t, err, domainErrors.ErrWrongPurchase)

		assert.Empty(t, successfulPayments(f.reload(t, owner.ID)))
		assert.Empty(t, f.reload(t, other.ID).Payments)
	})

	t.Run("missing capture payment is a consistency error", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "10.00")

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{TransactionID: "a"})
		require.NoError(t, err)
		require.NoError(t, f.db.Delete(&model.Payment{}, *auth.CaptureID).Error)

		_, err = f.recorder.CaptureAuthorized(ctx, purchase.ID, auth.ID, usecase.Record{})
		require.Error(t, err)
		assert.True(t, domainErrors.IsKind(err, domainErrors.KindConsistency))
		assert.ErrorIs(t, err, domainErrors.ErrMissingCapture)

		assert.False(t, f.reload(t, purchase.ID).Authorizations[0].Complete)
	})
}

func TestPaymentRecorder_Release(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	purchase := f.purchase(t, "10.00")

	auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{Amount: money.Some(money.VerificationAmount), TransactionID: "a"})
	require.NoError(t, err)
	assertAmount(t, "0.01", f.balances(t, purchase.ID).AuthorizedRemaining)

	released, err := f.recorder.Release(ctx, purchase.ID, auth.ID, usecase.Record{ReasonCode: "voided"})
	require.NoError(t, err)
	assert.True(t, released.Complete)

	b := f.balances(t, purchase.ID)
	assertAmount(t, "0", b.AuthorizedRemaining)
	assertAmount(t, "0", b.TotalPayments)
	assertAmount(t, "10.00", b.Remaining)

	_, err = f.recorder.Release(ctx, purchase.ID, auth.ID, usecase.Record{})
	assert.ErrorIs(t, err, domainErrors.ErrAuthorizationComplete)
}

func TestPaymentRecorder_CaptureDirect(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	purchase := f.purchase(t, "10.00")

	payment, err := f.recorder.CaptureDirect(ctx, purchase.ID, "autosuccess", usecase.Record{TransactionID: "AUTO"})
	require.NoError(t, err)
	assertAmount(t, "10.00", payment.Amount)
	assert.True(t, payment.Success)

	reloaded := f.reload(t, purchase.ID)
	assert.Len(t, reloaded.Payments, 1)
	assert.Empty(t, reloaded.Authorizations)
	assertAmount(t, "0", f.balances(t, purchase.ID).Remaining)

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, event.KindCaptured, events[0].Kind)
	assert.Nil(t, events[0].AuthorizationID)
}

func TestPaymentRecorder_CaptureDirect_TransactionID(t *testing.T) {
	ctx := context.Background()

	t.Run("unique id already notified returns that payment", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "10.00")

		notified, dup, err := f.recorder.CaptureNotified(ctx, purchase.ID, "stripe", usecase.Record{TransactionID: "pi_1"})
		require.NoError(t, err)
		require.False(t, dup)

		payment, err := f.recorder.CaptureDirect(ctx, purchase.ID, "stripe", usecase.Record{
			Amount:        money.Some(dec("10.00")),
			TransactionID: "pi_1",
			Unique:        true,
		})
		require.NoError(t, err)
		assert.Equal(t, notified.ID, payment.ID)

		assert.Len(t, f.reload(t, purchase.ID).Payments, 1)
		assertAmount(t, "0", f.balances(t, purchase.ID).Remaining)
		assert.Len(t, f.events.All(), 1)
	})

	t.Run("shared offline id records every charge", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "20.00")

		for i := 0; i < 2; i++ {
			_, err := f.recorder.CaptureDirect(ctx, purchase.ID, "cod", usecase.Record{Amount: money.Some(dec("10.00")), TransactionID: "cod"})
			require.NoError(t, err)
		}

		assert.Len(t, f.reload(t, purchase.ID).Payments, 2)
		assertAmount(t, "0", f.balances(t, purchase.ID).Remaining)
		assert.Len(t, f.events.All(), 2)
	})
}

func TestPaymentRecorder_CaptureNotified(t *testing.T) {
	ctx := context.Background()

	t.Run("redelivery is ignored", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "42.00")
		rec := usecase.Record{Amount: money.Some(dec("42.00")), TransactionID: "pi_123"}

		payment, duplicate, err := f.recorder.CaptureNotified(ctx, purchase.ID, "stripe", rec)
		require.NoError(t, err)
		assert.False(t, duplicate)
		require.NotNil(t, payment)

		payment, duplicate, err = f.recorder.CaptureNotified(ctx, purchase.ID, "stripe", rec)
		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Nil(t, payment)

		assert.Len(t, f.reload(t, purchase.ID).Payments, 1)
		assert.Len(t, f.events.All(), 1)
	})

	t.Run("concurrent deliveries record one payment", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "42.00")
		rec := usecase.Record{Amount: money.Some(dec("42.00")), TransactionID: "pi_456"}

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			recorded   int
			duplicates int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, duplicate, err := f.recorder.CaptureNotified(ctx, purchase.ID, "stripe", rec)
				assert.NoError(t, err)

				mu.Lock()
				defer mu.Unlock()
				if duplicate {
					duplicates++
				} else {
					recorded++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, recorded)
		assert.Equal(t, 7, duplicates)
		assert.Len(t, f.reload(t, purchase.ID).Payments, 1)
		assert.Len(t, f.events.All(), 1)
	})

	t.Run("captures the matching authorization", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "42.00")

		auth, err := f.recorder.Authorize(ctx, purchase.ID, "stripe", usecase.Record{TransactionID: "pi_789"})
		require.NoError(t, err)

		payment, duplicate, err := f.recorder.CaptureNotified(ctx, purchase.ID, "stripe", usecase.Record{TransactionID: "pi_789"})
		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Equal(t, *auth.CaptureID, payment.ID)
		assertAmount(t, "42.00", payment.Amount)

		reloaded := f.reload(t, purchase.ID)
		assert.True(t, reloaded.Authorizations[0].Complete)
		assert.Len(t, reloaded.Payments, 1)
	})

	t.Run("consumes the pending payment", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "42.00")

		pending, err := f.recorder.CreatePending(ctx, purchase.ID, "banktransfer", money.Some(dec("40.00")))
		require.NoError(t, err)

		payment, _, err := f.recorder.CaptureNotified(ctx, purchase.ID, "banktransfer", usecase.Record{TransactionID: "bt-1"})
		require.NoError(t, err)
		assert.Equal(t, *pending.CaptureID, payment.ID)
		assertAmount(t, "40.00", payment.Amount)
		assert.Empty(t, f.reload(t, purchase.ID).PendingPayments)
	})

	t.Run("requires a transaction id", func(t *testing.T) {
		f := newLedgerFixture(t)
		purchase := f.purchase(t, "42.00")

		_, _, err := f.recorder.CaptureNotified(ctx, purchase.ID, "stripe", usecase.Record{})
		assert.ErrorIs(t, err, domainErrors.ErrMissingTransactionID)
		assert.Empty(t, f.reload(t, purchase.ID).Payments)
	})
}

func TestPaymentRecorder_RecordFailure(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	purchase := f.purchase(t, "75.00")

	auth, err := f.recorder.Authorize(ctx, purchase.ID, "dummy", usecase.Record{Amount: money.Some(dec("25.00")), TransactionID: "a"})
	require.NoError(t, err)
	_, err = f.recorder.CaptureDirect(ctx, purchase.ID, "cod", usecase.Record{Amount: money.Some(dec("10.00")), TransactionID: "cod"})
	require.NoError(t, err)
	before := f.balances(t, purchase.ID)

	failure, err := f.recorder.RecordFailure(ctx, purchase.ID, "dummy", usecase.Record{
		TransactionID:   "x-1",
		ReasonCode:      "2",
		Details:         "card declined by issuer",
		AuthorizationID: &auth.ID,
	})
	require.NoError(t, err)
	assertAmount(t, "75.00", failure.Amount)
	assert.Equal(t, auth.ID, *failure.AuthorizationID)

	after := f.balances(t, purchase.ID)
	assert.True(t, before.TotalPayments.Equal(after.TotalPayments))
	assert.True(t, before.AuthorizedRemaining.Equal(after.AuthorizedRemaining))
	assert.True(t, before.Remaining.Equal(after.Remaining))

	reloaded := f.reload(t, purchase.ID)
	assert.Len(t, reloaded.Failures, 1)
	assert.False(t, reloaded.Authorizations[0].Complete)
	assert.Len(t, f.events.All(), 2)
}
