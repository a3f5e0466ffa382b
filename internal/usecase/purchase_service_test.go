package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/money"
	"github.com/wekeepgrowing/bursar/internal/usecase"
)

func TestPurchaseService_Create(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	svc := usecase.NewPurchaseService(f.repo, "usd", zap.NewNop())

	view, err := svc.Create(ctx, usecase.CreatePurchaseInput{
		Email:        "buyer@example.com",
		Tax:          dec("5"),
		ShippingCost: dec("10"),
		LineItems: []usecase.LineItemInput{
			{Name: "Widget", Quantity: dec("2"), UnitPrice: dec("50")},
			{Name: "Gadget", Quantity: dec("1"), UnitPrice: dec("20"), Discount: dec("10")},
		},
	})
	require.NoError(t, err)

	p := view.Purchase
	assert.NotEmpty(t, p.OrderNo)
	assert.Equal(t, "USD", p.Currency)
	assertAmount(t, "110", p.SubTotal)
	assertAmount(t, "125", p.Total)
	assertAmount(t, "125", view.Balances.Remaining)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Purchase.LineItems, 2)
	assertAmount(t, "125", got.Balances.Total)

	_, err = f.recorder.CaptureDirect(ctx, p.ID, "cod", usecase.Record{Amount: money.Some(dec("25"))})
	require.NoError(t, err)

	got, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assertAmount(t, "100", got.Balances.Remaining)
}

func TestPurchaseService_Validation(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	svc := usecase.NewPurchaseService(f.repo, "USD", zap.NewNop())

	tests := []struct {
		name string
		in   usecase.CreatePurchaseInput
	}{
		{"bad currency", usecase.CreatePurchaseInput{Currency: "dollars", SubTotal: dec("10")}},
		{"unnamed item", usecase.CreatePurchaseInput{LineItems: []usecase.LineItemInput{{Quantity: dec("1"), UnitPrice: dec("1")}}}},
		{"zero quantity", usecase.CreatePurchaseInput{LineItems: []usecase.LineItemInput{{Name: "x", UnitPrice: dec("1")}}}},
		{"negative total", usecase.CreatePurchaseInput{SubTotal: dec("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.True(t, domainErrors.IsKind(err, domainErrors.KindValidation))
		})
	}

	_, err := svc.Get(ctx, 999)
	assert.ErrorIs(t, err, domainErrors.ErrPurchaseNotFound)
}

func TestPurchaseService_EnsureCyclePurchase(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	svc := usecase.NewPurchaseService(f.repo, "USD", zap.NewNop())
	template := f.purchase(t, "100")

	first, err := svc.EnsureCyclePurchase(ctx, template, 1, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, usecase.CycleOrderNo(template, 1), first.OrderNo)
	assertAmount(t, "30", first.Total)
	assert.Equal(t, template.Email, first.Email)

	again, err := svc.EnsureCyclePurchase(ctx, template, 1, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}
