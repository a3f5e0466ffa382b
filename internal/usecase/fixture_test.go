package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/bursar/internal/adapter/repository"
	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/internal/domain/ledger"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"github.com/wekeepgrowing/bursar/internal/testutil"
	"github.com/wekeepgrowing/bursar/internal/usecase"
)

// eventLog collects published events.
type eventLog struct {
	mu     sync.Mutex
	events []event.PaymentCompleted
}

func (l *eventLog) PublishPaymentCompleted(_ context.Context, e event.PaymentCompleted) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) All() []event.PaymentCompleted {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.PaymentCompleted(nil), l.events...)
}

type ledgerFixture struct {
	db       *gorm.DB
	repo     domainRepo.LedgerRepository
	events   *eventLog
	recorder *usecase.PaymentRecorder
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	db := testutil.NewDB(t)
	repo := repository.NewLedgerRepository(db, zap.NewNop())
	events := &eventLog{}

	return &ledgerFixture{
		db:       db,
		repo:     repo,
		events:   events,
		recorder: usecase.NewPaymentRecorder(repo, events, zap.NewNop()),
	}
}

func (f *ledgerFixture) purchase(t *testing.T, total string) *model.Purchase {
	t.Helper()

	p := &model.Purchase{
		OrderNo:  uuid.NewString(),
		Email:    "buyer@example.com",
		Currency: "USD",
		SubTotal: dec(total),
		Total:    dec(total),
	}
	require.NoError(t, f.repo.CreatePurchase(context.Background(), p))
	return p
}

func (f *ledgerFixture) reload(t *testing.T, id int64) *model.Purchase {
	t.Helper()

	p, err := f.repo.GetPurchase(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f *ledgerFixture) balances(t *testing.T, id int64) ledger.Balances {
	t.Helper()
	return ledger.ForPurchase(f.reload(t, id))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

func successfulPayments(p *model.Purchase) []model.Payment {
	var out []model.Payment
	for _, pay := range p.Payments {
		if pay.Success {
			out = append(out, pay)
		}
	}
	return out
}
