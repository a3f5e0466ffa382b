package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/notify"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func TestDispatcher_Delivers(t *testing.T) {
	d := notify.NewDispatcher(8, zap.NewNop())

	var (
		mu       sync.Mutex
		received []int64
	)
	d.Subscribe("collect", func(_ context.Context, e event.PaymentCompleted) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e.PaymentID)
		return nil
	})
	d.Subscribe("failing", func(context.Context, event.PaymentCompleted) error {
		return errors.New("boom")
	})
	d.Subscribe("panicking", func(context.Context, event.PaymentCompleted) error {
		panic("boom")
	})
	d.Start()

	for i := int64(1); i <= 3; i++ {
		d.PublishPaymentCompleted(context.Background(), event.PaymentCompleted{PurchaseID: 1, PaymentID: i})
	}
	d.Close()

	assert.Equal(t, []int64{1, 2, 3}, received)

	// after close, publishing is a no-op
	d.PublishPaymentCompleted(context.Background(), event.PaymentCompleted{PaymentID: 4})
	d.Close()
	assert.Len(t, received, 3)
}

func TestDispatcher_FullQueueDoesNotBlock(t *testing.T) {
	d := notify.NewDispatcher(1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			d.PublishPaymentCompleted(context.Background(), event.PaymentCompleted{PaymentID: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a full queue")
	}
}

func TestRedisPublisher_Handle(t *testing.T) {
	pub := &mockPublisher{}
	e := event.PaymentCompleted{PurchaseID: 3, PaymentID: 9, Kind: event.KindCaptured}

	pub.On("Publish", mock.Anything, "bursar.payment.completed", e).Return(nil).Once()
	pub.On("Publish", mock.Anything, "bursar.payment.completed", e).Return(errors.New("down")).Once()

	p := notify.NewRedisPublisher(pub, "bursar.payment.completed", zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), e))
	assert.Error(t, p.Handle(context.Background(), e))

	pub.AssertExpectations(t)
}
