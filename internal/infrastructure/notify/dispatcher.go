// Package notify delivers payment-completed events to subscribers off the
// request path.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/event"
)

const handlerTimeout = 10 * time.Second

// Handler consumes one event. Errors are logged and dropped.
type Handler func(ctx context.Context, e event.PaymentCompleted) error

// Dispatcher implements event.Publisher with a bounded queue. When the
// queue is full the event is dropped with a warning; publishing never
// blocks.
type Dispatcher struct {
	queue    chan event.PaymentCompleted
	handlers map[string]Handler
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with room for bufferSize events.
func NewDispatcher(bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Dispatcher{
		queue:    make(chan event.PaymentCompleted, bufferSize),
		handlers: make(map[string]Handler),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Subscribe registers a named handler. Call it before Start.
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.handlers[name] = h
}

// Start delivers queued events until Close.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for e := range d.queue {
			d.deliver(e)
		}
	}()
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) PublishPaymentCompleted(_ context.Context, e event.PaymentCompleted) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dispatcher closed, event dropped",
			zap.Int64("purchase_id", e.PurchaseID),
			zap.Int64("payment_id", e.PaymentID))
		return
	}

	select {
	case d.queue <- e:
	default:
		d.logger.Warn("Event queue full, event dropped",
			zap.Int64("purchase_id", e.PurchaseID),
			zap.Int64("payment_id", e.PaymentID),
			zap.Int("capacity", cap(d.queue)))
	}
}

func (d *Dispatcher) deliver(e event.PaymentCompleted) {
	for name, h := range d.handlers {
		if err := d.run(name, h, e); err != nil {
			d.logger.Error("Event handler failed",
				zap.String("handler", name),
				zap.Int64("purchase_id", e.PurchaseID),
				zap.Int64("payment_id", e.PaymentID),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) run(name string, h Handler, e event.PaymentCompleted) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", name, r)
		}
	}()

	return h(ctx, e)
}
