package usecase

import (
	"sort"

	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

// ProcessorRegistry holds one processor per enabled gateway.
type ProcessorRegistry struct {
	processors map[string]*Processor
	keys       []string
}

// NewProcessorRegistry builds a processor for every registration. Any
// invalid or duplicate registration fails the whole registry.
func NewProcessorRegistry(
	regs []gateway.Registration,
	recorder *PaymentRecorder,
	repo domainRepo.LedgerRepository,
	cards CardSource,
	logger *zap.Logger,
) (*ProcessorRegistry, error) {
	r := &ProcessorRegistry{processors: make(map[string]*Processor, len(regs))}

	for _, reg := range regs {
		p, err := NewProcessor(reg, recorder, repo, cards, logger)
		if err != nil {
			return nil, err
		}
		if _, exists := r.processors[p.Key()]; exists {
			return nil, domainErrors.NewConfigurationError(p.Key(), "gateway registered twice")
		}
		r.processors[p.Key()] = p
		r.keys = append(r.keys, p.Key())

		logger.Info("Gateway registered",
			zap.String("gateway", p.Key()),
			zap.Bool("authorize", p.CanAuthorize()),
			zap.Bool("refund", p.CanRefund()),
			zap.Bool("recur_bill", p.CanRecurBill()),
			zap.Bool("headless", p.IsHeadless()),
			zap.Bool("live", reg.Settings.Live))
	}
	sort.Strings(r.keys)

	return r, nil
}

// Get returns the processor for key, or a validation error.
func (r *ProcessorRegistry) Get(key string) (*Processor, error) {
	p, ok := r.processors[key]
	if !ok {
		return nil, domainErrors.NewValidationError(0, key, domainErrors.ErrUnknownGateway)
	}
	return p, nil
}

// Keys lists the registered gateways in order.
func (r *ProcessorRegistry) Keys() []string {
	return append([]string(nil), r.keys...)
}
