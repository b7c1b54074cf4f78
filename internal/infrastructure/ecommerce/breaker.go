package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker placed in front of a lookup
type BreakerConfig struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval clears the failure counts while closed (0 = never)
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing again
	Timeout time.Duration
	// ConsecutiveFailures trips the circuit
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the defaults used when the config leaves them unset
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerLookup guards an OrderLookup with a circuit breaker so a
// marketplace outage fails fast instead of stalling the resolver.
// ErrOrderNotFound is an answer, not a failure, and never trips it.
type BreakerLookup struct {
	next   marketplace.OrderLookup
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerLookup wraps next
func NewBreakerLookup(next marketplace.OrderLookup, cfg BreakerConfig, logger *zap.Logger) *BreakerLookup {
	def := DefaultBreakerConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "marketplace_lookup_" + string(next.Marketplace()),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, marketplace.ErrOrderNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerLookup{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Marketplace returns the wrapped lookup's marketplace
func (b *BreakerLookup) Marketplace() marketplace.Marketplace {
	return b.next.Marketplace()
}

// LookupOrder runs the wrapped lookup through the breaker. An open circuit
// reports ErrLookupUnavailable.
func (b *BreakerLookup) LookupOrder(ctx context.Context, orderID string) (*marketplace.OrderSnapshot, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.LookupOrder(ctx, orderID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit breaker %s for %s", marketplace.ErrLookupUnavailable, b.cb.State(), b.Marketplace())
	}
	if err != nil {
		return nil, err
	}
	return result.(*marketplace.OrderSnapshot), nil
}

// State returns the breaker state, e.g. for health reporting
func (b *BreakerLookup) State() gobreaker.State {
	return b.cb.State()
}

var _ marketplace.OrderLookup = (*BreakerLookup)(nil)
