package ecommerce

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	calls atomic.Int32
	err   error
}

func (s *stubLookup) Marketplace() marketplace.Marketplace { return marketplace.Magalu }

func (s *stubLookup) LookupOrder(ctx context.Context, orderID string) (*marketplace.OrderSnapshot, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &marketplace.OrderSnapshot{Marketplace: marketplace.Magalu, OrderID: orderID}, nil
}

func TestBreakerLookup(t *testing.T) {
	cfg := BreakerConfig{MaxRequests: 1, Timeout: time.Hour, ConsecutiveFailures: 3}
	ctx := context.Background()

	t.Run("passes results through", func(t *testing.T) {
		stub := &stubLookup{}
		b := NewBreakerLookup(stub, cfg, nil)
		snap, err := b.LookupOrder(ctx, "123")
		require.NoError(t, err)
		assert.Equal(t, "123", snap.OrderID)
		assert.Equal(t, marketplace.Magalu, b.Marketplace())
	})

	t.Run("not found never trips", func(t *testing.T) {
		stub := &stubLookup{err: marketplace.ErrOrderNotFound}
		b := NewBreakerLookup(stub, cfg, nil)
		for i := 0; i < 10; i++ {
			_, err := b.LookupOrder(ctx, "x")
			assert.ErrorIs(t, err, marketplace.ErrOrderNotFound)
		}
		assert.Equal(t, gobreaker.StateClosed, b.State())
		assert.Equal(t, int32(10), stub.calls.Load())
	})

	t.Run("failures open the circuit", func(t *testing.T) {
		stub := &stubLookup{err: errors.Join(marketplace.ErrLookupUnavailable, errors.New("HTTP 503"))}
		b := NewBreakerLookup(stub, cfg, nil)
		for i := 0; i < 3; i++ {
			_, err := b.LookupOrder(ctx, "x")
			assert.ErrorIs(t, err, marketplace.ErrLookupUnavailable)
		}
		assert.Equal(t, gobreaker.StateOpen, b.State())

		_, err := b.LookupOrder(ctx, "x")
		assert.ErrorIs(t, err, marketplace.ErrLookupUnavailable)
		assert.Contains(t, err.Error(), "circuit breaker")
		assert.Equal(t, int32(3), stub.calls.Load(), "open circuit must not call through")
	})
}

func TestAPIClient_CanceledContext(t *testing.T) {
	c := newAPIClient(marketplace.Shopee, ClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, RequestsPerSecond: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/x", nil)
	require.NoError(t, err)
	_, err = c.do(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}
