package linking

import (
	"context"
	"errors"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"go.uber.org/zap"
)

// AutoLinker resolves orders as soon as a sync run stores them, so new
// orders do not wait for the next batch. Orders it cannot link stay pending
// and are retried by ResolveBatch.
type AutoLinker struct {
	service *Service
	logger  *zap.Logger
}

// NewAutoLinker creates the OrderSynced handler
func NewAutoLinker(service *Service, logger *zap.Logger) *AutoLinker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoLinker{service: service, logger: logger}
}

// EventTypes implements shared.EventHandler
func (a *AutoLinker) EventTypes() []string {
	return []string{erporder.EventTypeOrderSynced}
}

// Handle implements shared.EventHandler
func (a *AutoLinker) Handle(ctx context.Context, event shared.DomainEvent) error {
	synced, ok := event.(*erporder.OrderSynced)
	if !ok || synced.LinkState == erporder.LinkStateLinked {
		return nil
	}

	outcome, err := a.service.Resolve(ctx, synced.ERPOrderID)
	if errors.Is(err, erporder.ErrOrderNotFound) {
		// removed between the sync and the event
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Debug("Auto-link attempted",
		zap.Int64("erp_order_id", synced.ERPOrderID),
		zap.String("run_id", synced.RunID),
		zap.String("state", string(outcome.State)),
		zap.String("reason", string(outcome.Reason)))
	return nil
}

var _ shared.EventHandler = (*AutoLinker)(nil)
