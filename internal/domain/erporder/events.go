package erporder

import (
	"time"

	"github.com/erp/reconciler/internal/domain/shared"
)

// EventTypeOrderSynced is published for every stored order that is not yet linked
const EventTypeOrderSynced = "erporder.synced"

// OrderSynced reports that a sync run inserted or changed an order
type OrderSynced struct {
	shared.BaseDomainEvent
	ERPOrderID int64     `json:"erp_order_id"`
	Created    bool      `json:"created"`
	LinkState  LinkState `json:"link_state"`
	RunID      string    `json:"run_id"`
}

// NewOrderSynced builds the event for a stored order
func NewOrderSynced(order *Order, created bool, runID string, at time.Time) *OrderSynced {
	return &OrderSynced{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderSynced, at),
		ERPOrderID:      order.ERPID,
		Created:         created,
		LinkState:       order.LinkStatus.State,
		RunID:           runID,
	}
}
