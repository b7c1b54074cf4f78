package linking

import (
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/google/uuid"
)

// AuditAction names an administrative change to a link
type AuditAction string

const (
	AuditActionReassign AuditAction = "reassign"
	AuditActionDelete   AuditAction = "delete"
)

// Audit is an append-only record of an administrative link change
type Audit struct {
	ID                 uuid.UUID
	LinkID             uuid.UUID
	Action             AuditAction
	Marketplace        marketplace.Marketplace
	MarketplaceOrderID string
	OldERPOrderID      int64
	NewERPOrderID      *int64
	Actor              string
	Reason             string
	CreatedAt          time.Time
}

func newAudit(l *Link, action AuditAction, actor, reason string) *Audit {
	return &Audit{
		ID:                 uuid.New(),
		LinkID:             l.ID,
		Action:             action,
		Marketplace:        l.Marketplace,
		MarketplaceOrderID: l.MarketplaceOrderID,
		OldERPOrderID:      l.ERPOrderID,
		Actor:              actor,
		Reason:             reason,
		CreatedAt:          time.Now(),
	}
}
