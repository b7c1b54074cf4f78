package linking

import (
	"context"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/google/uuid"
)

// Repository persists links and their audit trail
type Repository interface {
	// FindByMarketplaceOrder returns ErrLinkNotFound when no link exists
	FindByMarketplaceOrder(ctx context.Context, m marketplace.Marketplace, orderID string) (*Link, error)
	FindByERPOrder(ctx context.Context, erpOrderID int64) ([]Link, error)
	// CreateIfAbsent inserts the link unless (marketplace, order id) is taken.
	// It reports whether this call created the row.
	CreateIfAbsent(ctx context.Context, link *Link) (bool, error)
	// Reassign updates the ERP reference and stores the audit atomically
	Reassign(ctx context.Context, link *Link, audit *Audit) error
	// Delete removes the link and stores the audit atomically
	Delete(ctx context.Context, link *Link, audit *Audit) error
	ListAudits(ctx context.Context, linkID uuid.UUID) ([]Audit, error)
}
