package payment

import (
	"context"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/google/uuid"
)

// ListFilter narrows payment queries
type ListFilter struct {
	From           *time.Time
	To             *time.Time
	BaseOrderID    string
	Unresolved     bool
	// AttemptedUntil skips lines whose last resolution attempt is more recent
	AttemptedUntil *time.Time
	Limit          int
}

// Repository persists payments. A stored payment only changes through
// UpdateResolution.
type Repository interface {
	// CreateIfAbsent inserts the payment unless (marketplace, external ref)
	// exists and reports whether it was created
	CreateIfAbsent(ctx context.Context, p *Payment) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	List(ctx context.Context, m marketplace.Marketplace, filter ListFilter) ([]*Payment, error)
	UpdateResolution(ctx context.Context, p *Payment) error
	// MarkResolveAttempted records a resolution pass that found no link
	MarkResolveAttempted(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// SettlementFeed reads settlement exports published by a marketplace
type SettlementFeed interface {
	Fetch(ctx context.Context, m marketplace.Marketplace, since time.Time) ([]Line, error)
}
