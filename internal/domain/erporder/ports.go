package erporder

import (
	"context"
	"errors"
	"time"

	"github.com/erp/reconciler/internal/domain/shared"
)

// Source errors, used by the sync engine to decide between retry and abort
var (
	ErrRateLimited       = errors.New("erporder: ERP API rate limit exceeded")
	ErrSourceUnavailable = errors.New("erporder: ERP API unavailable")
	ErrUnauthorized      = errors.New("erporder: ERP API rejected credentials")
	ErrInvalidResponse   = errors.New("erporder: invalid response from ERP API")
)

// SortOrder is the creation-date ordering requested from the ERP
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListRequest asks the ERP for one page of orders created in a period
type ListRequest struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
	Sort   SortOrder
}

// ListPage is one page of ERP orders. Total is nil when the ERP omits it.
type ListPage struct {
	Items []RemoteOrder
	Total *int
}

// HasMore reports whether another page should be requested
func (p *ListPage) HasMore(req ListRequest) bool {
	if len(p.Items) == 0 {
		return false
	}
	if p.Total != nil {
		return req.Offset+len(p.Items) < *p.Total
	}
	return len(p.Items) >= req.Limit
}

// Source is the ERP API client consumed by the sync engine
type Source interface {
	ListOrdersByPeriod(ctx context.Context, req ListRequest) (*ListPage, error)
}

// UnlinkedFilter selects orders the linking resolver should look at
type UnlinkedFilter struct {
	CreatedFrom    time.Time
	States         []LinkState
	Limit          int
	AttemptedUntil *time.Time
}

// Repository persists ERP orders
type Repository interface {
	// FindByERPID returns ErrOrderNotFound when the order was never synced
	FindByERPID(ctx context.Context, erpID int64) (*Order, error)
	FindByERPIDs(ctx context.Context, erpIDs []int64) (map[int64]*Order, error)
	// Upsert writes native fields, enrichment and hash keyed by the ERP id
	Upsert(ctx context.Context, order *Order) error
	UpdateEnrichment(ctx context.Context, erpID int64, enrichment Enrichment) error
	UpdateLinkStatus(ctx context.Context, erpID int64, status LinkStatus) error
	FindUnlinked(ctx context.Context, filter UnlinkedFilter) ([]Order, error)
	FindCreatedBetween(ctx context.Context, from, to time.Time, filter shared.Filter) ([]Order, int64, error)
}
