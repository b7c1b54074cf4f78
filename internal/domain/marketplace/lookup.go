package marketplace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSnapshot is what a marketplace reports about one of its orders
type OrderSnapshot struct {
	Marketplace Marketplace
	// OrderID is the native id the marketplace stores the order under. For
	// Mercado Livre a pack id lookup resolves to the underlying order id.
	OrderID      string
	Status       string
	TotalAmount  decimal.Decimal
	UnitCount    int
	IsKit        bool
	FreeShipping bool
	Campaign     bool
	CreatedAt    time.Time
}

// OrderLookup checks a marketplace's own order store.
// Implementations return ErrOrderNotFound when the order is not (yet) known
// and ErrLookupUnavailable for transport failures.
type OrderLookup interface {
	Marketplace() Marketplace
	LookupOrder(ctx context.Context, orderID string) (*OrderSnapshot, error)
}

// LookupRegistry resolves the lookup client for a marketplace
type LookupRegistry interface {
	Lookup(m Marketplace) (OrderLookup, error)
}

// StaticRegistry is a map-backed LookupRegistry
type StaticRegistry map[Marketplace]OrderLookup

// NewStaticRegistry builds a registry keyed by each lookup's marketplace
func NewStaticRegistry(lookups ...OrderLookup) StaticRegistry {
	r := make(StaticRegistry, len(lookups))
	for _, l := range lookups {
		r[l.Marketplace()] = l
	}
	return r
}

// Lookup returns the client registered for the marketplace
func (r StaticRegistry) Lookup(m Marketplace) (OrderLookup, error) {
	l, ok := r[m]
	if !ok {
		return nil, ErrUnknownMarketplace
	}
	return l, nil
}
