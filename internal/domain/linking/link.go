// Package linking models the durable association between an ERP order and
// the marketplace order that produced it.
package linking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrLinkNotFound       = errors.New("linking: link not found")
	ErrLinkExists         = errors.New("linking: marketplace order already linked")
	ErrInvalidLink        = errors.New("linking: invalid link")
	ErrActorRequired      = errors.New("linking: actor is required for administrative changes")
	ErrSameERPOrder       = errors.New("linking: link already points at that ERP order")
	ErrInvalidConfidence  = errors.New("linking: confidence must be between 0 and 1")
	ErrMissingERPOrderRef = errors.New("linking: ERP order reference is required")
)

// Provenance records who or what created a link
type Provenance string

const (
	ProvenanceAutoLinker Provenance = "auto-linker"
	ProvenanceBatchSync  Provenance = "batch-sync"
	ProvenanceManual     Provenance = "manual"
)

// FullConfidence is assigned to exact identifier matches
var FullConfidence = decimal.NewFromInt(1)

// Flags are the situational inputs the fee engine needs for a linked order
type Flags struct {
	UnitCount     int  `json:"unit_count"`
	IsKit         bool `json:"is_kit"`
	FreeShipping  bool `json:"free_shipping"`
	CampaignOrder bool `json:"campaign_order"`
}

// ChargeableUnits is the unit count used for fixed per-unit costs.
// A kit is sold as one unit regardless of its contents.
func (f Flags) ChargeableUnits() int {
	if f.IsKit || f.UnitCount < 1 {
		return 1
	}
	return f.UnitCount
}

// Link associates one marketplace order with one ERP order.
// ERPOrderID is the ERP's stable identifier, never a row id of this table.
type Link struct {
	shared.BaseEntity
	Marketplace        marketplace.Marketplace
	MarketplaceOrderID string
	ERPOrderID         int64
	Flags              Flags
	Confidence         decimal.Decimal
	LinkedBy           Provenance
	Notes              string
}

// NewLink validates and builds a link
func NewLink(m marketplace.Marketplace, marketplaceOrderID string, erpOrderID int64, flags Flags, by Provenance) (*Link, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLink, marketplace.ErrUnknownMarketplace)
	}
	id := strings.TrimSpace(marketplaceOrderID)
	if id == "" {
		return nil, fmt.Errorf("%w: marketplace order id is required", ErrInvalidLink)
	}
	if erpOrderID <= 0 {
		return nil, ErrMissingERPOrderRef
	}
	if by == "" {
		by = ProvenanceAutoLinker
	}
	return &Link{
		BaseEntity:         shared.NewBaseEntity(),
		Marketplace:        m,
		MarketplaceOrderID: id,
		ERPOrderID:         erpOrderID,
		Flags:              flags,
		Confidence:         FullConfidence,
		LinkedBy:           by,
	}, nil
}

// WithConfidence overrides the default full confidence
func (l *Link) WithConfidence(c decimal.Decimal) error {
	if c.IsNegative() || c.GreaterThan(FullConfidence) {
		return ErrInvalidConfidence
	}
	l.Confidence = c
	return nil
}

// Ref returns the "marketplace:order" reference stored on the ERP order
func (l *Link) Ref() string {
	return string(l.Marketplace) + ":" + l.MarketplaceOrderID
}

// Reassign points the link at a different ERP order and returns the audit entry
func (l *Link) Reassign(newERPOrderID int64, actor, reason string) (*Audit, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, ErrActorRequired
	}
	if newERPOrderID <= 0 {
		return nil, ErrMissingERPOrderRef
	}
	if newERPOrderID == l.ERPOrderID {
		return nil, ErrSameERPOrder
	}
	audit := newAudit(l, AuditActionReassign, actor, reason)
	audit.NewERPOrderID = &newERPOrderID

	l.ERPOrderID = newERPOrderID
	l.UpdatedAt = time.Now()
	return audit, nil
}

// DeletionAudit returns the audit entry recorded when the link is removed
func (l *Link) DeletionAudit(actor, reason string) (*Audit, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, ErrActorRequired
	}
	return newAudit(l, AuditActionDelete, actor, reason), nil
}
