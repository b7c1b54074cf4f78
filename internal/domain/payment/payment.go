// Package payment models marketplace settlement lines, their classification
// and the grouping of multi-entry orders.
package payment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrPaymentNotFound    = errors.New("payment: payment not found")
	ErrInvalidPayment     = errors.New("payment: invalid payment")
	ErrLinkMismatch       = errors.New("payment: link belongs to another marketplace order")
	ErrResolutionMismatch = errors.New("payment: resolved ERP order differs from the link")
	ErrInvalidRule        = errors.New("payment: invalid classification rule")
)

// Line is one settlement entry as exported by a marketplace
type Line struct {
	ExternalRef     string          `json:"external_ref"`
	OrderID         string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	IsExpense       bool            `json:"is_expense"`
	TransactionType string          `json:"transaction_type"`
	Description     string          `json:"description"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// Payment is a settlement line attributed to a marketplace order
type Payment struct {
	ID              uuid.UUID
	Marketplace     marketplace.Marketplace
	ExternalRef     string
	Ref             marketplace.OrderRef
	Amount          decimal.Decimal
	IsExpense       bool
	TransactionType string
	Description     string
	OccurredAt      time.Time
	// ResolvedERPOrderID is the ERP's stable order id, never a link row id
	ResolvedERPOrderID *int64
	ResolveAttemptedAt *time.Time
	Tags               []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewPayment parses the line's order identifier into a reference
func NewPayment(m marketplace.Marketplace, line Line) (*Payment, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayment, marketplace.ErrUnknownMarketplace)
	}
	ref := marketplace.ParseOrderRef(line.OrderID)
	if ref.BaseID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidPayment)
	}
	externalRef := strings.TrimSpace(line.ExternalRef)
	if externalRef == "" {
		externalRef = ref.String() + "@" + line.OccurredAt.UTC().Format(time.RFC3339) + "#" + line.Amount.String()
	}
	now := time.Now()
	return &Payment{
		ID:              uuid.New(),
		Marketplace:     m,
		ExternalRef:     externalRef,
		Ref:             ref,
		Amount:          line.Amount,
		IsExpense:       line.IsExpense,
		TransactionType: strings.TrimSpace(line.TransactionType),
		Description:     strings.TrimSpace(line.Description),
		OccurredAt:      line.OccurredAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// RawOrderID is the identifier in its wire form, suffix included
func (p *Payment) RawOrderID() string {
	return p.Ref.String()
}

// SignedAmount is negative for expenses regardless of the sign in the feed
func (p *Payment) SignedAmount() decimal.Decimal {
	if p.IsExpense {
		return p.Amount.Abs().Neg()
	}
	return p.Amount
}

// Text is the description and transaction type the classifier reads
func (p *Payment) Text() string {
	return strings.TrimSpace(p.Description + " " + p.TransactionType)
}

// IsResolved reports whether an ERP order has been attached
func (p *Payment) IsResolved() bool {
	return p.ResolvedERPOrderID != nil
}

// Resolve attaches the ERP order the link points at
func (p *Payment) Resolve(link *linking.Link) error {
	if link == nil {
		return linking.ErrLinkNotFound
	}
	if link.Marketplace != p.Marketplace {
		return fmt.Errorf("%w: %s link for %s payment", ErrLinkMismatch, link.Marketplace, p.Marketplace)
	}
	if link.ERPOrderID <= 0 {
		return linking.ErrMissingERPOrderRef
	}
	erpID := link.ERPOrderID
	p.ResolvedERPOrderID = &erpID
	p.UpdatedAt = time.Now()
	return p.CheckResolution(link)
}

// CheckResolution verifies that the stored resolution is the link's ERP order
func (p *Payment) CheckResolution(link *linking.Link) error {
	if p.ResolvedERPOrderID == nil || *p.ResolvedERPOrderID != link.ERPOrderID {
		return ErrResolutionMismatch
	}
	return nil
}

// MergeTags adds tags keeping the set sorted and unique
func (p *Payment) MergeTags(tags ...string) bool {
	seen := make(map[string]struct{}, len(p.Tags)+len(tags))
	for _, t := range p.Tags {
		seen[t] = struct{}{}
	}
	changed := false
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		p.Tags = append(p.Tags, t)
		changed = true
	}
	sort.Strings(p.Tags)
	return changed
}
