package dto

import (
	"time"

	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/shopspring/decimal"
)

// ResolveLinksRequest resolves one ERP order when ERPOrderID is set, and
// otherwise runs a batch over unlinked and pending orders
type ResolveLinksRequest struct {
	ERPOrderID  int64  `json:"erp_order_id" binding:"omitempty,gt=0"`
	CreatedFrom string `json:"created_from" binding:"omitempty,datetime=2006-01-02"`
	Limit       int    `json:"limit" binding:"omitempty,min=1,max=5000"`
}

// CreateLinkRequest links a marketplace order by hand
type CreateLinkRequest struct {
	Marketplace        string `json:"marketplace" binding:"required,marketplace"`
	MarketplaceOrderID string `json:"marketplace_order_id" binding:"required,max=64"`
	ERPOrderID         int64  `json:"erp_order_id" binding:"required,gt=0"`
	UnitCount          int    `json:"unit_count" binding:"omitempty,min=1"`
	IsKit              bool   `json:"is_kit"`
	FreeShipping       bool   `json:"free_shipping"`
	CampaignOrder      bool   `json:"campaign_order"`
	Notes              string `json:"notes" binding:"max=500"`
}

// Flags returns the order flags carried by the request
func (r CreateLinkRequest) Flags() linking.Flags {
	return linking.Flags{
		UnitCount:     r.UnitCount,
		IsKit:         r.IsKit,
		FreeShipping:  r.FreeShipping,
		CampaignOrder: r.CampaignOrder,
	}
}

// ReassignLinkRequest points a link at another ERP order
type ReassignLinkRequest struct {
	ERPOrderID int64  `json:"erp_order_id" binding:"required,gt=0"`
	Reason     string `json:"reason" binding:"required,max=500"`
}

// LinkResponse is a marketplace order link
type LinkResponse struct {
	ID                 string                  `json:"id"`
	Marketplace        marketplace.Marketplace `json:"marketplace"`
	MarketplaceOrderID string                  `json:"marketplace_order_id"`
	ERPOrderID         int64                   `json:"erp_order_id"`
	Flags              linking.Flags           `json:"flags"`
	Confidence         decimal.Decimal         `json:"confidence"`
	LinkedBy           linking.Provenance      `json:"linked_by"`
	Notes              string                  `json:"notes,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// ToLinkResponse converts a link
func ToLinkResponse(l *linking.Link) LinkResponse {
	return LinkResponse{
		ID:                 l.ID.String(),
		Marketplace:        l.Marketplace,
		MarketplaceOrderID: l.MarketplaceOrderID,
		ERPOrderID:         l.ERPOrderID,
		Flags:              l.Flags,
		Confidence:         l.Confidence,
		LinkedBy:           l.LinkedBy,
		Notes:              l.Notes,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

// AuditResponse is one administrative change to a link
type AuditResponse struct {
	ID                 string                  `json:"id"`
	LinkID             string                  `json:"link_id"`
	Action             linking.AuditAction     `json:"action"`
	Marketplace        marketplace.Marketplace `json:"marketplace"`
	MarketplaceOrderID string                  `json:"marketplace_order_id"`
	OldERPOrderID      int64                   `json:"old_erp_order_id"`
	NewERPOrderID      *int64                  `json:"new_erp_order_id,omitempty"`
	Actor              string                  `json:"actor"`
	Reason             string                  `json:"reason,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

// ToAuditResponses converts the audit trail of a link
func ToAuditResponses(audits []linking.Audit) []AuditResponse {
	out := make([]AuditResponse, len(audits))
	for i, a := range audits {
		out[i] = AuditResponse{
			ID:                 a.ID.String(),
			LinkID:             a.LinkID.String(),
			Action:             a.Action,
			Marketplace:        a.Marketplace,
			MarketplaceOrderID: a.MarketplaceOrderID,
			OldERPOrderID:      a.OldERPOrderID,
			NewERPOrderID:      a.NewERPOrderID,
			Actor:              a.Actor,
			Reason:             a.Reason,
			CreatedAt:          a.CreatedAt,
		}
	}
	return out
}
