package models

import (
	"time"

	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLinkModel is the persistence model of a marketplace order link.
// (marketplace, marketplace_order_id) is unique.
type OrderLinkModel struct {
	BaseModel
	Marketplace        string          `gorm:"type:varchar(32);not null;uniqueIndex:ux_order_links_marketplace_order"`
	MarketplaceOrderID string          `gorm:"type:varchar(100);not null;uniqueIndex:ux_order_links_marketplace_order"`
	ERPOrderID         int64           `gorm:"column:erp_order_id;not null;index"`
	UnitCount          int             `gorm:"not null;default:0"`
	IsKit              bool            `gorm:"not null;default:false"`
	FreeShipping       bool            `gorm:"not null;default:false"`
	CampaignOrder      bool            `gorm:"not null;default:false"`
	Confidence         decimal.Decimal `gorm:"type:decimal(5,4);not null"`
	LinkedBy           string          `gorm:"type:varchar(32);not null"`
	Notes              string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (OrderLinkModel) TableName() string {
	return "order_links"
}

// ToDomain converts the model to a domain link
func (m *OrderLinkModel) ToDomain() *linking.Link {
	return &linking.Link{
		BaseEntity:         m.BaseModel.ToDomain(),
		Marketplace:        marketplace.Marketplace(m.Marketplace),
		MarketplaceOrderID: m.MarketplaceOrderID,
		ERPOrderID:         m.ERPOrderID,
		Flags: linking.Flags{
			UnitCount:     m.UnitCount,
			IsKit:         m.IsKit,
			FreeShipping:  m.FreeShipping,
			CampaignOrder: m.CampaignOrder,
		},
		Confidence: m.Confidence,
		LinkedBy:   linking.Provenance(m.LinkedBy),
		Notes:      m.Notes,
	}
}

// OrderLinkModelFromDomain converts a domain link to its model
func OrderLinkModelFromDomain(l *linking.Link) *OrderLinkModel {
	m := &OrderLinkModel{
		Marketplace:        string(l.Marketplace),
		MarketplaceOrderID: l.MarketplaceOrderID,
		ERPOrderID:         l.ERPOrderID,
		UnitCount:          l.Flags.UnitCount,
		IsKit:              l.Flags.IsKit,
		FreeShipping:       l.Flags.FreeShipping,
		CampaignOrder:      l.Flags.CampaignOrder,
		Confidence:         l.Confidence,
		LinkedBy:           string(l.LinkedBy),
		Notes:              l.Notes,
	}
	m.FromDomainBaseEntity(l.BaseEntity)
	return m
}

// OrderLinkAuditModel is an append-only audit row
type OrderLinkAuditModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	LinkID             uuid.UUID `gorm:"type:uuid;not null;index"`
	Action             string    `gorm:"type:varchar(16);not null"`
	Marketplace        string    `gorm:"type:varchar(32);not null"`
	MarketplaceOrderID string    `gorm:"type:varchar(100);not null"`
	OldERPOrderID      int64     `gorm:"column:old_erp_order_id;not null"`
	NewERPOrderID      *int64    `gorm:"column:new_erp_order_id"`
	Actor              string    `gorm:"type:varchar(100);not null"`
	Reason             string    `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (OrderLinkAuditModel) TableName() string {
	return "order_link_audits"
}

// ToDomain converts the model to a domain audit entry
func (m *OrderLinkAuditModel) ToDomain() linking.Audit {
	return linking.Audit{
		ID:                 m.ID,
		LinkID:             m.LinkID,
		Action:             linking.AuditAction(m.Action),
		Marketplace:        marketplace.Marketplace(m.Marketplace),
		MarketplaceOrderID: m.MarketplaceOrderID,
		OldERPOrderID:      m.OldERPOrderID,
		NewERPOrderID:      m.NewERPOrderID,
		Actor:              m.Actor,
		Reason:             m.Reason,
		CreatedAt:          m.CreatedAt,
	}
}

// OrderLinkAuditModelFromDomain converts a domain audit entry to its model
func OrderLinkAuditModelFromDomain(a *linking.Audit) *OrderLinkAuditModel {
	return &OrderLinkAuditModel{
		ID:                 a.ID,
		LinkID:             a.LinkID,
		Action:             string(a.Action),
		Marketplace:        string(a.Marketplace),
		MarketplaceOrderID: a.MarketplaceOrderID,
		OldERPOrderID:      a.OldERPOrderID,
		NewERPOrderID:      a.NewERPOrderID,
		Actor:              a.Actor,
		Reason:             a.Reason,
		CreatedAt:          a.CreatedAt,
	}
}
