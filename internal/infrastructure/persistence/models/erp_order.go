package models

import (
	"encoding/json"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ERPOrderModel is the persistence model of a synced ERP order. Native
// columns are owned by the sync, enrichment by the downstream steps and
// the link_* columns by the linking resolver.
type ERPOrderModel struct {
	ERPID            int64             `gorm:"column:erp_id;primaryKey;autoIncrement:false"`
	OrderNumber      int64             `gorm:"not null;default:0"`
	EcommerceOrderID string            `gorm:"type:varchar(100);index"`
	Channel          string            `gorm:"type:varchar(100);not null;default:''"`
	CreatedOn        time.Time         `gorm:"not null;index"`
	UpdatedOn        *time.Time        `gorm:"column:updated_on"`
	GrossValue       decimal.Decimal   `gorm:"type:decimal(14,2);not null"`
	FreightValue     *decimal.Decimal  `gorm:"type:decimal(14,2)"`
	DiscountValue    decimal.Decimal   `gorm:"type:decimal(14,2);not null"`
	Status           int               `gorm:"not null;default:0"`
	CustomerName     string            `gorm:"type:varchar(200)"`
	UnitCount        int               `gorm:"not null;default:0"`
	Enrichment       datatypes.JSONMap `gorm:"not null"`
	RawPayload       datatypes.JSON    `gorm:"column:raw_payload"`
	ContentHash      string            `gorm:"type:varchar(64);not null"`
	LinkState        string            `gorm:"type:varchar(16);not null;default:'unlinked';index:idx_erp_orders_link"`
	LinkReason       string            `gorm:"type:varchar(64);not null;default:''"`
	LinkAttempts     int               `gorm:"not null;default:0"`
	LinkAttemptedAt  *time.Time        `gorm:"index:idx_erp_orders_link"`
	FirstSeenAt      time.Time         `gorm:"not null"`
	LastSyncedAt     time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ERPOrderModel) TableName() string {
	return "erp_orders"
}

// NativeColumns are overwritten when the sync sees a changed payload
var NativeColumns = []string{
	"order_number", "ecommerce_order_id", "channel", "created_on", "updated_on",
	"gross_value", "freight_value", "discount_value", "status", "customer_name",
	"unit_count", "enrichment", "raw_payload", "content_hash", "last_synced_at",
}

// ToDomain converts the model to a domain order
func (m *ERPOrderModel) ToDomain() *erporder.Order {
	enrichment := erporder.Enrichment{}
	for k, v := range m.Enrichment {
		enrichment[k] = v
	}
	return &erporder.Order{
		ERPID: m.ERPID,
		Native: erporder.NativeFields{
			ERPID:            m.ERPID,
			OrderNumber:      m.OrderNumber,
			EcommerceOrderID: m.EcommerceOrderID,
			Channel:          m.Channel,
			CreatedOn:        m.CreatedOn,
			UpdatedOn:        m.UpdatedOn,
			GrossValue:       m.GrossValue,
			FreightValue:     m.FreightValue,
			DiscountValue:    m.DiscountValue,
			Status:           erporder.StatusCode(m.Status),
			CustomerName:     m.CustomerName,
			UnitCount:        m.UnitCount,
		},
		Enrichment:  enrichment,
		RawPayload:  json.RawMessage(m.RawPayload),
		ContentHash: m.ContentHash,
		LinkStatus: erporder.LinkStatus{
			State:       erporder.LinkState(m.LinkState),
			Reason:      m.LinkReason,
			Attempts:    m.LinkAttempts,
			AttemptedAt: m.LinkAttemptedAt,
		},
		FirstSeenAt:  m.FirstSeenAt,
		LastSyncedAt: m.LastSyncedAt,
	}
}

// ERPOrderModelFromDomain converts a domain order to its model
func ERPOrderModelFromDomain(o *erporder.Order) *ERPOrderModel {
	state := o.LinkStatus.State
	if state == "" {
		state = erporder.LinkStateUnlinked
	}
	return &ERPOrderModel{
		ERPID:            o.ERPID,
		OrderNumber:      o.Native.OrderNumber,
		EcommerceOrderID: o.Native.EcommerceOrderID,
		Channel:          o.Native.Channel,
		CreatedOn:        o.Native.CreatedOn,
		UpdatedOn:        o.Native.UpdatedOn,
		GrossValue:       o.Native.GrossValue,
		FreightValue:     o.Native.FreightValue,
		DiscountValue:    o.Native.DiscountValue,
		Status:           int(o.Native.Status),
		CustomerName:     o.Native.CustomerName,
		UnitCount:        o.Native.UnitCount,
		Enrichment:       EnrichmentToJSONMap(o.Enrichment),
		RawPayload:       datatypes.JSON(o.RawPayload),
		ContentHash:      o.ContentHash,
		LinkState:        string(state),
		LinkReason:       o.LinkStatus.Reason,
		LinkAttempts:     o.LinkStatus.Attempts,
		LinkAttemptedAt:  o.LinkStatus.AttemptedAt,
		FirstSeenAt:      o.FirstSeenAt,
		LastSyncedAt:     o.LastSyncedAt,
	}
}

// EnrichmentToJSONMap copies the enrichment into a JSON column value
func EnrichmentToJSONMap(e erporder.Enrichment) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range e {
		out[k] = v
	}
	return out
}
