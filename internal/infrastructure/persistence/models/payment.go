package models

import (
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SettlementPaymentModel is a stored settlement line.
// (marketplace, external_ref) is unique so re-ingesting a feed is a no-op.
type SettlementPaymentModel struct {
	ID                 uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	Marketplace        string                      `gorm:"type:varchar(32);not null;uniqueIndex:ux_settlement_payments_ref;index:idx_settlement_payments_base"`
	ExternalRef        string                      `gorm:"type:varchar(200);not null;uniqueIndex:ux_settlement_payments_ref"`
	BaseOrderID        string                      `gorm:"type:varchar(100);not null;index:idx_settlement_payments_base"`
	SubEventKind       string                      `gorm:"type:varchar(16);not null;default:''"`
	SubEventSeq        string                      `gorm:"type:varchar(16);not null;default:''"`
	Amount             decimal.Decimal             `gorm:"type:decimal(14,2);not null"`
	IsExpense          bool                        `gorm:"not null;default:false"`
	TransactionType    string                      `gorm:"type:varchar(100)"`
	Description        string                      `gorm:"type:text"`
	OccurredAt         time.Time                   `gorm:"not null;index"`
	ResolvedERPOrderID *int64                      `gorm:"column:resolved_erp_order_id;index"`
	ResolveAttemptedAt *time.Time                  `gorm:"index"`
	Tags               datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt          time.Time                   `gorm:"not null"`
	UpdatedAt          time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SettlementPaymentModel) TableName() string {
	return "settlement_payments"
}

// ToDomain converts the model to a domain payment
func (m *SettlementPaymentModel) ToDomain() *payment.Payment {
	tags := make([]string, 0, len(m.Tags))
	tags = append(tags, m.Tags...)
	return &payment.Payment{
		ID:          m.ID,
		Marketplace: marketplace.Marketplace(m.Marketplace),
		ExternalRef: m.ExternalRef,
		Ref: marketplace.OrderRef{
			BaseID: m.BaseOrderID,
			Kind:   marketplace.SubEventKind(m.SubEventKind),
			Seq:    m.SubEventSeq,
		},
		Amount:             m.Amount,
		IsExpense:          m.IsExpense,
		TransactionType:    m.TransactionType,
		Description:        m.Description,
		OccurredAt:         m.OccurredAt,
		ResolvedERPOrderID: m.ResolvedERPOrderID,
		ResolveAttemptedAt: m.ResolveAttemptedAt,
		Tags:               tags,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// SettlementPaymentModelFromDomain converts a domain payment to its model
func SettlementPaymentModelFromDomain(p *payment.Payment) *SettlementPaymentModel {
	tags := datatypes.JSONSlice[string]{}
	tags = append(tags, p.Tags...)
	return &SettlementPaymentModel{
		ID:                 p.ID,
		Marketplace:        string(p.Marketplace),
		ExternalRef:        p.ExternalRef,
		BaseOrderID:        p.Ref.BaseID,
		SubEventKind:       string(p.Ref.Kind),
		SubEventSeq:        p.Ref.Seq,
		Amount:             p.Amount,
		IsExpense:          p.IsExpense,
		TransactionType:    p.TransactionType,
		Description:        p.Description,
		OccurredAt:         p.OccurredAt,
		ResolvedERPOrderID: p.ResolvedERPOrderID,
		ResolveAttemptedAt: p.ResolveAttemptedAt,
		Tags:               tags,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}
