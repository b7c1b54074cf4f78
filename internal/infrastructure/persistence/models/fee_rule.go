package models

import (
	"time"

	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FeeRuleSetModel stores one marketplace rule set for an effective period.
// The rule set itself is kept as JSON; the period columns allow listing.
type FeeRuleSetModel struct {
	ID            uuid.UUID                       `gorm:"type:uuid;primaryKey"`
	Marketplace   string                          `gorm:"type:varchar(32);not null;index"`
	EffectiveFrom *time.Time                      `gorm:"column:effective_from"`
	EffectiveTo   *time.Time                      `gorm:"column:effective_to"`
	Rules         datatypes.JSONType[fee.RuleSet] `gorm:"not null"`
	CreatedAt     time.Time                       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FeeRuleSetModel) TableName() string {
	return "fee_rule_sets"
}

// ToDomain returns the stored rule set
func (m *FeeRuleSetModel) ToDomain() fee.RuleSet {
	return m.Rules.Data()
}

// FeeRuleSetModelFromDomain wraps a rule set in a new row
func FeeRuleSetModelFromDomain(rs fee.RuleSet, now time.Time) *FeeRuleSetModel {
	return &FeeRuleSetModel{
		ID:            uuid.New(),
		Marketplace:   string(rs.Marketplace),
		EffectiveFrom: rs.EffectiveFrom,
		EffectiveTo:   rs.EffectiveTo,
		Rules:         datatypes.NewJSONType(rs),
		CreatedAt:     now,
	}
}
