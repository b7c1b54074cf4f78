package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormBacklogProvider implements BacklogProvider using GORM.
// It aggregates directly over the erp_orders and settlement_payments tables.
type GormBacklogProvider struct {
	db *gorm.DB
}

// NewGormBacklogProvider creates a new GormBacklogProvider.
func NewGormBacklogProvider(db *gorm.DB) *GormBacklogProvider {
	return &GormBacklogProvider{db: db}
}

type countRow struct {
	Key   string `gorm:"column:key"`
	Total int64  `gorm:"column:total"`
}

// PendingLinksByState counts ERP orders that are not linked, per link state.
func (p *GormBacklogProvider) PendingLinksByState(ctx context.Context) (map[string]int64, error) {
	var rows []countRow
	err := p.db.WithContext(ctx).
		Table("erp_orders").
		Select("link_state AS key, COUNT(*) AS total").
		Where("link_state <> ?", "linked").
		Group("link_state").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// UnresolvedPaymentsByMarketplace counts settlement lines with no ERP order.
func (p *GormBacklogProvider) UnresolvedPaymentsByMarketplace(ctx context.Context) (map[string]int64, error) {
	var rows []countRow
	err := p.db.WithContext(ctx).
		Table("settlement_payments").
		Select("marketplace AS key, COUNT(*) AS total").
		Where("resolved_erp_order_id IS NULL").
		Group("marketplace").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

func toCountMap(rows []countRow) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Key] = r.Total
	}
	return m
}
