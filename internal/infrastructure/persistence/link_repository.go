package persistence

import (
	"context"
	"errors"

	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLinkRepository implements linking.Repository using GORM
type GormLinkRepository struct {
	db *gorm.DB
}

// NewGormLinkRepository creates a new GormLinkRepository
func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GormLinkRepository) WithTx(tx *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: tx}
}

// FindByMarketplaceOrder returns linking.ErrLinkNotFound when no link exists
func (r *GormLinkRepository) FindByMarketplaceOrder(ctx context.Context, m marketplace.Marketplace, orderID string) (*linking.Link, error) {
	var model models.OrderLinkModel
	err := r.db.WithContext(ctx).
		Where("marketplace = ? AND marketplace_order_id = ?", string(m), orderID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, linking.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByERPOrder returns every link pointing at the ERP order, oldest first
func (r *GormLinkRepository) FindByERPOrder(ctx context.Context, erpOrderID int64) ([]linking.Link, error) {
	var rows []models.OrderLinkModel
	err := r.db.WithContext(ctx).
		Where("erp_order_id = ?", erpOrderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]linking.Link, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// CreateIfAbsent relies on the unique (marketplace, marketplace_order_id)
// index so concurrent resolvers cannot both create the link
func (r *GormLinkRepository) CreateIfAbsent(ctx context.Context, link *linking.Link) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "marketplace"}, {Name: "marketplace_order_id"}},
			DoNothing: true,
		}).
		Create(models.OrderLinkModelFromDomain(link))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Reassign updates the ERP reference and stores the audit in one transaction
func (r *GormLinkRepository) Reassign(ctx context.Context, link *linking.Link, audit *linking.Audit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrderLinkModel{}).
			Where("id = ?", link.ID).
			Updates(map[string]any{
				"erp_order_id": link.ERPOrderID,
				"linked_by":    string(link.LinkedBy),
				"notes":        link.Notes,
				"updated_at":   link.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return linking.ErrLinkNotFound
		}
		return tx.Create(models.OrderLinkAuditModelFromDomain(audit)).Error
	})
}

// Delete removes the link and stores the audit in one transaction
func (r *GormLinkRepository) Delete(ctx context.Context, link *linking.Link, audit *linking.Audit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", link.ID).Delete(&models.OrderLinkModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return linking.ErrLinkNotFound
		}
		return tx.Create(models.OrderLinkAuditModelFromDomain(audit)).Error
	})
}

// ListAudits returns the audit trail of a link, newest first
func (r *GormLinkRepository) ListAudits(ctx context.Context, linkID uuid.UUID) ([]linking.Audit, error) {
	var rows []models.OrderLinkAuditModel
	err := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]linking.Audit, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ linking.Repository = (*GormLinkRepository)(nil)
