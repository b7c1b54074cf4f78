package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// CreateIfAbsent inserts the payment unless its external reference was
// already ingested for the marketplace
func (r *GormPaymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "marketplace"}, {Name: "external_ref"}},
			DoNothing: true,
		}).
		Create(models.SettlementPaymentModelFromDomain(p))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindByID returns payment.ErrPaymentNotFound for unknown ids
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var model models.SettlementPaymentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payment.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns the payments of a marketplace in occurrence order. With
// AttemptedUntil set, lines never attempted come first, then the ones
// attempted longest ago.
func (r *GormPaymentRepository) List(ctx context.Context, m marketplace.Marketplace, filter payment.ListFilter) ([]*payment.Payment, error) {
	query := r.db.WithContext(ctx).Where("marketplace = ?", string(m))
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at <= ?", *filter.To)
	}
	if filter.BaseOrderID != "" {
		query = query.Where("base_order_id = ?", filter.BaseOrderID)
	}
	if filter.Unresolved {
		query = query.Where("resolved_erp_order_id IS NULL")
	}
	if filter.AttemptedUntil != nil {
		query = query.
			Where("(resolve_attempted_at IS NULL OR resolve_attempted_at <= ?)", *filter.AttemptedUntil).
			Order("resolve_attempted_at IS NOT NULL").
			Order("resolve_attempted_at ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.SettlementPaymentModel
	if err := query.Order("occurred_at ASC").Order("external_ref ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*payment.Payment, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// UpdateResolution writes the resolved ERP order and tags of a payment
func (r *GormPaymentRepository) UpdateResolution(ctx context.Context, p *payment.Payment) error {
	tags := datatypes.JSONSlice[string]{}
	tags = append(tags, p.Tags...)
	result := r.db.WithContext(ctx).
		Model(&models.SettlementPaymentModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"resolved_erp_order_id": p.ResolvedERPOrderID,
			"tags":                  tags,
			"updated_at":            p.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return payment.ErrPaymentNotFound
	}
	return nil
}

// MarkResolveAttempted stamps the lines a resolution pass could not match
func (r *GormPaymentRepository) MarkResolveAttempted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.SettlementPaymentModel{}).
		Where("id IN ?", ids).
		Where("resolved_erp_order_id IS NULL").
		Update("resolve_attempted_at", at).Error
}

var _ payment.Repository = (*GormPaymentRepository)(nil)
