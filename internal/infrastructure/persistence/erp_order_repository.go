package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormERPOrderRepository implements erporder.Repository using GORM
type GormERPOrderRepository struct {
	db *gorm.DB
}

// NewGormERPOrderRepository creates a new GormERPOrderRepository
func NewGormERPOrderRepository(db *gorm.DB) *GormERPOrderRepository {
	return &GormERPOrderRepository{db: db}
}

// FindByERPID returns erporder.ErrOrderNotFound for unknown ids
func (r *GormERPOrderRepository) FindByERPID(ctx context.Context, erpID int64) (*erporder.Order, error) {
	var model models.ERPOrderModel
	err := r.db.WithContext(ctx).Where("erp_id = ?", erpID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, erporder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByERPIDs loads the known orders among erpIDs; unknown ids are absent from the map
func (r *GormERPOrderRepository) FindByERPIDs(ctx context.Context, erpIDs []int64) (map[int64]*erporder.Order, error) {
	out := make(map[int64]*erporder.Order, len(erpIDs))
	if len(erpIDs) == 0 {
		return out, nil
	}
	var rows []models.ERPOrderModel
	if err := r.db.WithContext(ctx).Where("erp_id IN ?", erpIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ERPID] = rows[i].ToDomain()
	}
	return out, nil
}

// Upsert inserts a new order or overwrites the native columns, enrichment
// and hash of an existing one. Link state and first-seen time are never
// touched by the sync.
func (r *GormERPOrderRepository) Upsert(ctx context.Context, order *erporder.Order) error {
	model := models.ERPOrderModelFromDomain(order)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "erp_id"}},
			DoUpdates: clause.AssignmentColumns(models.NativeColumns),
		}).
		Create(model).Error
}

// UpdateEnrichment replaces the enrichment map of one order
func (r *GormERPOrderRepository) UpdateEnrichment(ctx context.Context, erpID int64, enrichment erporder.Enrichment) error {
	result := r.db.WithContext(ctx).
		Model(&models.ERPOrderModel{}).
		Where("erp_id = ?", erpID).
		Update("enrichment", models.EnrichmentToJSONMap(enrichment))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return erporder.ErrOrderNotFound
	}
	return nil
}

// UpdateLinkStatus writes the resolver-owned link columns
func (r *GormERPOrderRepository) UpdateLinkStatus(ctx context.Context, erpID int64, status erporder.LinkStatus) error {
	if !status.State.IsValid() {
		return fmt.Errorf("%w: link state %q", shared.ErrInvalidInput, status.State)
	}
	result := r.db.WithContext(ctx).
		Model(&models.ERPOrderModel{}).
		Where("erp_id = ?", erpID).
		Updates(map[string]any{
			"link_state":        string(status.State),
			"link_reason":       status.Reason,
			"link_attempts":     status.Attempts,
			"link_attempted_at": status.AttemptedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return erporder.ErrOrderNotFound
	}
	return nil
}

// FindUnlinked returns the newest orders waiting for a link. Orders attempted
// after AttemptedUntil are left alone until their retry time.
func (r *GormERPOrderRepository) FindUnlinked(ctx context.Context, filter erporder.UnlinkedFilter) ([]erporder.Order, error) {
	states := filter.States
	if len(states) == 0 {
		states = []erporder.LinkState{erporder.LinkStateUnlinked, erporder.LinkStatePending}
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}

	query := r.db.WithContext(ctx).Model(&models.ERPOrderModel{}).Where("link_state IN ?", names)
	if !filter.CreatedFrom.IsZero() {
		query = query.Where("created_on >= ?", filter.CreatedFrom)
	}
	if filter.AttemptedUntil != nil {
		query = query.Where("(link_attempted_at IS NULL OR link_attempted_at <= ?)", *filter.AttemptedUntil)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.ERPOrderModel
	if err := query.Order("created_on DESC").Order("erp_id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toOrders(rows), nil
}

// FindCreatedBetween pages through orders created in [from, to]
func (r *GormERPOrderRepository) FindCreatedBetween(ctx context.Context, from, to time.Time, filter shared.Filter) ([]erporder.Order, int64, error) {
	inRange := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.ERPOrderModel{}).
			Where("created_on >= ? AND created_on <= ?", from, to)
	}

	var total int64
	if err := inRange().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ERPOrderModel
	if err := inRange().Scopes(paginate(filter, "created_on", "erp_id")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toOrders(rows), total, nil
}

func toOrders(rows []models.ERPOrderModel) []erporder.Order {
	out := make([]erporder.Order, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

var _ erporder.Repository = (*GormERPOrderRepository)(nil)
