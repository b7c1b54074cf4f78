package persistence

import (
	"context"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncRunRepository implements erporder.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create stores a new run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *erporder.SyncRun) error {
	return r.db.WithContext(ctx).Create(models.SyncRunModelFromDomain(run)).Error
}

// Update overwrites the counters and outcome of a run
func (r *GormSyncRunRepository) Update(ctx context.Context, run *erporder.SyncRun) error {
	return r.db.WithContext(ctx).Save(models.SyncRunModelFromDomain(run)).Error
}

// List returns the run history, newest first by default
func (r *GormSyncRunRepository) List(ctx context.Context, filter shared.Filter) ([]erporder.SyncRun, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.SyncRunModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncRunModel
	if err := r.db.WithContext(ctx).Scopes(paginate(filter, "started_at")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]erporder.SyncRun, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

var _ erporder.SyncRunRepository = (*GormSyncRunRepository)(nil)
