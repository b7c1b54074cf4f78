package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormFeeRuleStore implements fee.RuleStore on the fee_rule_sets table.
// Snapshots are cached for ttl; Save invalidates the cache so edits made
// through this process are visible immediately and edits made elsewhere
// within one ttl.
type GormFeeRuleStore struct {
	db    *gorm.DB
	ttl   time.Duration
	seeds []fee.RuleSet
	now   func() time.Time

	mu       sync.Mutex
	cached   *fee.Snapshot
	loadedAt time.Time
}

// FeeRuleStoreOption configures a GormFeeRuleStore
type FeeRuleStoreOption func(*GormFeeRuleStore)

// WithFeeRuleSeeds replaces the built-in rule sets written to an empty table
func WithFeeRuleSeeds(seeds []fee.RuleSet) FeeRuleStoreOption {
	return func(s *GormFeeRuleStore) {
		if len(seeds) > 0 {
			s.seeds = seeds
		}
	}
}

// WithFeeRuleClock overrides the clock used for cache expiry
func WithFeeRuleClock(now func() time.Time) FeeRuleStoreOption {
	return func(s *GormFeeRuleStore) {
		s.now = now
	}
}

// NewGormFeeRuleStore creates the store. A ttl of zero disables caching.
func NewGormFeeRuleStore(db *gorm.DB, ttl time.Duration, opts ...FeeRuleStoreOption) *GormFeeRuleStore {
	s := &GormFeeRuleStore{
		db:    db,
		ttl:   ttl,
		seeds: fee.DefaultRuleSets(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the cached snapshot or reloads it from the table. An
// empty table is seeded first.
func (s *GormFeeRuleStore) Snapshot(ctx context.Context) (*fee.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.ttl > 0 && s.now().Sub(s.loadedAt) < s.ttl {
		return s.cached, nil
	}

	sets, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		if err := s.seed(ctx); err != nil {
			return nil, err
		}
		sets = s.seeds
	}

	snapshot, err := fee.NewSnapshot(sets...)
	if err != nil {
		return nil, fmt.Errorf("load fee rules: %w", err)
	}
	s.cached = snapshot
	s.loadedAt = s.now()
	return snapshot, nil
}

// Save replaces every rule set of one marketplace
func (s *GormFeeRuleStore) Save(ctx context.Context, m marketplace.Marketplace, sets []fee.RuleSet) error {
	for _, rs := range sets {
		if rs.Marketplace != m {
			return fmt.Errorf("%w: %s rule set saved under %s", fee.ErrRuleSetMismatch, rs.Marketplace, m)
		}
		if err := rs.Validate(); err != nil {
			return err
		}
	}

	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("marketplace = ?", string(m)).Delete(&models.FeeRuleSetModel{}).Error; err != nil {
			return err
		}
		for _, rs := range sets {
			if err := tx.Create(models.FeeRuleSetModelFromDomain(rs, now)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return nil
}

func (s *GormFeeRuleStore) load(ctx context.Context) ([]fee.RuleSet, error) {
	var rows []models.FeeRuleSetModel
	if err := s.db.WithContext(ctx).Order("marketplace ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	sets := make([]fee.RuleSet, len(rows))
	for i := range rows {
		sets[i] = rows[i].ToDomain()
	}
	return sets, nil
}

func (s *GormFeeRuleStore) seed(ctx context.Context) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rs := range s.seeds {
			if err := tx.Create(models.FeeRuleSetModelFromDomain(rs, now)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

var _ fee.RuleStore = (*GormFeeRuleStore)(nil)
