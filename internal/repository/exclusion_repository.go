package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/perf-analysis/internal/parser/hprof/leakpath"
)

// ExclusionRepository persists the exclusion-rule catalog consulted by
// an analysis run's leakpath.ExclusionsFactory.
type ExclusionRepository interface {
	// ListEnabled returns every enabled rule, in no particular order.
	ListEnabled(ctx context.Context) ([]leakpath.ExclusionRule, error)
	// Create inserts a new rule and returns its assigned ID.
	Create(ctx context.Context, rule LeakPathExclusionRule) (int64, error)
	// SetEnabled toggles a rule's enabled flag.
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// GormExclusionRepository implements ExclusionRepository using GORM.
type GormExclusionRepository struct {
	db *gorm.DB
}

// NewGormExclusionRepository creates a new GormExclusionRepository.
func NewGormExclusionRepository(db *gorm.DB) *GormExclusionRepository {
	return &GormExclusionRepository{db: db}
}

// ListEnabled retrieves every enabled exclusion rule.
func (r *GormExclusionRepository) ListEnabled(ctx context.Context) ([]leakpath.ExclusionRule, error) {
	var records []LeakPathExclusionRule

	err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusion rules: %w", err)
	}

	rules := make([]leakpath.ExclusionRule, len(records))
	for i, rec := range records {
		rules[i] = rec.ToRule()
	}

	return rules, nil
}

// Create inserts a new exclusion rule.
func (r *GormExclusionRepository) Create(ctx context.Context, rule LeakPathExclusionRule) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return 0, fmt.Errorf("failed to insert exclusion rule: %w", err)
	}
	return rule.ID, nil
}

// SetEnabled toggles a rule's enabled flag.
func (r *GormExclusionRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result := r.db.WithContext(ctx).
		Model(&LeakPathExclusionRule{}).
		Where("id = ?", id).
		Update("enabled", enabled)

	if result.Error != nil {
		return fmt.Errorf("failed to update exclusion rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("exclusion rule not found: %d", id)
	}

	return nil
}

// ExclusionsFactory adapts an ExclusionRepository to the
// leakpath.ExclusionsFactory signature: the repository's catalog,
// evaluated fresh for every FindPaths call. The Parser argument is
// unused here since the catalog does not depend on the snapshot being
// analyzed, but a future factory backed by per-task rules would need it.
func ExclusionsFactory(repo ExclusionRepository) leakpath.ExclusionsFactory {
	return func(ctx context.Context, _ leakpath.Parser) ([]leakpath.ExclusionRule, error) {
		return repo.ListEnabled(ctx)
	}
}
