package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/slug"
)

// Catalog is the read side of the plan catalog.
type Catalog interface {
	GetBySlug(ctx context.Context, slug string) (Plan, error)
	ListActive(ctx context.Context, limit, offset int) ([]Plan, error)
}

type GormRepo struct{ db *gorm.DB }

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

// GetBySlug returns an active plan. Archived plans are reported as missing.
func (r *GormRepo) GetBySlug(ctx context.Context, s string) (Plan, error) {
	s = slug.Normalize(s)
	if s == "" {
		return Plan{}, ErrPlanNotFound
	}
	var p Plan
	err := r.db.WithContext(ctx).
		Where("slug = ? AND status = ?", s, StatusActive).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, err
	}
	return p, nil
}

func (r *GormRepo) ListActive(ctx context.Context, limit, offset int) ([]Plan, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []Plan
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Order("region ASC, price_cents ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}
