package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Resolver maps a storefront slug to the upstream provider plan id using the
// current catalog.
type Resolver struct {
	catalog Catalog
}

func NewResolver(c Catalog) *Resolver { return &Resolver{catalog: c} }

func (r *Resolver) Resolve(ctx context.Context, s string) (PlanRef, error) {
	p, err := r.catalog.GetBySlug(ctx, s)
	if err != nil {
		return PlanRef{}, fmt.Errorf("resolve %q: %w", s, err)
	}
	if p.ProviderPlanID == nil || strings.TrimSpace(*p.ProviderPlanID) == "" {
		return PlanRef{}, fmt.Errorf("resolve %q: %w", s, ErrPlanMappingMissing)
	}
	return PlanRef{
		Slug:           p.Slug,
		Name:           p.Name,
		ProviderPlanID: strings.TrimSpace(*p.ProviderPlanID),
	}, nil
}
