package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/slug"
)

const MaxQuantity = 10

var (
	ErrInvalidSlug     = errors.New("invalid plan slug")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrQuantityLimit   = errors.New("quantity limit reached")
	ErrMixedCurrency   = errors.New("cart contains multiple currencies")
	ErrEmpty           = errors.New("cart is empty")
)

type Line struct {
	Slug     string
	Quantity int
}

type PlanLookup interface {
	GetBySlug(ctx context.Context, slug string) (catalog.Plan, error)
}

type Service struct {
	store *Store
	plans PlanLookup
}

func NewService(store *Store, plans PlanLookup) *Service {
	return &Service{store: store, plans: plans}
}

// View is the priced cart. Lines whose plan is no longer sold are dropped
// and reported in Unavailable.
type View struct {
	Items         []Item   `json:"items"`
	Unavailable   []string `json:"unavailable,omitempty"`
	Count         int      `json:"count"`
	Currency      string   `json:"currency,omitempty"`
	SubtotalCents int      `json:"subtotal_cents"`
}

type Item struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Region         string `json:"region"`
	DurationDays   int    `json:"duration_days"`
	DataMB         int    `json:"data_mb"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
	LineTotalCents int    `json:"line_total_cents"`
}

func (s *Service) Lines(ctx context.Context, cartID string) ([]Line, error) {
	if cartID == "" {
		return nil, nil
	}
	return s.store.Lines(ctx, cartID)
}

// Add increases the quantity of a plan, checking that the plan is on sale.
func (s *Service) Add(ctx context.Context, cartID, planSlug string, qty int) error {
	planSlug = slug.Normalize(planSlug)
	if !slug.Valid(planSlug) {
		return ErrInvalidSlug
	}
	if qty < 1 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if _, err := s.plans.GetBySlug(ctx, planSlug); err != nil {
		return err
	}

	lines, err := s.store.Lines(ctx, cartID)
	if err != nil {
		return err
	}
	for _, ln := range lines {
		if ln.Slug == planSlug {
			qty += ln.Quantity
		}
	}
	if qty > MaxQuantity {
		return fmt.Errorf("%w: at most %d per plan", ErrQuantityLimit, MaxQuantity)
	}
	return s.store.Set(ctx, cartID, planSlug, qty)
}

// SetQuantity replaces the quantity of a plan; zero removes it.
func (s *Service) SetQuantity(ctx context.Context, cartID, planSlug string, qty int) error {
	planSlug = slug.Normalize(planSlug)
	if !slug.Valid(planSlug) {
		return ErrInvalidSlug
	}
	if qty < 0 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if qty == 0 {
		return s.store.Remove(ctx, cartID, planSlug)
	}
	return s.store.Set(ctx, cartID, planSlug, qty)
}

func (s *Service) Remove(ctx context.Context, cartID, planSlug string) error {
	return s.store.Remove(ctx, cartID, slug.Normalize(planSlug))
}

func (s *Service) Clear(ctx context.Context, cartID string) error {
	return s.store.Clear(ctx, cartID)
}

func (s *Service) View(ctx context.Context, cartID string) (View, error) {
	v := View{Items: []Item{}}
	lines, err := s.Lines(ctx, cartID)
	if err != nil {
		return v, err
	}

	for _, ln := range lines {
		p, err := s.plans.GetBySlug(ctx, ln.Slug)
		if errors.Is(err, catalog.ErrPlanNotFound) {
			v.Unavailable = append(v.Unavailable, ln.Slug)
			continue
		}
		if err != nil {
			return v, err
		}

		cur := strings.ToUpper(p.Currency)
		if v.Currency == "" {
			v.Currency = cur
		} else if v.Currency != cur {
			return v, ErrMixedCurrency
		}

		line := p.PriceCents * ln.Quantity
		v.Items = append(v.Items, Item{
			Slug:           p.Slug,
			Name:           p.Name,
			Region:         p.Region,
			DurationDays:   p.DurationDays,
			DataMB:         p.DataMB,
			Quantity:       ln.Quantity,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: line,
		})
		v.Count += ln.Quantity
		v.SubtotalCents += line
	}
	return v, nil
}
