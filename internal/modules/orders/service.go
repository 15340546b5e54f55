package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/slug"
)

const (
	maxQuantityPerLine = 10
	maxItemsPerOrder   = 20
)

type PlanLookup interface {
	GetBySlug(ctx context.Context, slug string) (catalog.Plan, error)
}

type orderWriter interface {
	Insert(ctx context.Context, o *Order) error
}

type Service struct {
	store orderWriter
	plans PlanLookup
	now   func() time.Time
}

func NewService(store orderWriter, plans PlanLookup) *Service {
	return &Service{store: store, plans: plans, now: time.Now}
}

type Line struct {
	Slug     string
	Quantity int
}

type CreateInput struct {
	UserID        *string
	Email         string
	Lines         []Line
	DiscountCents int
}

// Create prices the lines against the current catalog and stores a pending
// order. Every purchased unit becomes its own item so each eSIM has a row to
// carry its credentials.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Order{}, ErrInvalidEmail
	}
	if len(in.Lines) == 0 {
		return Order{}, ErrNoItems
	}

	now := s.now().UTC()
	o := Order{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Email:     email,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, ln := range in.Lines {
		if ln.Quantity < 1 || ln.Quantity > maxQuantityPerLine {
			return Order{}, fmt.Errorf("%w: %s x%d", ErrInvalidQuantity, ln.Slug, ln.Quantity)
		}
		p, err := s.plans.GetBySlug(ctx, slug.Normalize(ln.Slug))
		if errors.Is(err, catalog.ErrPlanNotFound) {
			return Order{}, fmt.Errorf("%w: %s", ErrProductUnavailable, ln.Slug)
		}
		if err != nil {
			return Order{}, err
		}

		if o.Currency == "" {
			o.Currency = p.Currency
		} else if o.Currency != p.Currency {
			return Order{}, ErrCurrencyMismatch
		}

		for i := 0; i < ln.Quantity; i++ {
			if len(o.Items) == maxItemsPerOrder {
				return Order{}, fmt.Errorf("%w: more than %d eSIMs", ErrInvalidQuantity, maxItemsPerOrder)
			}
			o.Items = append(o.Items, snapshotItem(o.ID, len(o.Items), p, now))
			o.SubtotalCents += p.PriceCents
		}
	}

	o.DiscountCents = clamp(in.DiscountCents, 0, o.SubtotalCents)
	o.TotalCents = o.SubtotalCents - o.DiscountCents

	if err := s.store.Insert(ctx, &o); err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func snapshotItem(orderID string, pos int, p catalog.Plan, now time.Time) OrderItem {
	return OrderItem{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		Position:       pos,
		ProductSlug:    p.Slug,
		ProductName:    p.Name,
		UnitPriceCents: p.PriceCents,
		Quantity:       1,
		LineTotalCents: p.PriceCents,
		Currency:       p.Currency,
		DurationDays:   p.DurationDays,
		DataMB:         p.DataMB,
		Region:         p.Region,
		ProviderPlanID: p.ProviderPlanID,
		CreatedAt:      now,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
