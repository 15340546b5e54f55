package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
)

type orderSource interface {
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
	SetPaymentSession(ctx context.Context, id, sessionID string) error
}

type Service struct {
	orders     orderSource
	provider   Provider
	successURL string
	cancelURL  string
}

// NewService wires checkout. "{ORDER_ID}" in the return URLs is replaced
// with the order id.
func NewService(o orderSource, p Provider, successURL, cancelURL string) *Service {
	return &Service{orders: o, provider: p, successURL: successURL, cancelURL: cancelURL}
}

type StartCheckoutInput struct {
	OrderID     string
	ActorUserID *string // must match order.user_id when the order has one
}

func (s *Service) StartCheckout(ctx context.Context, in StartCheckoutInput) (CheckoutSession, error) {
	if in.OrderID == "" {
		return CheckoutSession{}, ErrOrderNotPayable
	}
	ord, err := s.orders.GetWithItems(ctx, in.OrderID)
	if err != nil {
		return CheckoutSession{}, err
	}

	if ord.UserID != nil && (in.ActorUserID == nil || *ord.UserID != *in.ActorUserID) {
		return CheckoutSession{}, ErrForbidden
	}
	if ord.Status != orders.StatusPending || ord.TotalCents < 0 {
		return CheckoutSession{}, ErrOrderNotPayable
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		OrderID:     ord.ID,
		Email:       ord.Email,
		Currency:    ord.Currency,
		AmountCents: ord.TotalCents,
		Lines:       checkoutLines(ord),
		SuccessURL:  strings.ReplaceAll(s.successURL, "{ORDER_ID}", ord.ID),
		CancelURL:   strings.ReplaceAll(s.cancelURL, "{ORDER_ID}", ord.ID),
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	if err := s.orders.SetPaymentSession(ctx, ord.ID, sess.ID); err != nil {
		if errors.Is(err, orders.ErrNotActionable) {
			return CheckoutSession{}, ErrOrderNotPayable
		}
		return CheckoutSession{}, fmt.Errorf("store payment session: %w", err)
	}
	return sess, nil
}

// checkoutLines groups the per-eSIM items back into priced lines. With a
// discount the session carries one line for the discounted total.
func checkoutLines(o orders.Order) []CheckoutLine {
	var lines []CheckoutLine
	index := map[string]int{}
	for _, it := range o.Items {
		key := fmt.Sprintf("%s|%d", it.ProductSlug, it.UnitPriceCents)
		if i, ok := index[key]; ok {
			lines[i].Quantity++
			continue
		}
		index[key] = len(lines)
		lines = append(lines, CheckoutLine{Name: it.ProductName, UnitAmount: it.UnitPriceCents, Quantity: 1})
	}
	if o.DiscountCents > 0 && o.TotalCents >= 0 {
		return []CheckoutLine{{Name: fmt.Sprintf("eSIM order %s", shortID(o.ID)), UnitAmount: o.TotalCents, Quantity: 1}}
	}
	return lines
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
