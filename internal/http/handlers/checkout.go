package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/cartcookie"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/validation"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/cart"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

type orderCreator interface {
	Create(ctx context.Context, in orders.CreateInput) (orders.Order, error)
}

type checkoutStarter interface {
	StartCheckout(ctx context.Context, in payments.StartCheckoutInput) (payments.CheckoutSession, error)
}

type CheckoutHandler struct {
	Logger   *slog.Logger
	Orders   orderCreator
	Payments checkoutStarter
	Cart     *cart.Service
	Cookie   *cartcookie.Codec
	BaseURL  string
}

type checkoutLine struct {
	Slug     string `json:"slug" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=10"`
}

type checkoutInput struct {
	Email string         `json:"email" binding:"omitempty,email"`
	Items []checkoutLine `json:"items" binding:"omitempty,max=20,dive"`
}

// POST /api/checkout
// Uses the explicit items when given, the cart otherwise. Signed-in buyers
// may omit the email.
func (h *CheckoutHandler) Create(c *gin.Context) {
	var in checkoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}
	ctx := c.Request.Context()

	var userID *string
	email := strings.TrimSpace(in.Email)
	if u, ok := middleware.CurrentUser(c); ok {
		id := u.ID
		userID = &id
		if email == "" {
			email = u.Email
		}
	}
	if email == "" {
		middleware.Fail(c, apperr.InvalidErr("Enter a valid email address.", map[string]string{"email": "This field is required."}))
		return
	}

	fromCart := len(in.Items) == 0
	var cartID string

	var lines []orders.Line
	if fromCart {
		cartID, _ = h.Cookie.GetCartID(c)
		cl, err := h.Cart.Lines(ctx, cartID)
		if err != nil {
			middleware.Fail(c, toAppErr(err))
			return
		}
		for _, l := range cl {
			lines = append(lines, orders.Line{Slug: l.Slug, Quantity: l.Quantity})
		}
	} else {
		for _, l := range in.Items {
			lines = append(lines, orders.Line{Slug: l.Slug, Quantity: l.Quantity})
		}
	}

	order, err := h.Orders.Create(ctx, orders.CreateInput{UserID: userID, Email: email, Lines: lines})
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	sess, err := h.Payments.StartCheckout(ctx, payments.StartCheckoutInput{OrderID: order.ID, ActorUserID: userID})
	if err != nil {
		h.Logger.ErrorContext(ctx, "checkout_session_failed",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
		if errors.Is(err, payments.ErrOrderNotPayable) || errors.Is(err, payments.ErrForbidden) {
			middleware.Fail(c, toAppErr(err))
			return
		}
		middleware.Fail(c, apperr.UnavailableErr("Payment is temporarily unavailable. Please try again.").WithCause(err))
		return
	}

	if fromCart && cartID != "" {
		if err := h.Cart.Clear(ctx, cartID); err != nil {
			h.Logger.WarnContext(ctx, "cart_clear_failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":     order.ID,
		"status":       order.Status,
		"total_cents":  order.TotalCents,
		"currency":     order.Currency,
		"checkout_url": sess.URL,
		"status_url":   h.BaseURL + "/api/orders/" + order.ID + "/status",
	})
}
