package handlers

import (
	"errors"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/auth"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/cart"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

// toAppErr maps domain sentinels to HTTP-facing errors.
func toAppErr(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return apperr.NotFoundErr("Order not found.").WithCause(err)
	case errors.Is(err, catalog.ErrPlanNotFound):
		return apperr.NotFoundErr("Plan not found.").WithCause(err)
	case errors.Is(err, orders.ErrProductUnavailable):
		return apperr.ConflictErr("A plan in your order is no longer available.").WithCause(err)
	case errors.Is(err, orders.ErrCurrencyMismatch), errors.Is(err, cart.ErrMixedCurrency):
		return apperr.InvalidErr("All plans in an order must use the same currency.", nil).WithCause(err)
	case errors.Is(err, orders.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidQuantity):
		return apperr.InvalidErr("Invalid quantity.", map[string]string{"quantity": "Invalid quantity."}).WithCause(err)
	case errors.Is(err, cart.ErrQuantityLimit):
		return apperr.InvalidErr("Quantity limit reached for this plan.", map[string]string{"quantity": err.Error()}).WithCause(err)
	case errors.Is(err, cart.ErrInvalidSlug):
		return apperr.InvalidErr("Invalid plan.", map[string]string{"slug": "Invalid plan."}).WithCause(err)
	case errors.Is(err, orders.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidEmail):
		return apperr.InvalidErr("Enter a valid email address.", map[string]string{"email": "Enter a valid email address."}).WithCause(err)
	case errors.Is(err, orders.ErrNoItems), errors.Is(err, cart.ErrEmpty):
		return apperr.InvalidErr("Your cart is empty.", nil).WithCause(err)
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrNotActionable):
		return apperr.ConflictErr("This action is not allowed for the order's current status.").WithCause(err)
	case errors.Is(err, payments.ErrOrderNotPayable):
		return apperr.ConflictErr("This order can no longer be paid.").WithCause(err)
	case errors.Is(err, payments.ErrForbidden):
		return apperr.ForbiddenErr("You cannot pay for this order.").WithCause(err)
	case errors.Is(err, auth.ErrEmailTaken):
		return apperr.ConflictErr("An account with this email already exists.").WithCause(err)
	case errors.Is(err, auth.ErrWeakPassword):
		return apperr.InvalidErr("Password is too short.", map[string]string{"password": err.Error()}).WithCause(err)
	case errors.Is(err, auth.ErrInvalidVerification):
		return apperr.InvalidErr("This verification link is invalid or has expired.", nil).WithCause(err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.UnauthorizedErr("Invalid email or password.").WithCause(err)
	}
	return apperr.Wrap(err)
}
