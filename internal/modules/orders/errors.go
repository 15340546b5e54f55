package orders

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrNoItems            = errors.New("order has no items")
	ErrCurrencyMismatch   = errors.New("currency mismatch between items")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrUnknownItem        = errors.New("item does not belong to order")

	// ErrAlreadyProvisioned is returned when different credentials would
	// overwrite an item that already has some.
	ErrAlreadyProvisioned = errors.New("order item already provisioned")

	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNotActionable     = errors.New("order not actionable")
)
