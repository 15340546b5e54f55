package payments

import "errors"

var (
	ErrOrderNotPayable  = errors.New("order not payable")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrUnsupportedEvent = errors.New("unsupported webhook event type")
	ErrMissingOrderID   = errors.New("webhook event carries no order id")
)
