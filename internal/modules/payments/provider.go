package payments

import (
	"context"
	"net/http"
)

// Event types that confirm a paid checkout.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	PaymentStatusPaid          = "paid"
	PaymentStatusNoPaymentReq  = "no_payment_required"
)

type CheckoutLine struct {
	Name       string
	UnitAmount int
	Quantity   int
}

type CheckoutSessionRequest struct {
	OrderID     string
	Email       string
	Currency    string
	AmountCents int
	Lines       []CheckoutLine
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// WebhookEvent is a verified, parsed processor notification.
type WebhookEvent struct {
	EventID string
	Type    string
	Session SessionObject
}

type SessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	ClientRef     string            `json:"client_reference_id"`
	Metadata      map[string]string `json:"metadata"`
}

// Confirmation is the payment fact the provisioning saga runs on.
type Confirmation struct {
	EventID         string
	EventType       string
	OrderID         string
	SessionID       string
	PaymentIntentID string
	PaymentStatus   string
	Email           string
}

// Paid reports whether the processor settled the payment.
func (c Confirmation) Paid() bool {
	return c.PaymentStatus == PaymentStatusPaid || c.PaymentStatus == PaymentStatusNoPaymentReq
}

type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)

	// VerifyAndParseWebhook checks the signature before touching the body.
	VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error)
}
