package payments

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object SessionObject `json:"object"`
	} `json:"data"`
}

// parseWebhook verifies the signature and decodes the event envelope.
func parseWebhook(v *Verifier, headers http.Header, body []byte) (WebhookEvent, error) {
	if err := v.Verify(headers.Get(SignatureHeader), body); err != nil {
		return WebhookEvent{}, err
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Type) == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}
	return WebhookEvent{EventID: p.ID, Type: p.Type, Session: p.Data.Object}, nil
}

// Confirmation extracts the payment fact from a checkout event. Other event
// types yield ErrUnsupportedEvent and are acknowledged without action.
func (ev WebhookEvent) Confirmation() (Confirmation, error) {
	switch ev.Type {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
	default:
		return Confirmation{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Type)
	}

	// Only metadata carries the order id. client_reference_id is set on the
	// same session but is never read back.
	orderID := strings.TrimSpace(ev.Session.Metadata["order_id"])
	if orderID == "" {
		return Confirmation{}, ErrMissingOrderID
	}

	return Confirmation{
		EventID:         ev.EventID,
		EventType:       ev.Type,
		OrderID:         orderID,
		SessionID:       ev.Session.ID,
		PaymentIntentID: ev.Session.PaymentIntent,
		PaymentStatus:   ev.Session.PaymentStatus,
		Email:           ev.Session.CustomerEmail,
	}, nil
}
