package payments

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockProvider is used in local development: checkout sessions point at a
// local URL and webhooks are produced by cmd/tools/mockwebhook.
type MockProvider struct {
	baseURL  string
	verifier *Verifier
}

func NewMockProvider(baseURL, secret string, tolerance time.Duration) *MockProvider {
	return &MockProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		verifier: NewVerifier(secret, tolerance),
	}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	id := "cs_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return CheckoutSession{
		ID:  id,
		URL: p.baseURL + "/mock-pay/" + id + "?order_id=" + req.OrderID,
	}, nil
}

func (p *MockProvider) VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error) {
	return parseWebhook(p.verifier, headers, body)
}
