package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/text"
)

// HostedProvider talks to a hosted-checkout payment processor over its
// form-encoded REST API.
type HostedProvider struct {
	baseURL  string
	apiKey   string
	verifier *Verifier
	http     *http.Client
}

type HostedConfig struct {
	BaseURL          string
	APIKey           string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Timeout          time.Duration
}

func NewHostedProvider(cfg HostedConfig) *HostedProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HostedProvider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		verifier: NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance),
		http:     &http.Client{Timeout: timeout},
	}
}

func (p *HostedProvider) Name() string { return "hosted" }

func (p *HostedProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.OrderID)
	form.Set("metadata[order_id]", req.OrderID)
	if req.Email != "" {
		form.Set("customer_email", req.Email)
	}
	cur := strings.ToLower(req.Currency)
	for i, ln := range req.Lines {
		prefix := "line_items[" + strconv.Itoa(i) + "]"
		form.Set(prefix+"[quantity]", strconv.Itoa(ln.Quantity))
		form.Set(prefix+"[price_data][currency]", cur)
		form.Set(prefix+"[price_data][unit_amount]", strconv.Itoa(ln.UnitAmount))
		form.Set(prefix+"[price_data][product_data][name]", ln.Name)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return CheckoutSession{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", "checkout-"+req.OrderID)

	res, err := p.http.Do(httpReq)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: create session: %w", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode >= 300 {
		return CheckoutSession{}, fmt.Errorf("payments: create session: status %d: %s", res.StatusCode, text.Truncate(string(body), 200))
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: decode session: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return CheckoutSession{}, fmt.Errorf("payments: session response missing id or url")
	}
	return CheckoutSession{ID: out.ID, URL: out.URL}, nil
}

func (p *HostedProvider) VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error) {
	return parseWebhook(p.verifier, headers, body)
}
