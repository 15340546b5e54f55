package esim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/text"
)

// Credentials is one issued eSIM. Limits match the order_items columns so
// an answer the store cannot hold is rejected before it is recorded.
type Credentials struct {
	ESIMUID        string `validate:"max=128"`
	ICCID          string `validate:"max=32"`
	ActivationCode string `validate:"required,max=512"`
	ManualCode     string `validate:"max=255"`
	SMDPAddress    string `validate:"max=255"`
}

// Provisioner issues one eSIM. The idempotency key identifies the order item
// being fulfilled; repeating a call with the same key must not issue a
// second eSIM.
type Provisioner interface {
	Provision(ctx context.Context, providerPlanID, idempotencyKey string) (Credentials, error)
}

// IdempotencyHeader carries the order item id on every issue request.
const IdempotencyHeader = "Idempotency-Key"

// Client calls the upstream eSIM provider's issue endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	validate *validator.Validate
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		validate: validator.New(),
	}
}

type provisionRequest struct {
	PlanID      string `json:"plan_id"`
	Quantity    int    `json:"quantity"`
	ExternalRef string `json:"external_ref,omitempty"`
}

type provisionFields struct {
	ESIMUID        string `json:"esim_uid"`
	UID            string `json:"uid"`
	ICCID          string `json:"iccid"`
	ActivationCode string `json:"activation_code"`
	LPA            string `json:"lpa"`
	ManualCode     string `json:"manual_code"`
	MatchingID     string `json:"matching_id"`
	SMDPAddress    string `json:"smdp_address"`
	SMDP           string `json:"smdp"`
}

type provisionResponse struct {
	provisionFields
	Data *provisionFields `json:"data"`
}

// Provision sends the key both as IdempotencyHeader and as external_ref, so
// the provider answers a repeated request with the eSIM it already issued.
func (c *Client) Provision(ctx context.Context, planID, idempotencyKey string) (Credentials, error) {
	payload, err := json.Marshal(provisionRequest{PlanID: planID, Quantity: 1, ExternalRef: idempotencyKey})
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/esims", bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("esim: request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Credentials{}, fmt.Errorf("esim: read body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Credentials{}, &ProvisioningError{StatusCode: res.StatusCode, Body: text.Truncate(string(body), maxBodyInError)}
	}

	var pr provisionResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidProviderResponse, err)
	}
	fields := pr.provisionFields
	if pr.Data != nil {
		fields = *pr.Data
	}

	creds := normalize(fields)
	if err := c.validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidProviderResponse, err)
	}
	return creds, nil
}

func normalize(f provisionFields) Credentials {
	c := Credentials{
		ESIMUID:        firstNonEmpty(f.ESIMUID, f.UID),
		ICCID:          strings.TrimSpace(f.ICCID),
		ActivationCode: firstNonEmpty(f.ActivationCode, f.LPA),
		ManualCode:     firstNonEmpty(f.ManualCode, f.MatchingID),
		SMDPAddress:    firstNonEmpty(f.SMDPAddress, f.SMDP),
	}
	if smdp, code, ok := ParseLPA(c.ActivationCode); ok {
		if c.SMDPAddress == "" {
			c.SMDPAddress = smdp
		}
		if c.ManualCode == "" {
			c.ManualCode = code
		}
	}
	return c
}

// ParseLPA splits an "LPA:1$<smdp>$<matching id>" activation string.
func ParseLPA(code string) (smdp, matchingID string, ok bool) {
	if !strings.HasPrefix(strings.ToUpper(code), "LPA:1$") {
		return "", "", false
	}
	parts := strings.Split(code[len("LPA:1$"):], "$")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
