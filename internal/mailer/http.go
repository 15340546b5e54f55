package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPMailer sends through a transactional email HTTP API (Mailtrap-style
// JSON send endpoint with bearer auth).
type HTTPMailer struct {
	apiURL string
	token  string
	client *http.Client
}

func NewHTTPMailer(apiURL, token string) *HTTPMailer {
	return &HTTPMailer{apiURL: apiURL, token: token, client: &http.Client{Timeout: 15 * time.Second}}
}

type apiPerson struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type apiAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	ContentID   string `json:"content_id,omitempty"`
}

type apiPayload struct {
	From        apiPerson       `json:"from"`
	To          []apiPerson     `json:"to"`
	Cc          []apiPerson     `json:"cc,omitempty"`
	Bcc         []apiPerson     `json:"bcc,omitempty"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text,omitempty"`
	HTML        string          `json:"html,omitempty"`
	Category    string          `json:"category,omitempty"`
	Attachments []apiAttachment `json:"attachments,omitempty"`
}

func people(addrs []string) []apiPerson {
	out := make([]apiPerson, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, apiPerson{Email: a})
	}
	return out
}

func (m *HTTPMailer) Send(ctx context.Context, e Email) error {
	if m.apiURL == "" || m.token == "" {
		return fmt.Errorf("mailer: http api credentials not configured")
	}
	if err := validate(e); err != nil {
		return err
	}

	p := apiPayload{
		From:     apiPerson{Email: e.From, Name: e.FromName},
		To:       people(e.To),
		Cc:       people(e.Cc),
		Bcc:      people(e.Bcc),
		Subject:  e.Subject,
		Text:     e.TextBody,
		HTML:     e.HTMLBody,
		Category: e.Category,
	}
	for _, a := range e.Attachments {
		disp := "attachment"
		if a.Inline {
			disp = "inline"
		}
		p.Attachments = append(p.Attachments, apiAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			Filename:    a.Filename,
			Type:        a.ContentType,
			Disposition: disp,
			ContentID:   a.ContentID,
		})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: http send: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("mailer: http api status %d: %s", res.StatusCode, msg)
	}
	return nil
}
