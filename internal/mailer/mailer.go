package mailer

import (
	"context"
	"fmt"

	"github.com/thespeedingatom/soviario-app-sub000/internal/config"
)

type Service interface {
	Send(ctx context.Context, e Email) error
}

type Email struct {
	FromName string // optional display name
	From     string

	To  []string
	Cc  []string
	Bcc []string

	Subject string

	TextBody string
	HTMLBody string

	Attachments []Attachment
	Headers     map[string]string
	Category    string // used by the HTTP API sender
}

// Attachment is a file sent with the message. Inline attachments carry a
// ContentID and are referenced from the HTML body as cid:<ContentID>.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	Data        []byte
}

func (e Email) AllRecipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}

// FromConfig picks the sender for cfg.Driver.
func FromConfig(cfg config.MailConfig) (Service, error) {
	switch cfg.Driver {
	case "", "smtp":
		return NewSMTPMailer(cfg.SMTP), nil
	case "http":
		return NewHTTPMailer(cfg.APIURL, cfg.APIToken), nil
	default:
		return nil, fmt.Errorf("mailer: unknown driver %q", cfg.Driver)
	}
}
