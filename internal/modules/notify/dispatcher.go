package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/thespeedingatom/soviario-app-sub000/internal/mailer"
)

var (
	ErrNoRecipient = errors.New("notify: missing recipient email")
	ErrNoESIMs     = errors.New("notify: no eSIMs to deliver")
)

// Activation is everything the buyer needs to install the purchased eSIMs.
type Activation struct {
	OrderID string
	Email   string
	ESIMs   []ESIM
}

type ESIM struct {
	PlanName       string
	ActivationCode string
	ManualCode     string
	SMDPAddress    string
}

type Dispatcher struct {
	mail     mailer.Service
	from     string
	fromName string
	baseURL  string
	qrSize   int
	logger   *slog.Logger
}

type Options struct {
	From     string
	FromName string
	BaseURL  string
	QRSize   int
}

func NewDispatcher(mail mailer.Service, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mail:     mail,
		from:     opts.From,
		fromName: opts.FromName,
		baseURL:  opts.BaseURL,
		qrSize:   opts.QRSize,
		logger:   logger,
	}
}

// SendActivation renders and sends the activation email. QR images are
// generated per send and attached inline; nothing is written to disk.
func (d *Dispatcher) SendActivation(ctx context.Context, a Activation) error {
	if a.Email == "" {
		return ErrNoRecipient
	}
	if len(a.ESIMs) == 0 {
		return ErrNoESIMs
	}

	email, err := d.Build(a)
	if err != nil {
		return err
	}
	if err := d.mail.Send(ctx, email); err != nil {
		return fmt.Errorf("notify: send activation email: %w", err)
	}
	d.logger.InfoContext(ctx, "activation_email_sent",
		slog.String("order_id", a.OrderID),
		slog.Int("esims", len(a.ESIMs)),
	)
	return nil
}

// SendVerification mails the link that confirms the account's address.
func (d *Dispatcher) SendVerification(ctx context.Context, to, token string) error {
	if to == "" {
		return ErrNoRecipient
	}
	data := verifyData{URL: strings.TrimRight(d.baseURL, "/") + "/verify-email?token=" + url.QueryEscape(token)}

	var html, text bytes.Buffer
	if err := verifyHTML.Execute(&html, data); err != nil {
		return fmt.Errorf("notify: render html: %w", err)
	}
	if err := verifyText.Execute(&text, data); err != nil {
		return fmt.Errorf("notify: render text: %w", err)
	}

	if err := d.mail.Send(ctx, mailer.Email{
		From:     d.from,
		FromName: d.fromName,
		To:       []string{to},
		Subject:  "Confirm your email address",
		TextBody: text.String(),
		HTMLBody: html.String(),
		Category: "email-verification",
	}); err != nil {
		return fmt.Errorf("notify: send verification email: %w", err)
	}
	d.logger.InfoContext(ctx, "verification_email_sent")
	return nil
}

// Build renders the message without sending it.
func (d *Dispatcher) Build(a Activation) (mailer.Email, error) {
	data := templateData{OrderID: a.OrderID, BaseURL: d.baseURL}
	attachments := make([]mailer.Attachment, 0, len(a.ESIMs))

	for i, e := range a.ESIMs {
		n := i + 1
		cid := fmt.Sprintf("esim-%d", n)
		png, err := PNG(e.ActivationCode, d.qrSize)
		if err != nil {
			return mailer.Email{}, fmt.Errorf("notify: qr for esim %d: %w", n, err)
		}
		attachments = append(attachments, mailer.Attachment{
			Filename:    cid + ".png",
			ContentType: "image/png",
			ContentID:   cid,
			Inline:      true,
			Data:        png,
		})
		data.ESIMs = append(data.ESIMs, templateESIM{
			Index:          n,
			PlanName:       e.PlanName,
			ActivationCode: e.ActivationCode,
			ManualCode:     e.ManualCode,
			SMDPAddress:    e.SMDPAddress,
			ContentID:      cid,
		})
	}

	var html, text bytes.Buffer
	if err := activationHTML.Execute(&html, data); err != nil {
		return mailer.Email{}, fmt.Errorf("notify: render html: %w", err)
	}
	if err := activationText.Execute(&text, data); err != nil {
		return mailer.Email{}, fmt.Errorf("notify: render text: %w", err)
	}

	subject := "Your eSIM is ready"
	if len(a.ESIMs) > 1 {
		subject = fmt.Sprintf("Your %d eSIMs are ready", len(a.ESIMs))
	}

	return mailer.Email{
		From:        d.from,
		FromName:    d.fromName,
		To:          []string{a.Email},
		Subject:     subject,
		TextBody:    text.String(),
		HTMLBody:    html.String(),
		Attachments: attachments,
		Category:    "esim-activation",
	}, nil
}
