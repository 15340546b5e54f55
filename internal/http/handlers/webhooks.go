package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/provisioning"
)

const maxWebhookBody = 1 << 20

type eventLog interface {
	Record(ctx context.Context, provider string, ev payments.WebhookEvent, raw []byte) (payments.ProviderEvent, bool, error)
	Finish(ctx context.Context, id string, procErr error) error
}

type sagaRunner interface {
	Handle(ctx context.Context, c payments.Confirmation) (provisioning.Result, error)
}

type WebhookHandler struct {
	Logger   *slog.Logger
	Provider payments.Provider
	Events   eventLog
	Saga     sagaRunner
}

func NewWebhookHandler(logger *slog.Logger, p payments.Provider, events eventLog, saga sagaRunner) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Provider: p, Events: events, Saga: saga}
}

// Handle serves POST /webhooks/payments. It answers 400 only when the
// signature or payload is bad; every verified event is acknowledged with 200
// whatever the saga outcome.
func (h *WebhookHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.Logger.With(slog.String("request_id", middleware.GetRequestID(c)))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	ev, err := h.Provider.VerifyAndParseWebhook(c.Request.Header, body)
	if err != nil {
		log.WarnContext(ctx, "webhook_rejected", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid signature or payload"})
		return
	}
	log = log.With(slog.String("event_id", ev.EventID), slog.String("event_type", ev.Type))

	rec, seen, err := h.Events.Record(ctx, h.Provider.Name(), ev, body)
	switch {
	case err != nil:
		// Without the event log the saga's own status checks still keep
		// redelivery safe.
		log.ErrorContext(ctx, "webhook_event_log_failed", slog.String("error", err.Error()))
	case seen && rec.Processed():
		c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
		return
	}

	conf, err := ev.Confirmation()
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedEvent) {
			log.InfoContext(ctx, "webhook_ignored")
		} else {
			log.WarnContext(ctx, "webhook_unprocessable", slog.String("error", err.Error()))
		}
		h.finish(ctx, log, rec, nil)
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}

	res, err := h.Saga.Handle(ctx, conf)
	if err != nil {
		log.ErrorContext(ctx, "webhook_saga_error", slog.String("order_id", conf.OrderID), slog.String("error", err.Error()))
	}
	h.finish(ctx, log, rec, err)

	c.JSON(http.StatusOK, gin.H{"ok": true, "outcome": res.Outcome})
}

func (h *WebhookHandler) finish(ctx context.Context, log *slog.Logger, rec payments.ProviderEvent, procErr error) {
	if rec.ID == "" {
		return
	}
	if err := h.Events.Finish(ctx, rec.ID, procErr); err != nil {
		log.WarnContext(ctx, "webhook_event_finish_failed", slog.String("error", err.Error()))
	}
}
