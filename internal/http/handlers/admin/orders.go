package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/validation"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/provisioning"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

type orderQueries interface {
	AdminList(ctx context.Context, in orders.AdminListParams) (orders.AdminListResult, error)
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
	Events(ctx context.Context, orderID string) ([]orders.OrderEvent, error)
}

type transitioner interface {
	Transition(ctx context.Context, in orders.TransitionInput) (orders.Status, error)
}

type sagaRunner interface {
	Handle(ctx context.Context, c payments.Confirmation) (provisioning.Result, error)
}

type OrdersHandler struct {
	Logger  *slog.Logger
	Orders  orderQueries
	Actions transitioner
	Saga    sagaRunner
}

const pageSize = 30

type orderRow struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	UserID        *string   `json:"user_id,omitempty"`
	Status        string    `json:"status"`
	TotalCents    int       `json:"total_cents"`
	Currency      string    `json:"currency"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func rowOf(o orders.Order) orderRow {
	return orderRow{
		ID:            o.ID,
		Email:         o.Email,
		UserID:        o.UserID,
		Status:        string(o.Status),
		TotalCents:    o.TotalCents,
		Currency:      o.Currency,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
	}
}

// GET /api/admin/orders?q=&status=&page=
func (h *OrdersHandler) List(c *gin.Context) {
	page := parseInt(c.Query("page"), 1)
	res, err := h.Orders.AdminList(c.Request.Context(), orders.AdminListParams{
		Q: c.Query("q"), Status: c.Query("status"), Page: page, PageSize: pageSize,
	})
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	out := make([]orderRow, 0, len(res.Items))
	for _, o := range res.Items {
		out = append(out, rowOf(o))
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":      out,
		"total":       res.Total,
		"page":        page,
		"total_pages": pagesFromTotal(res.Total, pageSize),
	})
}

type itemRow struct {
	ID             string     `json:"id"`
	Position       int        `json:"position"`
	PlanSlug       string     `json:"plan_slug"`
	PlanName       string     `json:"plan_name"`
	UnitPriceCents int        `json:"unit_price_cents"`
	ProviderPlanID *string    `json:"provider_plan_id,omitempty"`
	ESIMUID        *string    `json:"esim_uid,omitempty"`
	ICCID          *string    `json:"iccid,omitempty"`
	Provisioned    bool       `json:"provisioned"`
	ProvisionedAt  *time.Time `json:"provisioned_at,omitempty"`
}

type eventRow struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GET /api/admin/orders/:id
// Activation codes are not exposed here; support sees whether an item was
// issued and its provider identifiers.
func (h *OrdersHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.Orders.GetWithItems(ctx, c.Param("id"))
	if errors.Is(err, orders.ErrOrderNotFound) {
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
		return
	}
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	ev, err := h.Orders.Events(ctx, o.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	items := make([]itemRow, 0, len(o.Items))
	for _, it := range o.Items {
		_, issued := it.Provisioning()
		items = append(items, itemRow{
			ID:             it.ID,
			Position:       it.Position,
			PlanSlug:       it.ProductSlug,
			PlanName:       it.ProductName,
			UnitPriceCents: it.UnitPriceCents,
			ProviderPlanID: it.ProviderPlanID,
			ESIMUID:        it.ESIMUID,
			ICCID:          it.ICCID,
			Provisioned:    issued,
			ProvisionedAt:  it.ProvisionedAt,
		})
	}
	events := make([]eventRow, 0, len(ev))
	for _, e := range ev {
		events = append(events, eventRow{
			Actor: e.Actor, Action: e.Action, From: string(e.FromStatus), To: string(e.ToStatus),
			Note: e.Note, CreatedAt: e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"order":  rowOf(o),
		"items":  items,
		"events": events,
	})
}

type transitionInput struct {
	Action string `json:"action" binding:"required,oneof=cancel refund retry"`
	Note   string `json:"note" binding:"max=255"`
}

// POST /api/admin/orders/:id/transition
// A successful retry runs the provisioning saga again right away.
func (h *OrdersHandler) Transition(c *gin.Context) {
	var in transitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}
	u, _ := middleware.CurrentUser(c)
	ctx := c.Request.Context()
	id := c.Param("id")

	to, err := h.Actions.Transition(ctx, orders.TransitionInput{
		OrderID: id, ActorUserID: u.ID, Action: in.Action, Note: in.Note,
	})
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
		return
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrNotActionable):
		middleware.Fail(c, apperr.ConflictErr("This action is not allowed for the order's current status.").WithCause(err))
		return
	case err != nil:
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	resp := gin.H{"order_id": id, "status": to}
	if in.Action == orders.ActionRetry && h.Saga != nil {
		res, err := h.Saga.Handle(ctx, retryConfirmation(id))
		if err != nil {
			h.Logger.ErrorContext(ctx, "admin_retry_failed", slog.String("order_id", id), slog.String("error", err.Error()))
			middleware.Fail(c, apperr.Wrap(err))
			return
		}
		resp["status"] = outcomeStatus(res, to)
		resp["saga"] = gin.H{"outcome": res.Outcome, "state": res.State, "reason": res.Reason}
	}
	c.JSON(http.StatusOK, resp)
}

// retryConfirmation stands in for the processor's event: the order was
// already paid when it first failed.
func retryConfirmation(orderID string) payments.Confirmation {
	return payments.Confirmation{
		EventID:       "admin-retry:" + uuid.NewString(),
		EventType:     payments.EventCheckoutCompleted,
		OrderID:       orderID,
		PaymentStatus: payments.PaymentStatusPaid,
	}
}

func outcomeStatus(res provisioning.Result, fallback orders.Status) orders.Status {
	switch res.Outcome {
	case provisioning.OutcomeCompleted:
		return orders.StatusCompleted
	case provisioning.OutcomeFailed:
		return orders.StatusFailed
	}
	return fallback
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func pagesFromTotal(total int64, size int) int {
	if total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}
