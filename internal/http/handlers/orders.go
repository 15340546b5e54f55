package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
)

type orderReader interface {
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
}

type OrderStatusHandler struct {
	Orders orderReader
}

func NewOrderStatusHandler(o orderReader) *OrderStatusHandler { return &OrderStatusHandler{Orders: o} }

type orderStatusJSON struct {
	OrderID     string     `json:"order_id"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	ESIMs       int        `json:"esims"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusMessage is the buyer-facing text for an order status.
func StatusMessage(s orders.Status, orderID string) string {
	switch s {
	case orders.StatusPending:
		return "Waiting for payment confirmation."
	case orders.StatusProcessing:
		return "Payment received. Your eSIM is being prepared."
	case orders.StatusCompleted:
		return "Your eSIM is ready. Installation instructions and the QR code were emailed to you and are available in your account."
	case orders.StatusFailed:
		return "We're sorry, we could not issue your eSIM. Please contact support and quote order " + orderID + "."
	case orders.StatusCancelled:
		return "This order was cancelled."
	case orders.StatusRefunded:
		return "This order was refunded."
	}
	return ""
}

// GET /api/orders/:id/status
// Polled by the confirmation page. Credentials are never part of this view.
func (h *OrderStatusHandler) Status(c *gin.Context) {
	o, err := h.Orders.GetWithItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, orderStatusJSON{
		OrderID:     o.ID,
		Status:      string(o.Status),
		Message:     StatusMessage(o.Status, o.ID),
		ESIMs:       len(o.Items),
		UpdatedAt:   o.UpdatedAt,
		CompletedAt: o.CompletedAt,
	})
}
