package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/auth"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/notify"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

type accountOrders interface {
	ListByUser(ctx context.Context, in orders.ListByUserParams) (orders.ListByUserResult, error)
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
}

type AccountOrdersHandler struct {
	Orders accountOrders
}

func NewAccountOrdersHandler(o accountOrders) *AccountOrdersHandler {
	return &AccountOrdersHandler{Orders: o}
}

type accountOrderSummary struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	TotalCents int       `json:"total_cents"`
	Currency   string    `json:"currency"`
	ESIMs      int       `json:"esims"`
	CreatedAt  time.Time `json:"created_at"`
}

type accountOrderItem struct {
	ID             string `json:"id"`
	Position       int    `json:"position"`
	PlanSlug       string `json:"plan_slug"`
	PlanName       string `json:"plan_name"`
	Region         string `json:"region"`
	DurationDays   int    `json:"duration_days"`
	DataMB         int    `json:"data_mb"`
	UnitPriceCents int    `json:"unit_price_cents"`

	ICCID          string `json:"iccid,omitempty"`
	ActivationCode string `json:"activation_code,omitempty"`
	ManualCode     string `json:"manual_code,omitempty"`
	SMDPAddress    string `json:"smdp_address,omitempty"`
	QRURL          string `json:"qr_url,omitempty"`
}

type accountOrderDetail struct {
	accountOrderSummary
	Message       string             `json:"message"`
	SubtotalCents int                `json:"subtotal_cents"`
	DiscountCents int                `json:"discount_cents"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	Items         []accountOrderItem `json:"items"`
}

// GET /api/account/orders?page=&status=
func (h *AccountOrdersHandler) List(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	res, err := h.Orders.ListByUser(c.Request.Context(), orders.ListByUserParams{
		UserID:    u.ID,
		UserEmail: guestEmail(u),
		Page:      parseInt(c.Query("page"), 1),
		PageSize:  20,
		Status:    c.Query("status"),
	})
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	out := make([]accountOrderSummary, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, summaryOf(it.Order, it.Count))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": res.Total})
}

// GET /api/account/orders/:id
func (h *AccountOrdersHandler) Detail(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}

	d := accountOrderDetail{
		accountOrderSummary: summaryOf(o, len(o.Items)),
		Message:             StatusMessage(o.Status, o.ID),
		SubtotalCents:       o.SubtotalCents,
		DiscountCents:       o.DiscountCents,
		CompletedAt:         o.CompletedAt,
		Items:               make([]accountOrderItem, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		item := accountOrderItem{
			ID:             it.ID,
			Position:       it.Position,
			PlanSlug:       it.ProductSlug,
			PlanName:       it.ProductName,
			Region:         it.Region,
			DurationDays:   it.DurationDays,
			DataMB:         it.DataMB,
			UnitPriceCents: it.UnitPriceCents,
		}
		if p, ok := it.Provisioning(); ok {
			item.ICCID = p.ICCID
			item.ActivationCode = p.ActivationCode
			item.ManualCode = p.ManualCode
			item.SMDPAddress = p.SMDPAddress
			item.QRURL = "/api/account/orders/" + o.ID + "/items/" + it.ID + "/qr.png"
		}
		d.Items = append(d.Items, item)
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/account/orders/:id/items/:itemID/qr.png
// The image is rendered from the stored activation code on every request.
func (h *AccountOrdersHandler) QR(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	itemID := c.Param("itemID")
	for _, it := range o.Items {
		if it.ID != itemID {
			continue
		}
		p, ok := it.Provisioning()
		if !ok {
			middleware.Fail(c, apperr.NotFoundErr("This eSIM has not been issued yet."))
			return
		}
		png, err := notify.PNG(p.ActivationCode, parseInt(c.Query("size"), notify.DefaultQRSize))
		if err != nil {
			middleware.Fail(c, apperr.Wrap(err))
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", png)
		return
	}
	middleware.Fail(c, apperr.NotFoundErr("Item not found."))
}

// load fetches the order and hides orders the user may not see behind 404.
func (h *AccountOrdersHandler) load(c *gin.Context) (orders.Order, bool) {
	u, _ := middleware.CurrentUser(c)
	o, err := h.Orders.GetWithItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return orders.Order{}, false
	}
	if !visibleTo(o, u) {
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
		return orders.Order{}, false
	}
	return o, true
}

// visibleTo matches the ListByUser filter: own orders plus guest orders
// placed with the account's email once that email is verified.
func visibleTo(o orders.Order, u auth.User) bool {
	if o.OwnedBy(u.ID) {
		return true
	}
	email := guestEmail(u)
	return o.UserID == nil && email != "" && strings.EqualFold(o.Email, email)
}

// guestEmail is the address guest orders may be matched on. Unverified
// accounts get none: anyone can sign up with someone else's address.
func guestEmail(u auth.User) string {
	if !u.EmailVerified() {
		return ""
	}
	return u.Email
}

func summaryOf(o orders.Order, count int) accountOrderSummary {
	return accountOrderSummary{
		ID:         o.ID,
		Status:     string(o.Status),
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		ESIMs:      count,
		CreatedAt:  o.CreatedAt,
	}
}
