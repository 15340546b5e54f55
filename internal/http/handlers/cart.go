package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/cartcookie"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/validation"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/cart"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

type CartHandler struct {
	Cart   *cart.Service
	Cookie *cartcookie.Codec
}

func NewCartHandler(svc *cart.Service, cookie *cartcookie.Codec) *CartHandler {
	return &CartHandler{Cart: svc, Cookie: cookie}
}

// GET /api/cart
func (h *CartHandler) Get(c *gin.Context) {
	id, _ := h.Cookie.GetCartID(c)
	v, err := h.Cart.View(c.Request.Context(), id)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, v)
}

type addItemInput struct {
	Slug     string `json:"slug" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=10"`
}

// POST /api/cart/items
func (h *CartHandler) Add(c *gin.Context) {
	var in addItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}

	id := h.Cookie.EnsureCartID(c)
	if err := h.Cart.Add(c.Request.Context(), id, in.Slug, in.Quantity); err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	h.respond(c, id)
}

type setQuantityInput struct {
	Quantity *int `json:"quantity" binding:"required,min=0,max=10"`
}

// PUT /api/cart/items/:slug
func (h *CartHandler) Update(c *gin.Context) {
	var in setQuantityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}
	id, ok := h.Cookie.GetCartID(c)
	if !ok {
		middleware.Fail(c, apperr.NotFoundErr("Cart not found."))
		return
	}
	if err := h.Cart.SetQuantity(c.Request.Context(), id, c.Param("slug"), *in.Quantity); err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	h.respond(c, id)
}

// DELETE /api/cart/items/:slug
func (h *CartHandler) Remove(c *gin.Context) {
	id, ok := h.Cookie.GetCartID(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.Cart.Remove(c.Request.Context(), id, c.Param("slug")); err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	h.respond(c, id)
}

func (h *CartHandler) respond(c *gin.Context, cartID string) {
	v, err := h.Cart.View(c.Request.Context(), cartID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, v)
}
