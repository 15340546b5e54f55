package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
)

type planReader interface {
	GetBySlug(ctx context.Context, slug string) (catalog.Plan, error)
	ListActive(ctx context.Context, limit, offset int) ([]catalog.Plan, error)
}

type CatalogHandler struct {
	Plans planReader
}

func NewCatalogHandler(p planReader) *CatalogHandler { return &CatalogHandler{Plans: p} }

type planJSON struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Region       string `json:"region"`
	DurationDays int    `json:"duration_days"`
	DataMB       int    `json:"data_mb"`
	PriceCents   int    `json:"price_cents"`
	Currency     string `json:"currency"`
}

// toPlanJSON leaves out the provider mapping, which is internal.
func toPlanJSON(p catalog.Plan) planJSON {
	return planJSON{
		Slug:         p.Slug,
		Name:         p.Name,
		Region:       p.Region,
		DurationDays: p.DurationDays,
		DataMB:       p.DataMB,
		PriceCents:   p.PriceCents,
		Currency:     p.Currency,
	}
}

// GET /api/plans?limit=&offset=
func (h *CatalogHandler) List(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := parseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	list, err := h.Plans.ListActive(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	out := make([]planJSON, 0, len(list))
	for _, p := range list {
		out = append(out, toPlanJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out, "limit": limit, "offset": offset})
}

// GET /api/plans/:slug
func (h *CatalogHandler) Get(c *gin.Context) {
	p, err := h.Plans.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, toPlanJSON(p))
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
