package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/handlers"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/handlers/admin"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

type RouterDeps struct {
	Logger        *slog.Logger
	Sessions      middleware.SessionLookup
	SessionCookie string
	SecureCookies bool

	Webhooks *handlers.WebhookHandler
	Catalog  *handlers.CatalogHandler
	Cart     *handlers.CartHandler
	Checkout *handlers.CheckoutHandler
	Status   *handlers.OrderStatusHandler
	Account  *handlers.AccountOrdersHandler
	Auth     *handlers.AuthHandler
	Admin    *admin.OrdersHandler
	Health   *handlers.HealthHandler
}

// NewRouter wires the JSON API. The payment webhook sits outside the
// session middleware: it is authenticated by its signature alone.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.ErrorHandler(d.Logger),
		middleware.Recovery(d.Logger),
	)
	r.NoRoute(func(c *gin.Context) {
		middleware.Fail(c, apperr.NotFoundErr("Not found."))
	})

	r.GET("/healthz", d.Health.Check)
	r.POST("/webhooks/payments", d.Webhooks.Handle)

	api := r.Group("/api", middleware.SessionMiddleware(middleware.SessionCfg{
		Sessions:   d.Sessions,
		CookieName: d.SessionCookie,
		Secure:     d.SecureCookies,
		Logger:     d.Logger,
	}))

	api.GET("/plans", d.Catalog.List)
	api.GET("/plans/:slug", d.Catalog.Get)

	api.GET("/cart", d.Cart.Get)
	api.POST("/cart/items", d.Cart.Add)
	api.PUT("/cart/items/:slug", d.Cart.Update)
	api.DELETE("/cart/items/:slug", d.Cart.Remove)

	api.POST("/checkout", d.Checkout.Create)
	api.GET("/orders/:id/status", d.Status.Status)

	api.POST("/auth/signup", d.Auth.Signup)
	api.POST("/auth/login", d.Auth.Login)
	api.POST("/auth/logout", d.Auth.Logout)
	api.POST("/auth/verify-email", d.Auth.VerifyEmail)
	api.POST("/auth/verify-email/resend", middleware.RequireAuth(), d.Auth.ResendVerification)

	account := api.Group("/account", middleware.RequireAuth())
	account.GET("/orders", d.Account.List)
	account.GET("/orders/:id", d.Account.Detail)
	account.GET("/orders/:id/items/:itemID/qr.png", d.Account.QR)

	adm := api.Group("/admin", middleware.RequireAdmin())
	adm.GET("/orders", d.Admin.List)
	adm.GET("/orders/:id", d.Admin.Detail)
	adm.POST("/orders/:id/transition", d.Admin.Transition)

	return r
}
