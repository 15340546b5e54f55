package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/thespeedingatom/soviario-app-sub000/internal/config"
	"github.com/thespeedingatom/soviario-app-sub000/internal/database"
	apphttp "github.com/thespeedingatom/soviario-app-sub000/internal/http"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/cartcookie"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/handlers"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/handlers/admin"
	"github.com/thespeedingatom/soviario-app-sub000/internal/mailer"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/auth"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/cart"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/esim"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/notify"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/provisioning"
	"github.com/thespeedingatom/soviario-app-sub000/internal/storage"
	"github.com/thespeedingatom/soviario-app-sub000/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_exit", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	db, err := database.Open(cfg.DB.DSN, database.DefaultOptions())
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.DB.AutoMigrate {
		if err := database.MigrateUp(sqlDB); err != nil {
			return err
		}
		logger.Info("migrations_applied")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := buildRouter(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("http_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func buildRouter(ctx context.Context, cfg config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client) (*gin.Engine, error) {
	plans := catalog.NewCachedCatalog(catalog.NewGormRepo(db), rdb, cfg.Redis.CatalogTTL, logger)

	store, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	logger.Info("storage_ready", slog.String("driver", store.Driver))

	mail, err := mailer.FromConfig(cfg.Mail)
	if err != nil {
		return nil, err
	}

	var provider payments.Provider
	switch cfg.Payments.Provider {
	case "mock":
		provider = payments.NewMockProvider(cfg.HTTP.BaseURL, cfg.Payments.WebhookSecret, cfg.Payments.WebhookTolerance)
	default:
		provider = payments.NewHostedProvider(payments.HostedConfig{
			BaseURL:          cfg.Payments.APIURL,
			APIKey:           cfg.Payments.APIKey,
			WebhookSecret:    cfg.Payments.WebhookSecret,
			WebhookTolerance: cfg.Payments.WebhookTolerance,
		})
	}

	orderRepo := orders.NewRepo(db)
	orderSvc := orders.NewService(orderRepo, plans)
	paySvc := payments.NewService(orderRepo, provider,
		orDefault(cfg.Payments.SuccessURL, cfg.HTTP.BaseURL+"/orders/{ORDER_ID}"),
		orDefault(cfg.Payments.CancelURL, cfg.HTTP.BaseURL+"/cart"))

	notifier := notify.NewDispatcher(mail, notify.Options{
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
		BaseURL:  cfg.HTTP.BaseURL,
	}, logger)

	saga := provisioning.NewOrchestrator(provisioning.Deps{
		Store: orderRepo,
		Plans: catalog.NewResolver(plans),
		Provisioner: esim.NewRetryingProvisioner(
			esim.NewClient(cfg.ESIM.APIURL, cfg.ESIM.APIKey, cfg.ESIM.Timeout),
			esim.RetryPolicy{Attempts: cfg.ESIM.RetryAttempts, Base: cfg.ESIM.RetryBase, Max: cfg.ESIM.RetryMax},
			logger,
		),
		Notifier:   notifier,
		Archiver:   esim.NewDiagnosticsArchiver(store.Storage),
		Logger:     logger,
		StaleAfter: cfg.ESIM.StaleAfter,
	})

	cartSvc := cart.NewService(cart.NewStore(rdb, cfg.Redis.CartTTL), plans)
	cookie := cartcookie.New([]byte(cfg.Session.Secret), cfg.Session.CartCookieName, cfg.Session.Secure, cfg.Redis.CartTTL)
	authSvc := auth.NewService(db, cfg.Session.TTL)

	return apphttp.NewRouter(apphttp.RouterDeps{
		Logger:        logger,
		Sessions:      authSvc,
		SessionCookie: cfg.Session.CookieName,
		SecureCookies: cfg.Session.Secure,

		Webhooks: handlers.NewWebhookHandler(logger, provider, payments.NewEventLog(db, logger), saga),
		Catalog:  handlers.NewCatalogHandler(plans),
		Cart:     handlers.NewCartHandler(cartSvc, cookie),
		Checkout: &handlers.CheckoutHandler{
			Logger:   logger,
			Orders:   orderSvc,
			Payments: paySvc,
			Cart:     cartSvc,
			Cookie:   cookie,
			BaseURL:  cfg.HTTP.BaseURL,
		},
		Status:  handlers.NewOrderStatusHandler(orderRepo),
		Account: handlers.NewAccountOrdersHandler(orderRepo),
		Auth:    handlers.NewAuthHandler(logger, authSvc, notifier, cfg.Session.CookieName, cfg.Session.Secure),
		Admin: &admin.OrdersHandler{
			Logger:  logger,
			Orders:  orderRepo,
			Actions: orders.NewAdminService(db),
			Saga:    saga,
		},
		Health: &handlers.HealthHandler{Checks: map[string]handlers.Pinger{
			"db": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}},
	}), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
