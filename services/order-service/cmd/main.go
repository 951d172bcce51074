package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bakehouse-system/services/order-service/internal/config"
	"bakehouse-system/services/order-service/internal/domain"
	"bakehouse-system/services/order-service/internal/handlers"
	"bakehouse-system/services/order-service/internal/middleware"
	"bakehouse-system/services/order-service/internal/payments"
	"bakehouse-system/services/order-service/internal/repository"
	"bakehouse-system/services/order-service/internal/stock"
	"bakehouse-system/shared/kafka"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "order-service").Logger()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres")
	}
	db.SetMaxOpenConns(10)

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.Migrate(migrateCtx, db); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}
	cancelMigrate()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	kafkaProd, err := kafka.NewProducer(cfg.BrokerList(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("starting Kafka producer")
	}

	orderRepo := repository.NewPostgresOrderRepo(db, log)
	catalogRepo := repository.NewCachedCatalogRepo(repository.NewPostgresCatalogRepo(db), rdb, cfg.CacheTTL)
	webhookLog := repository.NewPostgresWebhookLog(db)

	gateway := payments.NewClient(payments.ClientConfig{
		BaseURL:         cfg.GatewayBaseURL,
		AccessToken:     cfg.GatewayAccessToken,
		NotificationURL: cfg.NotificationURL,
		SuccessURL:      cfg.CheckoutSuccessURL,
		FailureURL:      cfg.CheckoutFailureURL,
		PendingURL:      cfg.CheckoutPendingURL,
		Currency:        cfg.Currency,
		Timeout:         cfg.GatewayTimeout,
	})

	reconciler := payments.NewReconciler(gateway, orderRepo, webhookLog, kafkaProd, log, cfg.GatewayTimeout)
	reconciler.Start(cfg.ReconcilerWorkers)

	validator := stock.NewValidator(catalogRepo, catalogRepo)
	checkoutHandler := handlers.NewCheckoutHandler(validator, catalogRepo, orderRepo, gateway, log)
	webhookHandler := handlers.NewWebhookHandler(reconciler, cfg.WebhookSecret, log)

	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rdb, log, cfg.RateLimit, cfg.RateLimitSpan))
		r.Post("/checkout", checkoutHandler.HandleCheckout)
		r.Get("/orders/{reference}", checkoutHandler.HandleGetOrder)
	})
	router.Post("/webhooks/payments", webhookHandler.HandlePaymentWebhook)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go startStaleOrderSweeper(orderRepo, kafkaProd, log, cfg.PendingOrderTTL, cfg.SweepInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting order service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Let in-flight reconciliations finish before the producer closes.
	reconciler.Close()
	if err := kafkaProd.Close(); err != nil {
		log.Error().Err(err).Msg("closing Kafka producer")
	}
	log.Info().Msg("server exited")
}

// startStaleOrderSweeper cancels orders that stayed PENDING past the
// payment window. A PAID order is never touched: the cancellation is
// conditional on the status still being PENDING.
func startStaleOrderSweeper(repo domain.OrderRepository, kafkaProd *kafka.Producer, log zerolog.Logger, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		refs, err := repo.CancelStalePending(ctx, ttl, 100)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("sweeping stale pending orders")
			continue
		}
		for _, ref := range refs {
			log.Info().Str("reference", ref).Msg("cancelled stale pending order")
			kafkaProd.Publish("order-cancelled", map[string]interface{}{
				"reference": ref,
				"reason":    "payment_window_expired",
			})
		}
	}
}
