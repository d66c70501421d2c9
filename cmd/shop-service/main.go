package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/storefront-systems/shop-service-go/internal/cart"
	"github.com/storefront-systems/shop-service-go/internal/catalog"
	"github.com/storefront-systems/shop-service-go/internal/checkout"
	"github.com/storefront-systems/shop-service-go/internal/config"
	"github.com/storefront-systems/shop-service-go/internal/db"
	"github.com/storefront-systems/shop-service-go/internal/events"
	httpapi "github.com/storefront-systems/shop-service-go/internal/http"
	"github.com/storefront-systems/shop-service-go/internal/order"
	"github.com/storefront-systems/shop-service-go/internal/payment"
	"github.com/storefront-systems/shop-service-go/internal/reconcile"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "shop-service").Logger()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	pool := db.MustOpen(ctx, cfg.DBDSN, logger)
	defer pool.Close()

	if err := db.RunMigrations(cfg.DBDSN, logger); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	productRepo := catalog.NewPostgresRepository(pool)
	cartRepo := cart.NewRepository(pool)
	orderRepo := order.NewRepository(pool)

	// RabbitMQ (optional)
	rabbitConn, err := events.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect rabbitmq")
	}
	var pub *events.Publisher
	if rabbitConn != nil {
		defer rabbitConn.Close()
		pub, err = events.NewPublisher(rabbitConn)
		if err != nil {
			logger.Fatal().Err(err).Msg("create publisher")
		}
		defer pub.Close()
	} else {
		logger.Warn().Msg("RABBITMQ_URL not set, order events disabled")
	}

	// Redis (optional)
	var dedup *reconcile.Dedup
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		dedup = reconcile.NewDedup(rdb, 24*time.Hour)
	}

	// Payment gateway
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecret, cfg.GatewayPubKey, cfg.GatewayTimeout)

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := reconcile.NewMetrics(registry)

	// Services
	orderSvc := order.NewService(pool, orderRepo, cartRepo, productRepo, pub, logger)
	checkoutSvc := checkout.NewService(productRepo, gateway, checkout.Config{
		SuccessURL: cfg.CheckoutSuccess,
		CancelURL:  cfg.CheckoutCancel,
		Currency:   cfg.Currency,
	}, logger)
	engine := reconcile.NewEngine(pool, orderRepo, productRepo, gateway, pub, dedup, metrics, cfg.GatewayTimeout, logger)

	// Background sweep
	sweeper := reconcile.NewSweeper(engine, cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	// HTTP
	router := httpapi.NewRouter(
		httpapi.NewOrderHandler(orderSvc),
		httpapi.NewCheckoutHandler(checkoutSvc),
		httpapi.NewPaymentHandler(engine, cfg.Currency),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("shop-service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
}
