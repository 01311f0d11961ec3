package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cache"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/storefront-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/outbox"
)

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("storefront stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, cfg.DatabaseDSN, logger); err != nil {
			return err
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	counts, closeCache := newCartCountCache(ctx, cfg, logger)
	defer closeCache()

	inventoryRepo := inventory.NewPostgresRepository(pool)
	cartRepo := cart.NewPostgresRepository(pool)
	orderRepo := order.NewPostgresRepository(pool, time.Now)
	cartService := cart.NewService(cartRepo, counts, logger.Named("cart"))

	// Events are always recorded; without a broker they wait in the outbox.
	writer := outbox.NewWriter(pool, cfg.ServiceName)
	coordinator := checkout.NewCoordinator(pool,
		checkout.PostgresBinder(inventoryRepo, cartRepo, orderRepo, writer),
		checkout.Config{
			LockTimeout: cfg.CheckoutLockTimeout,
			Logger:      logger.Named("checkout"),
			Metrics:     m,
			OnCommitted: cartService.Invalidate,
		},
	)

	relayDone, err := startRelay(ctx, cfg, logger.Named("outbox"), m)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Service:          cfg.ServiceName,
		Logger:           logger,
		Metrics:          m,
		RequestTimeout:   cfg.RequestTimeout,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		Catalog:          inventoryRepo,
		Carts:            cartService,
		Orders:           orderRepo,
		Checkout:         coordinator,
		DB:               pool,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	<-relayDone
	return nil
}

func newCartCountCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.CartCountCache, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("cart count cache disabled")
		return cache.Nop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, cart counts will fall back to the database", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return cache.NewRedisCache(client, cfg.CartCacheTTL), func() { _ = client.Close() }
}

// startRelay starts the outbox relay for the configured broker. The returned
// channel closes once the relay and its broker connections have shut down.
func startRelay(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (<-chan struct{}, error) {
	done := make(chan struct{})
	if cfg.EventsBroker == config.BrokerNone {
		logger.Info("event publishing disabled")
		close(done)
		return done, nil
	}

	var (
		pub     events.Publisher
		cleanup = func() {}
	)
	switch cfg.EventsBroker {
	case config.BrokerRabbitMQ:
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			return nil, err
		}
		p, err := events.NewRabbitPublisher(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		pub, cleanup = p, func() { _ = conn.Close() }
	case config.BrokerKafka:
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		pub = p
	}

	sqlDB, err := db.OpenSQL(ctx, cfg.DatabaseDSN)
	if err != nil {
		_ = pub.Close()
		cleanup()
		return nil, err
	}

	wake, closeListener, err := outbox.Listen(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Warn("outbox listener unavailable, polling only", zap.Error(err))
		wake, closeListener = nil, func() error { return nil }
	}

	relay := outbox.NewRelay(outbox.NewSQLStore(sqlDB), pub, outbox.RelayConfig{
		Interval:  cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
		Wake:      wake,
		Logger:    logger,
		Metrics:   m,
	})

	go func() {
		defer close(done)
		relay.Run(ctx)
		_ = closeListener()
		if err := pub.Close(); err != nil {
			logger.Warn("publisher close error", zap.Error(err))
		}
		cleanup()
		_ = sqlDB.Close()
	}()
	return done, nil
}
