package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/cache"
	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/config"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"github.com/cimillas/checkout-ledger/services/api/internal/logging"
	"github.com/cimillas/checkout-ledger/services/api/internal/storage/postgres"
	transporthttp "github.com/cimillas/checkout-ledger/services/api/internal/transport/http"
	"github.com/cimillas/checkout-ledger/services/api/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.EnvFile != "" {
		logger.Info("loaded env file", zap.String("path", cfg.EnvFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", zap.Strings("names", applied))
	}

	health := map[string]transporthttp.HealthCheck{
		"postgres": pool.Ping,
	}

	var (
		balances app.BalanceCache
		prices   *cache.PriceCache
	)
	if cfg.RedisAddr != "" {
		rdb := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(startupCtx).Err(); err != nil {
			logger.Warn("redis unavailable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		balances = cache.NewBalanceCache(rdb, cfg.BalanceCacheTTL)
		prices = cache.NewPriceCache(rdb, cfg.PriceMaxAge)
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Warn("REDIS_ADDR not set, balance cache and market prices disabled")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic, cfg.KafkaLedgerTopic)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Warn("close kafka publisher", zap.Error(err))
			}
		}()
		publisher = kp
	} else {
		logger.Warn("KAFKA_BROKERS not set, domain events are dropped")
	}

	clk := clock.NewSystem()
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithPublisher(publisher),
		app.WithPaymentWindows(app.PaymentWindows{
			Default:  cfg.PaymentWindowDefault,
			ByMethod: cfg.PaymentWindows,
		}),
	}

	orderRepo := postgres.NewOrderRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	holdingRepo := postgres.NewHoldingRepository(pool)

	checkoutSvc := app.NewCheckoutService(orderRepo, clk, opts...)
	paymentSvc := app.NewPaymentService(orderRepo, clk, opts...)
	reconcileSvc := app.NewReconcileService(orderRepo, clk, opts...)
	ledgerSvc := app.NewLedgerService(ledgerRepo, balances, clk, opts...)
	auditSvc := app.NewLedgerAuditService(ledgerRepo)
	sweeper := app.NewExpirySweeper(orderRepo, clk, cfg.ExpirySweepInterval, cfg.ExpirySweepBatch, opts...)

	routerCfg := transporthttp.RouterConfig{
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		Health:      health,
		Checkout:    checkoutSvc,
		Payments:    paymentSvc,
		Guests:      reconcileSvc,
		Ledger:      ledgerSvc,
		Audit:       auditSvc,
	}
	if cfg.ConfirmRateLimit > 0 {
		routerCfg.ConfirmLimiter = rate.NewLimiter(rate.Limit(cfg.ConfirmRateLimit), cfg.ConfirmRateBurst)
	}
	if prices != nil {
		routerCfg.Holdings = app.NewHoldingService(holdingRepo, prices, clk, opts...)
		routerCfg.Prices = prices
	} else {
		routerCfg.Holdings = app.NewHoldingService(holdingRepo, nil, clk, opts...)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           transporthttp.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
