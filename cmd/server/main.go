package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	"github.com/yourorg/psp-multisafepay/internal/adapter/circuitbreaker"
	"github.com/yourorg/psp-multisafepay/internal/adapter/multisafepay"
	"github.com/yourorg/psp-multisafepay/internal/auditlog"
	"github.com/yourorg/psp-multisafepay/internal/basket"
	"github.com/yourorg/psp-multisafepay/internal/config"
	"github.com/yourorg/psp-multisafepay/internal/monitor"
	"github.com/yourorg/psp-multisafepay/internal/orchestrator"
	"github.com/yourorg/psp-multisafepay/internal/orderbuilder"
	"github.com/yourorg/psp-multisafepay/internal/policy"
	"github.com/yourorg/psp-multisafepay/internal/reporting"
	"github.com/yourorg/psp-multisafepay/internal/settings"
	"github.com/yourorg/psp-multisafepay/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "psp-multisafepay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("PSP_CONFIG_FILE"))
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := telemetry.InitTracing(serviceName, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := cfg.DeploymentEnvironment()
	logger.Info("Starting server", zap.String("environment", env.String()), zap.Int("port", cfg.HTTP.Port))

	var (
		store  settings.Store
		sinks  auditlog.MultiSink
		lister auditlog.Lister
	)

	if cfg.Postgres.DSN != "" {
		pool, err := newPool(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgStore := settings.NewPostgresStore(pool)
		if err := pgStore.InitSchema(ctx); err != nil {
			return err
		}
		pgSink := auditlog.NewPostgresSink(pool)
		if err := pgSink.InitSchema(ctx); err != nil {
			return err
		}
		store, lister = pgStore, pgSink
		sinks = append(sinks, pgSink)
	} else {
		logger.Warn("No postgres DSN configured, using in-memory settings and audit log")
		memStore := settings.NewInMemoryStore()
		memStore.AddItem(cfg.Provider.ID, settings.ProviderEntityType, map[string]string{
			settings.APIKeyLiveProperty: cfg.Provider.APIKeyLive,
			settings.APIKeyTestProperty: cfg.Provider.APIKeyTest,
		})
		memSink := auditlog.NewMemorySink()
		store, lister = memStore, memSink
		sinks = append(sinks, memSink)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, settings cache will fall through", zap.Error(err))
		}
		store = settings.NewCachedStore(store, rdb, cfg.Redis.SettingsTTL, logger)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		writer := auditlog.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		defer writer.Close()
		sinks = append(sinks, auditlog.NewKafkaSink(writer))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var factory adapter.Factory = multisafepay.NewFactory(&http.Client{Timeout: cfg.Gateway.Timeout})
	if cfg.Gateway.BreakerEnabled {
		cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			FailureThreshold: cfg.Gateway.FailureThreshold,
			ResetTimeout:     cfg.Gateway.ResetTimeout,
		})
		factory = circuitbreaker.GuardFactory(factory, cb)
	}

	settle, err := policy.NewExpressionPolicy(cfg.Gateway.SettlementExpression)
	if err != nil {
		return err
	}

	mon, err := monitor.NewPaymentRequestMonitor()
	if err != nil {
		return err
	}

	orc := orchestrator.NewOrchestrator(
		settings.NewResolver(store, nil, env),
		orderbuilder.NewBuilder(basket.LinePricer{}, registry),
		factory,
		auditlog.NewRecorder(sinks, logger),
		settle,
		env,
		logger,
		registry,
	)

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(&server{
		orc:      orc,
		monitor:  mon,
		provider: cfg.ProviderSettings(),
		reporter: reporting.NewRetrospectiveReporter(lister),
		logger:   logger,
		gatherer: registry,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to run server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}
