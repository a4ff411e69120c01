package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/httpapi"
	"github.com/MrEthical07/couponauth/internal/logging"
	"github.com/MrEthical07/couponauth/internal/migrations"
	otelexport "github.com/MrEthical07/couponauth/metrics/export/otel"
	"github.com/MrEthical07/couponauth/metrics/export/prometheus"
	"github.com/MrEthical07/couponauth/refresh"
)

// Runtime owns the Engine, its dependencies and the HTTP server.
type Runtime struct {
	cfg        Config
	log        logging.Logger
	engine     *couponauth.Engine
	httpServer *http.Server
	closers    []func() error
}

// NewRuntime connects every dependency and builds the server. On error the
// dependencies opened so far are closed.
func NewRuntime(ctx context.Context, cfg Config, log logging.Logger) (_ *Runtime, err error) {
	rt := &Runtime{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			rt.closeAll()
		}
	}()

	log.Info(ctx, "bootstrapping couponauth", "http_addr", cfg.HTTPAddr, "dev", cfg.Dev, "refresh_backend", cfg.RefreshBackend)

	rdb, err := rt.connectRedis(ctx)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = rt.connectPostgres(ctx)
		if err != nil {
			return nil, err
		}
	}

	engineCfg, ephemeral, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	if ephemeral {
		log.Warn(ctx, "using an ephemeral JWT secret; tokens will not survive a restart")
	}

	b := couponauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(log)

	if db != nil {
		b = b.WithAccounts(accounts.NewPostgresStore(db))
	} else {
		log.Warn(ctx, "using in-memory account store")
		b = b.WithAccounts(accounts.NewMemoryStore())
	}
	if cfg.RefreshBackend == RefreshBackendPostgres {
		store := refresh.NewPostgresStore(db, engineCfg.Refresh.TTL, nil)
		b = b.WithRefreshStore(store)
		rt.closers = append(rt.closers, startRefreshSweeper(store, cfg.RefreshSweepInterval, log.With("module", "refresh_sweeper")))
	}

	sink, err := rt.auditSink()
	if err != nil {
		return nil, err
	}
	b = b.WithAuditSink(sink)

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine

	report := engine.SecurityReport()
	log.Info(ctx, "security configuration",
		"access_ttl", report.AccessTTL.String(),
		"refresh_ttl", report.RefreshTTL.String(),
		"argon2_memory_kb", report.Argon2.Memory,
		"argon2_time", report.Argon2.Time,
		"hash_workers", report.Argon2.Workers,
		"operation_timeout", report.OperationTimeout.String(),
		"audit", report.AuditEnabled,
		"metrics", report.MetricsEnabled,
	)
	for _, w := range report.Warnings {
		log.Warn(ctx, "security warning", "detail", w)
	}

	opts := httpapi.Options{
		Service:           engine,
		Logger:            log,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		CORSOrigins:       cfg.CORSOrigins,
		AllowedHosts:      cfg.AllowedHosts,
		HSTS:              cfg.HSTS,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = prometheus.NewPrometheusExporter(engine).Handler()

		// A no-op provider unless the process installs an SDK MeterProvider.
		exporter, err := otelexport.NewOTelExporter(otel.Meter("couponauth"), engine)
		if err != nil {
			return nil, fmt.Errorf("otel exporter: %w", err)
		}
		rt.closers = append(rt.closers, exporter.Close)
	}

	rt.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return rt, nil
}

func (rt *Runtime) connectRedis(ctx context.Context) (*redis.Client, error) {
	var opts *redis.Options
	if rt.cfg.Dev && rt.cfg.RedisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		rt.closers = append(rt.closers, func() error { mr.Close(); return nil })
		rt.log.Warn(ctx, "using embedded redis", "addr", mr.Addr())
		opts = &redis.Options{Addr: mr.Addr()}
	} else {
		parsed, err := redis.ParseURL(rt.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	rt.closers = append(rt.closers, client.Close)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func (rt *Runtime) connectPostgres(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", rt.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// auditSink publishes to Kafka when brokers are configured and always
// mirrors events to the log.
func (rt *Runtime) auditSink() (couponauth.AuditSink, error) {
	logSink := couponauth.NewLogSink(rt.log.With("module", "audit"))
	if len(rt.cfg.KafkaBrokers) == 0 {
		return logSink, nil
	}

	kafkaSink, err := couponauth.NewKafkaSink(couponauth.KafkaSinkConfig{
		Brokers: rt.cfg.KafkaBrokers,
		Topic:   rt.cfg.KafkaTopic,
	}, rt.log)
	if err != nil {
		return nil, fmt.Errorf("kafka audit sink: %w", err)
	}
	rt.closers = append(rt.closers, kafkaSink.Close)
	return couponauth.MultiSink{kafkaSink, logSink}, nil
}

// Handler exposes the router, mainly for tests.
func (rt *Runtime) Handler() http.Handler {
	return rt.httpServer.Handler
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info(ctx, "http server started", "addr", rt.httpServer.Addr)
		if err := rt.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		rt.log.Info(context.Background(), "shutdown signal received")
	case runErr = <-errCh:
		rt.log.Error(context.Background(), "server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
	defer cancel()
	if err := rt.httpServer.Shutdown(shutdownCtx); err != nil {
		rt.log.Error(shutdownCtx, "http shutdown failed", "error", err)
	}
	rt.Close()
	return runErr
}

// Close stops the Engine and releases every dependency.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	rt.closeAll()
}

func (rt *Runtime) closeAll() {
	if rt.engine != nil {
		rt.engine.Close()
		rt.engine = nil
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	rt.closers = nil
}
