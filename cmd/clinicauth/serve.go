package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/config"
	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/MrEthical07/clinicauth/internal/httpapi"
	"github.com/MrEthical07/clinicauth/kafkasink"
	promexport "github.com/MrEthical07/clinicauth/metrics/export/prometheus"
	"github.com/MrEthical07/clinicauth/pgstore"
	"github.com/MrEthical07/clinicauth/refresh"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default config.yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(settings.LogLevel, settings.ServiceName, settings.Env)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	cfg := settings.EngineConfig()
	if cfg.Metrics.Enabled {
		cfg.Metrics.EnableLatencyHistograms = true
	}

	var pool *pgxpool.Pool
	if settings.Store.DatabaseURL != "" {
		pool, err = connectDB(settings.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connection failed: %w", err)
		}
		closers = append(closers, pool.Close)
	}

	var rdb redis.UniversalClient
	if settings.Store.RedisAddr != "" {
		rdb, err = connectRedis(settings.Store.RedisAddr)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
	}

	credentials, err := buildCredentialStore(settings, cfg, pool, logger)
	if err != nil {
		return err
	}

	refreshStore, err := buildRefreshStore(settings, pool, rdb)
	if err != nil {
		return err
	}

	sink, closeSink, err := buildAuditSink(settings, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeSink)

	engine, err := clinicauth.New().
		WithConfig(cfg).
		WithCredentialStore(credentials).
		WithRefreshStore(refreshStore).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	report := engine.SecurityReport()
	logger.Info("security posture",
		"signing", report.SigningAlgorithm,
		"lockout", report.LockoutActive,
		"oidc", report.ExternalIdentityEnabled,
		"oidc_required", report.ExternalIdentityRequired,
		"field_encryption", report.FieldEncryptionActive,
		"encryption_primary", report.EncryptionPrimaryKey,
		"audit_redaction", report.AuditRedaction,
	)
	// The engine drains queued audit events into the sink, so it closes first.
	closers = append(closers, engine.Close)

	opts := httpapi.Options{Logger: logger}
	if settings.RateLimit.Enabled {
		if rdb != nil {
			opts.Limiters = httpapi.NewRedisLimiters(rdb)
		} else {
			opts.Limiters = httpapi.NewMemoryLimiters()
		}
	}
	if settings.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registry.MustRegister(promexport.NewExporter(engine))
		opts.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		opts.MetricsPath = settings.Metrics.Path
	}

	server := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           httpapi.NewRouter(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("clinicauth starting", "addr", settings.HTTPAddr, "refresh_store", settings.Store.Refresh, "oidc", cfg.OIDC.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
	return nil
}

func connectDB(url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// buildCredentialStore uses the users table when a database is configured.
// Dev and test environments fall back to an empty in-memory store.
func buildCredentialStore(s *config.Settings, cfg clinicauth.Config, pool *pgxpool.Pool, logger *slog.Logger) (clinicauth.CredentialStore, error) {
	if pool == nil {
		if s.Env == "dev" || s.Env == "test" {
			logger.Warn("no database configured, using in-memory credential store")
			return clinicauth.NewMemoryCredentialStore(), nil
		}
		return nil, fmt.Errorf("%w: store.database_url required", clinicauth.ErrMisconfigured)
	}

	cipher, err := buildCipher(cfg)
	if err != nil {
		return nil, err
	}
	store := pgstore.NewUserStore(pool, cipher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("users schema: %w", err)
	}
	return store, nil
}

// buildCipher returns nil when no encryption keys are configured, so
// pgstore keeps secrets as they are.
func buildCipher(cfg clinicauth.Config) (pgstore.Cipher, error) {
	if len(cfg.Encryption.Keys) == 0 {
		return nil, nil
	}
	ring, err := envelope.NewKeyRing(cfg.Encryption.Keys, cfg.Encryption.PrimaryKeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicauth.ErrMisconfigured, err)
	}
	return envelope.New(ring), nil
}

func connectRedis(addr string) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func buildRefreshStore(s *config.Settings, pool *pgxpool.Pool, rdb redis.UniversalClient) (refresh.Store, error) {
	switch strings.ToLower(s.Store.Refresh) {
	case "", "memory":
		return refresh.NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("%w: store.redis_addr required", clinicauth.ErrMisconfigured)
		}
		return refresh.NewRedisStore(rdb, refresh.DefaultRedisPrefix), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("%w: store.database_url required for postgres refresh store", clinicauth.ErrMisconfigured)
		}
		store := refresh.NewPostgresStore(pool)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("refresh schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown refresh store %q", clinicauth.ErrMisconfigured, s.Store.Refresh)
	}
}

func buildAuditSink(s *config.Settings, logger *slog.Logger) (clinicauth.AuditSink, func(), error) {
	switch strings.ToLower(s.Audit.Sink) {
	case "", "log":
		return clinicauth.NewSlogSink(logger), func() {}, nil
	case "json":
		return clinicauth.NewJSONWriterSink(os.Stdout, logger), func() {}, nil
	case "kafka":
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers: splitList(s.Audit.Brokers),
			Topic:   s.Audit.Topic,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {
			if err := sink.Close(); err != nil {
				logger.Error("kafka sink close", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown audit sink %q", clinicauth.ErrMisconfigured, s.Audit.Sink)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
