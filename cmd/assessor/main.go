package main

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

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/assessor/pkg/api"
	"github.com/platinummonkey/assessor/pkg/async"
	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/config"
	"github.com/platinummonkey/assessor/pkg/gate"
	"github.com/platinummonkey/assessor/pkg/middleware"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/preference"
	"github.com/platinummonkey/assessor/pkg/sessionstore"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	boot := setupLogger(cfg.Observability.LogLevel.String())
	if err := run(cfg, boot); err != nil {
		boot.Fatalf("assessor exited: %v", err)
	}
	boot.Info("assessor stopped")
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func run(cfg *config.Config, boot *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)
	clock := clockwork.NewRealClock()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	storeOpts := sessionstore.Options{TTL: cfg.Impersonation.TTL, Clock: clock, Metrics: metrics}
	store, db, err := openStore(ctx, cfg, storeOpts, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	boot.WithField("store", cfg.Store.Type).Info("session store ready")

	prefs, redisClient, err := openPreferences(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		boot.Info("active-role preferences stored in redis")
	} else {
		boot.Warn("ASSESSOR_REDIS_URL not set, active-role preferences are kept in memory")
	}

	dispatcher := async.NewDispatcher(async.DispatcherConfig{
		Workers:   cfg.Audit.Workers,
		QueueSize: cfg.Audit.QueueSize,
		Timeout:   cfg.Audit.Timeout,
	}, logger)

	appenders := []audit.Appender{audit.AppenderFunc(store.AppendAuditRecord)}
	if cfg.Audit.Dir != "" {
		fileAppender, err := audit.NewFileAppender(audit.FileAppenderConfig{BasePath: cfg.Audit.Dir})
		if err != nil {
			return fmt.Errorf("open audit file: %w", err)
		}
		defer fileAppender.Close()
		appenders = append(appenders, fileAppender)
	}
	recorder := audit.NewAsyncRecorder(audit.NewMultiAppender(appenders...), dispatcher,
		audit.WithClock(clock), audit.WithLogger(logger), audit.WithMetrics(metrics))

	var janitor *sessionstore.Janitor
	if sweeper, ok := store.(sessionstore.Sweeper); ok {
		janitor, err = sessionstore.NewJanitor(sweeper, cfg.Impersonation.JanitorSchedule, logger, metrics)
		if err != nil {
			return err
		}
		janitor.Start()
	}

	catalog, err := gate.NewCatalog(cfg.FeaturesFile, logger, metrics)
	if err != nil {
		return fmt.Errorf("load feature catalog: %w", err)
	}

	authenticator, err := buildAuthenticator(ctx, cfg, boot)
	if err != nil {
		return err
	}

	limiter := buildLimiter(ctx, cfg, redisClient, clock)

	server := api.NewServer(api.Config{
		Store:           store,
		Preferences:     prefs,
		Recorder:        recorder,
		Authenticator:   authenticator,
		Catalog:         catalog,
		Clock:           clock,
		Logger:          logger,
		Metrics:         metrics,
		RateLimiter:     limiter,
		ClientCacheSize: cfg.ClientCache.Size,
		ClientCacheTTL:  cfg.ClientCache.TTL,
	})
	defer server.Close()

	apiServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", metrics.Handler())
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(db, redisClient))
	opsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		boot.Infof("API listening on %s", cfg.Server.HTTPAddr)
		return listen(apiServer)
	})
	g.Go(func() error {
		boot.Infof("metrics and health listening on %s", cfg.Server.MetricsAddr)
		return listen(opsServer)
	})
	g.Go(func() error {
		return catalog.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		boot.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), opsServer.Shutdown(shutdownCtx))
	})

	runErr := g.Wait()

	// The servers are down, so nothing new is recorded. Flush audit records
	// before the deferred store close.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if janitor != nil {
		janitor.Stop(drainCtx)
	}
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		boot.WithError(err).Warn("audit records may have been lost")
	}
	if err := shutdownTracing(drainCtx); err != nil {
		boot.WithError(err).Warn("failed to flush traces")
	}
	return runErr
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore returns the configured session store. db is nil for the
// memory store.
func openStore(ctx context.Context, cfg *config.Config, opts sessionstore.Options, logger *observability.Logger) (sessionstore.Store, *sql.DB, error) {
	if cfg.Store.Type == config.StoreMemory {
		return sessionstore.NewMemoryStore(opts), nil, nil
	}

	db, err := sql.Open("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Store.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := sessionstore.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := sessionstore.NewSQLStore(db, opts)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

func openPreferences(ctx context.Context, cfg *config.Config) (preference.Store, *redis.Client, error) {
	if cfg.Preference.RedisURL == "" {
		return preference.NewMemoryStore(), nil, nil
	}
	client, err := preference.NewRedisClient(ctx, preference.RedisConfig{
		URL:      cfg.Preference.RedisURL,
		Password: cfg.Preference.RedisPassword,
		DB:       cfg.Preference.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return preference.NewRedisStore(client, cfg.Preference.TTL), client, nil
}

// buildLimiter shares the privilege-change budget through redis when it is
// configured. Returns nil when limiting is disabled.
func buildLimiter(ctx context.Context, cfg *config.Config, redisClient *redis.Client, clock clockwork.Clock) middleware.Limiter {
	if !cfg.RateLimit.Enabled() {
		return nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.PerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimit.Burst,
	}
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, limits, "")
	}
	limiter := middleware.NewRateLimiter(limits, clock)
	limiter.StartCleanup(ctx)
	return limiter
}

func buildAuthenticator(ctx context.Context, cfg *config.Config, boot *logrus.Logger) (auth.Authenticator, error) {
	var chain auth.Chain
	if cfg.Auth.OIDCIssuer != "" {
		oidcAuth, err := auth.NewOIDCAuthenticator(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("configure OIDC: %w", err)
		}
		chain = append(chain, oidcAuth)
	}
	if cfg.Auth.TrustHeaders {
		boot.Warn("trusting identity headers; only use behind a proxy that strips them")
		chain = append(chain, auth.HeaderAuthenticator{})
	}
	return chain, nil
}
