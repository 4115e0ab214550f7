package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	authhandler "warden/internal/auth/handler"
	"warden/internal/auth/lockout"
	authmetrics "warden/internal/auth/metrics"
	"warden/internal/auth/password"
	"warden/internal/auth/ports"
	"warden/internal/auth/service"
	"warden/internal/auth/store/account"
	"warden/internal/auth/token"
	"warden/internal/platform/config"
	"warden/internal/platform/database"
	"warden/internal/platform/health"
	"warden/internal/platform/logger"
	platformredis "warden/internal/platform/redis"
	rlhandler "warden/internal/ratelimit/handler"
	rlmetrics "warden/internal/ratelimit/metrics"
	rlmiddleware "warden/internal/ratelimit/middleware"
	"warden/internal/ratelimit/service/requestlimit"
	"warden/internal/ratelimit/workers/cleanup"
	httptransport "warden/internal/transport/http"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/request"
	"warden/pkg/platform/tracer"
)

const poolStatsInterval = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing warden",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"rate_limit_backend", cfg.RateLimit.Backend,
		"rate_limit_algorithm", cfg.RateLimit.Algorithm,
		"password_algorithm", cfg.PasswordAlgorithm,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	healthHandler := health.New(cfg.Environment, log)

	rdb, err := platformredis.New(ctx, platformredis.DefaultConfig(cfg.RedisURL), reg)
	if err != nil {
		return err
	}
	var redisClient goredis.UniversalClient
	if rdb != nil {
		defer rdb.Close() //nolint:errcheck
		redisClient = rdb.Client
		healthHandler.RegisterCheck("redis", rdb.Health)
	}

	pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL), reg)
	if err != nil {
		return err
	}
	var db *sql.DB
	if pool != nil {
		defer pool.Close() //nolint:errcheck
		db = pool.DB()
		healthHandler.RegisterCheck("postgres", pool.Health)
	}

	// Security events go to the log and to every configured audit sink.
	var stream, topic audit.Emitter
	if redisClient != nil {
		stream = audit.NewStreamEmitter(redisClient, cfg.AuditStream, 0)
	}
	if cfg.KafkaBrokers != "" {
		kafkaEmitter, err := audit.NewKafkaEmitter(audit.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.AuditTopic})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafkaEmitter.Close(flushCtx); err != nil {
				log.Warn("kafka audit producer closed with unflushed events", "error", err)
			}
		}()
		healthHandler.RegisterCheck("kafka", kafkaEmitter.Health)
		topic = kafkaEmitter
	}
	emitter := audit.NewFanout(stream, topic)

	limitMetrics := rlmetrics.New(reg)
	sweeper := cleanup.New(
		cleanup.WithLogger(log),
		cleanup.WithInterval(cfg.RateLimit.SweepInterval),
		cleanup.WithMetrics(limitMetrics),
	)

	stores, err := buildRateLimitStores(cfg.RateLimit, redisClient, db, sweeper)
	if err != nil {
		return err
	}
	limitOpts := []requestlimit.Option{
		requestlimit.WithConfig(cfg.RateLimit),
		requestlimit.WithLogger(log),
		requestlimit.WithMetrics(limitMetrics),
		requestlimit.WithStoreName(stores.name),
		requestlimit.WithAuditEmitter(emitter),
	}
	if stores.fallback != nil {
		limitOpts = append(limitOpts, requestlimit.WithFallback(stores.fallback))
	}
	limiter, err := requestlimit.New(stores.primary, limitOpts...)
	if err != nil {
		return err
	}

	gateway, tracker, err := buildGateway(cfg, log, reg, limiter, emitter, redisClient, db, sweeper)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metadata:       metadata.NewMiddleware(&metadata.Config{TrustedProxies: cfg.TrustedProxies}),
		RateLimit:      rlmiddleware.New(limiter, log),
		HTTPMetrics:    request.NewMetrics(reg),
		Auth:           authhandler.New(gateway, tracker, log),
		RateLimitAdmin: rlhandler.New(limiter, log),
		Health:         healthHandler,
		Gatherer:       reg,
		AdminToken:     cfg.AdminToken,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server",
			"addr", cfg.Addr,
			"admin_routes", cfg.AdminToken != "",
			"audit_kafka", topic != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if rdb != nil {
		g.Go(func() error {
			return rdb.RunPoolStats(gctx, poolStatsInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildGateway assembles the account store, lockout tracker, hasher and token
// service behind the auth gateway.
func buildGateway(
	cfg config.Server,
	log *slog.Logger,
	reg prometheus.Registerer,
	limiter ports.RateLimiter,
	emitter audit.Emitter,
	rdb goredis.UniversalClient,
	db *sql.DB,
	sweeper *cleanup.SweepService,
) (*service.Service, *lockout.Tracker, error) {
	authMetrics := authmetrics.New(reg)

	var accounts ports.AccountStore
	if db != nil {
		accounts = account.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set; accounts are kept in memory")
		accounts = account.NewInMemoryStore(cfg.RateLimit.Shards)
	}

	tracker, err := lockout.New(accounts,
		lockout.WithConfig(lockout.Config{
			Threshold:  cfg.RateLimit.Lockout.Threshold,
			Duration:   cfg.RateLimit.Lockout.Duration,
			MaxRetries: cfg.RateLimit.Lockout.MaxRetries,
		}),
		lockout.WithLogger(log),
		lockout.WithMetrics(authMetrics),
		lockout.WithAuditLogger(audit.NewLogger(log, emitter)),
	)
	if err != nil {
		return nil, nil, err
	}

	hasher, err := password.NewMulti(cfg.PasswordAlgorithm,
		password.NewBcrypt(cfg.BcryptCost),
		password.NewArgon2id(cfg.Argon2),
	)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := token.New(cfg.JWTSigningKey,
		token.WithIssuer(cfg.TokenIssuer),
		token.WithTTL(cfg.TokenTTL),
		token.WithRevocationList(buildRevocationList(rdb, db, sweeper)),
		token.WithLogger(log),
		token.WithMetrics(authMetrics),
	)
	if err != nil {
		return nil, nil, err
	}

	gateway, err := service.New(accounts, limiter, tracker, hasher, tokens,
		service.WithLogger(log),
		service.WithMetrics(authMetrics),
		service.WithTracer(tracer.NewOTel(nil)),
		service.WithTokenTTL(cfg.TokenTTL),
		service.WithUnavailableRetryAfter(cfg.RateLimit.Breaker.Cooldown),
		service.WithAuditEmitter(emitter),
	)
	if err != nil {
		return nil, nil, err
	}
	return gateway, tracker, nil
}
