package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"usiverify/internal/evidence/usi/cache"
	usihandler "usiverify/internal/evidence/usi/handler"
	usimetrics "usiverify/internal/evidence/usi/metrics"
	"usiverify/internal/evidence/usi/providers/avetmiss"
	"usiverify/internal/evidence/usi/service"
	"usiverify/internal/evidence/usi/store"
	httpapi "usiverify/internal/http"
	jwttoken "usiverify/internal/jwt_token"
	"usiverify/internal/platform/config"
	"usiverify/internal/platform/httpserver"
	"usiverify/internal/platform/logger"
	"usiverify/internal/platform/metrics"
	"usiverify/internal/platform/postgres"
	"usiverify/internal/platform/redis"
	"usiverify/pkg/platform/audit"
	"usiverify/pkg/platform/audit/publisher"
	auditmemory "usiverify/pkg/platform/audit/store/memory"
	auditpg "usiverify/pkg/platform/audit/store/postgres"
	"usiverify/pkg/platform/circuit"
	"usiverify/pkg/platform/middleware/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies, exposes the HTTP router and keeps the server
// lifecycle small. Business logic lives in internal service packages.
func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	usiStore, auditStore, err := buildStores(ctx, db, log)
	if err != nil {
		return err
	}

	pub := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	memCache := cache.NewInMemory(cfg.Verifier.CacheTTL)
	var outcomeCache service.Cache = memCache
	if redisClient != nil {
		outcomeCache = cache.NewRedis(redisClient.Client, cfg.Verifier.CacheTTL)
		log.Info("usi outcome cache backed by redis")
	}

	svc, err := buildService(cfg.Verifier, usiStore, outcomeCache, pub, log)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	limiter := ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	checks := map[string]httpapi.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	router := httpapi.NewRouter(httpapi.Deps{
		USI:            usihandler.New(svc, log),
		JWTValidator:   jwttoken.NewJWTServiceAdapter(jwtService),
		Limiter:        limiter,
		Metrics:        metrics.New(),
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HealthChecks:   checks,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting usiverify",
			"addr", cfg.Server.Addr,
			"remote_verification", svc.RemoteEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return limiter.Run(gctx)
	})
	if redisClient == nil {
		g.Go(func() error {
			return memCache.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("shutting down")

	if cerr := pub.Close(); cerr != nil {
		log.Warn("audit publisher close failed", "error", cerr)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildStores selects Postgres when DATABASE_URL is set and in-memory otherwise.
func buildStores(ctx context.Context, db *sql.DB, log *slog.Logger) (service.Store, audit.Store, error) {
	if db == nil {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return store.NewInMemory(), auditmemory.NewInMemoryStore(), nil
	}

	usiStore := store.NewPostgres(db)
	if err := usiStore.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	auditStore := auditpg.New(db)
	if err := auditStore.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	return usiStore, auditStore, nil
}

func buildService(cfg config.Verifier, usiStore service.Store, outcomeCache service.Cache, pub *publisher.Publisher, log *slog.Logger) (*service.Service, error) {
	newVerifier := func(server, token string) (service.Verifier, error) {
		if server == "" {
			server = cfg.Server
		}
		return avetmiss.New(server, token,
			avetmiss.WithTimeout(cfg.Timeout),
			avetmiss.WithLogger(log),
			avetmiss.WithTracer(otel.Tracer("usiverify/avetmiss")),
		)
	}

	opts := []service.Option{
		service.WithVerifierFactory(newVerifier),
		service.WithAllowedServers(cfg.AllowedServers...),
		service.WithCache(outcomeCache),
		service.WithKeyer(cache.NewKeyer(cfg.CacheKeySecret)),
		service.WithBreaker(circuit.New("avetmiss",
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithSuccessThreshold(cfg.BreakerSuccesses),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)),
		service.WithMetrics(usimetrics.New()),
		service.WithLogger(log),
		service.WithAuditPublisher(pub),
		service.WithAuditLog(pub),
	}

	if cfg.Enabled() {
		verifier, err := newVerifier(cfg.Server, cfg.Token)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithVerifier(verifier))
	} else {
		log.Warn("USI_VERIFY_TOKEN not set, remote verification disabled")
	}

	return service.New(usiStore, opts...)
}
