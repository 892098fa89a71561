package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	usihandler "usiverify/internal/evidence/usi/handler"
	"usiverify/internal/platform/metrics"
	"usiverify/pkg/platform/httputil"
	"usiverify/pkg/platform/middleware/auth"
	"usiverify/pkg/platform/middleware/metadata"
	"usiverify/pkg/platform/middleware/ratelimit"
	"usiverify/pkg/platform/middleware/requestid"
	"usiverify/pkg/platform/middleware/requesttime"
	"usiverify/pkg/requestcontext"
)

const requestTimeout = 60 * time.Second

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps holds everything the router mounts.
type Deps struct {
	USI            *usihandler.Handler
	JWTValidator   auth.JWTValidator
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
	AllowedOrigins []string
	HealthChecks   map[string]HealthCheck
}

// NewRouter wires the public endpoints. /health and /metrics are open; the
// USI API requires a bearer token and is rate limited per client IP.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(requestLogger(deps.Logger))
	r.Use(deps.Metrics.Middleware)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", requestid.Header},
			ExposedHeaders:   []string{requestid.Header},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", healthHandler(deps.HealthChecks))
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware)
		}
		r.Use(auth.RequireAuth(deps.JWTValidator, deps.Logger))
		deps.USI.Register(r)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				"request_id", requestcontext.RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
