package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/cloudtally/internal/auth"
	"github.com/alecgard/cloudtally/internal/cloud"
	"github.com/alecgard/cloudtally/internal/history"
	"github.com/alecgard/cloudtally/internal/inventory"
	"github.com/alecgard/cloudtally/internal/metrics"
	"github.com/alecgard/cloudtally/internal/ratelimit"
)

// Aggregator builds a snapshot from an authenticated session.
type Aggregator interface {
	Aggregate(ctx context.Context, sess *cloud.Session) (*inventory.Snapshot, error)
}

// HistoryRecorder accepts one summary row per successful aggregation.
type HistoryRecorder interface {
	Record(r history.Record)
}

// HistoryLister reads stored summary rows.
type HistoryLister interface {
	List(ctx context.Context, q history.Query) ([]history.Record, error)
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Provider   cloud.Provider
	Aggregator Aggregator
	Issuer     *auth.Issuer

	// ServiceAccount is the credential used for resource listings.
	ServiceAccount cloud.Credential

	LoginLimiter *ratelimit.Limiter
	Metrics      *metrics.Metrics

	// History and HistoryReader are nil when no database is configured.
	History       HistoryRecorder
	HistoryReader HistoryLister
	MaxHistory    int

	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger(deps.Metrics))

	login := newLoginHandler(deps.Provider, deps.Issuer, deps.Metrics)
	resources := newResourcesHandler(deps.Provider, deps.Aggregator, deps.ServiceAccount, deps.History)
	hist := newHistoryHandler(deps.HistoryReader, deps.MaxHistory)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.PrometheusHandler())
		r.Get("/api/metrics", deps.Metrics.Handler())
	}

	// Login is public but rate limited per client address.
	r.Group(func(lr chi.Router) {
		if deps.LoginLimiter != nil {
			lr.Use(ratelimit.Middleware(deps.LoginLimiter, func() {
				if deps.Metrics != nil {
					deps.Metrics.IncRateLimitRejection("login")
				}
			}))
		}
		lr.Post("/api/login", login.Login)
	})

	// Bearer-authed routes.
	r.Group(func(ar chi.Router) {
		var observe func(string)
		if deps.Metrics != nil {
			observe = deps.Metrics.ObserveBearer
		}
		ar.Use(auth.Middleware(deps.Issuer, observe))

		ar.Get("/api/resources", resources.GetResources)
		ar.Get("/api/history", hist.ListHistory)
	})

	return r
}

// slogRequestLogger logs every request and, when m is non-nil, records it
// under its route pattern.
func slogRequestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"bytes", ww.BytesWritten(),
				"request_id", RequestIDFromContext(r.Context()),
			)

			if m != nil {
				m.ObserveHTTPRequest(r.Method, routePattern(r), status, elapsed.Seconds())
			}
		})
	}
}

// routePattern returns the matched chi pattern so that metric labels stay
// bounded. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
