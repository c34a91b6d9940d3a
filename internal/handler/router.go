// Package handler exposes the admin API over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether the data backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
// A nil service leaves its routes answering 503.
func NewRouter(
	analyticsSvc *service.AnalyticsService,
	creditSvc *service.CreditService,
	backend Pinger,
	metrics *observability.Metrics,
	jwtSecret []byte,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(backend))
	r.Get("/readyz", readyzHandler(backend, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 (admin only) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(jwtSecret, logger))

		r.Get("/metrics/workflow", workflowMetricsHandler(metrics))

		r.Route("/analytics", func(r chi.Router) {
			if analyticsSvc == nil {
				r.Handle("/*", unavailable("analytics"))
				return
			}
			r.Get("/series", seriesHandler(analyticsSvc, logger))
			r.Get("/stats", statsHandler(analyticsSvc, logger))
			r.Get("/dashboard", dashboardHandler(analyticsSvc, logger))
		})

		r.Route("/credit-requests", func(r chi.Router) {
			if creditSvc == nil {
				r.Handle("/*", unavailable("credit requests"))
				return
			}
			r.Post("/", submitCreditRequestHandler(creditSvc, logger))
			r.Get("/", listCreditRequestsHandler(creditSvc, logger))
			r.Get("/{id}", getCreditRequestHandler(creditSvc, logger))
			r.Post("/{id}/approve", approveCreditRequestHandler(creditSvc, logger))
			r.Post("/{id}/reject", rejectCreditRequestHandler(creditSvc, logger))
			r.Post("/{id}/process", processCreditRequestHandler(creditSvc, logger))
		})
	})

	return r
}

func unavailable(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, name+" service unavailable")
	}
}

// ============================================================
// Health
// ============================================================

func healthzHandler(backend Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "admin-bfa", Status: "healthy", LastChecked: now},
		}

		if backend != nil {
			start := time.Now()
			err := backend.Ping(r.Context())
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(backend Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if backend != nil {
			if err := backend.Ping(r.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
