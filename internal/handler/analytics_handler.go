package handler

import (
	"net/http"

	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Analytics: GET /v1/analytics/*
// ============================================================

func seriesHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/series")
		defer span.End()

		q := r.URL.Query()
		kind, err := service.ParseKind(q.Get("kind"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		separate, err := parseBoolParam(r, "separate_years")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		from, err := parseTimeParam(r, "from")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		to, err := parseTimeParam(r, "to")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("analytics.kind", string(kind)))

		resp, err := svc.Series(ctx, service.SeriesQuery{
			Kind:            kind,
			Granularity:     q.Get("granularity"),
			TransactionType: q.Get("type"),
			SeparateYears:   separate,
			From:            from,
			To:              to,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statsHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/stats")
		defer span.End()

		kind, err := service.ParseKind(r.URL.Query().Get("kind"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		from, err := parseTimeParam(r, "from")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		to, err := parseTimeParam(r, "to")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		stats, err := svc.Stats(ctx, service.StatsQuery{
			Kind:            kind,
			TransactionType: r.URL.Query().Get("type"),
			From:            from,
			To:              to,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func dashboardHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/dashboard")
		defer span.End()

		summary, err := svc.Dashboard(ctx, r.URL.Query().Get("granularity"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// workflowMetricsHandler returns a snapshot of the workflow counters.
func workflowMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetWorkflowSnapshot())
	}
}
