package handler

import (
	"net/http"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Credit requests: /v1/credit-requests
// ============================================================

func submitCreditRequestHandler(svc *service.CreditService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/credit-requests")
		defer span.End()

		var body domain.SubmitCreditRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req, err := svc.Submit(ctx, body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func listCreditRequestsHandler(svc *service.CreditService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/credit-requests")
		defer span.End()

		q := r.URL.Query()
		items, err := svc.List(ctx, domain.CreditRequestFilter{
			Status: domain.CreditStatus(q.Get("status")),
			UserID: q.Get("user_id"),
			Limit:  parseLimit(r),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CreditRequest]{Data: items, Total: len(items)})
	}
}

func getCreditRequestHandler(svc *service.CreditService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/credit-requests/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("credit_request.id", id))

		req, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func approveCreditRequestHandler(svc *service.CreditService, logger *zap.Logger) http.HandlerFunc {
	return reviewHandler("POST /v1/credit-requests/{id}/approve", logger,
		func(r *http.Request, id string, body domain.ReviewRequest) (*domain.CreditRequest, error) {
			return svc.Approve(r.Context(), id, body.Notes, AdminIDFromContext(r.Context()))
		})
}

func rejectCreditRequestHandler(svc *service.CreditService, logger *zap.Logger) http.HandlerFunc {
	return reviewHandler("POST /v1/credit-requests/{id}/reject", logger,
		func(r *http.Request, id string, body domain.ReviewRequest) (*domain.CreditRequest, error) {
			return svc.Reject(r.Context(), id, body.Reason, AdminIDFromContext(r.Context()))
		})
}

func processCreditRequestHandler(svc *service.CreditService, logger *zap.Logger) http.HandlerFunc {
	return reviewHandler("POST /v1/credit-requests/{id}/process", logger,
		func(r *http.Request, id string, body domain.ReviewRequest) (*domain.CreditRequest, error) {
			return svc.Process(r.Context(), id, body.TransactionReference, body.Notes, AdminIDFromContext(r.Context()))
		})
}

// reviewHandler decodes the optional review body and runs one transition.
func reviewHandler(
	spanName string,
	logger *zap.Logger,
	run func(*http.Request, string, domain.ReviewRequest) (*domain.CreditRequest, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), spanName)
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("credit_request.id", id))

		var body domain.ReviewRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req, err := run(r.WithContext(ctx), id, body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}
