package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Credit requests store: get, list, create, conditional update
// ============================================================

const defaultListLimit = 200

func (c *Client) GetCreditRequest(ctx context.Context, id string) (*domain.CreditRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCreditRequest")
	defer span.End()
	span.SetAttributes(attribute.String("credit_request.id", id))

	var req *domain.CreditRequest
	err := c.call(ctx, "credit_requests", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "credit_requests?id="+eq(id)+"&limit=1", nil, "")
		if err != nil {
			return err
		}
		rows, err := decodeCreditRequests(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "credit request", ID: id})
		}
		req = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Client) ListCreditRequests(ctx context.Context, filter domain.CreditRequestFilter) ([]domain.CreditRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCreditRequests")
	defer span.End()

	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", "eq."+string(filter.Status))
	}
	if filter.UserID != "" {
		q.Set("user_id", "eq."+filter.UserID)
	}
	rangeFilter(q, "updated_at", time.Time{}, filter.UpdatedBefore)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q.Set("order", "submitted_at.desc,id.asc")
	q.Set("limit", strconv.Itoa(limit))
	path := "credit_requests?" + q.Encode()

	var out []domain.CreditRequest
	err := c.call(ctx, "credit_requests", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return err
		}
		out, err = decodeCreditRequests(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCreditRequest(ctx context.Context, req *domain.CreditRequest) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCreditRequest")
	defer span.End()
	span.SetAttributes(attribute.String("credit_request.id", req.ID))

	return c.call(ctx, "credit_requests", func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "credit_requests", req, "return=minimal")
		var serr *statusError
		if errors.As(err, &serr) && serr.Status == http.StatusConflict {
			return resilience.Permanent(&domain.ErrValidation{Field: "id", Message: "credit request already exists"})
		}
		return err
	})
}

// UpdateCreditRequest patches the row filtered on both id and the expected
// status, so PostgREST applies it atomically or not at all.
func (c *Client) UpdateCreditRequest(ctx context.Context, req *domain.CreditRequest, expected domain.CreditStatus) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCreditRequest")
	defer span.End()
	span.SetAttributes(
		attribute.String("credit_request.id", req.ID),
		attribute.String("credit_request.expected_status", string(expected)),
		attribute.String("credit_request.status", string(req.Status)),
	)

	patch := map[string]any{
		"status":                req.Status,
		"amount":                req.Amount,
		"currency":              req.Currency,
		"user_id":               req.UserID,
		"account_details":       req.AccountDetails,
		"notes":                 req.Notes,
		"rejection_reason":      req.RejectionReason,
		"transaction_reference": req.TransactionReference,
		"reviewed_by":           req.ReviewedBy,
		"processed_at":          req.ProcessedAt,
		"processed_by":          req.ProcessedBy,
		"wallet_transaction_id": req.WalletTransactionID,
		"updated_at":            req.UpdatedAt,
	}
	path := "credit_requests?id=" + eq(req.ID) + "&status=" + eq(string(expected))

	var updated bool
	err := c.call(ctx, "credit_requests", func() error {
		body, err := c.doRequest(ctx, http.MethodPatch, path, patch, "return=representation")
		if err != nil {
			return err
		}
		updated = !isEmptyArray(body)
		return nil
	})
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	if _, err := c.GetCreditRequest(ctx, req.ID); err != nil {
		return err
	}
	return domain.ErrStatusChanged
}

func decodeCreditRequests(body []byte) ([]domain.CreditRequest, error) {
	out := make([]domain.CreditRequest, 0)
	if isEmptyArray(body) {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode credit_requests: %w", err)
	}
	return out, nil
}

var _ port.CreditRequestStore = (*Client)(nil)
