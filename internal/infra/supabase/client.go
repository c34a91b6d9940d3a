// Package supabase provides a client for Supabase (PostgREST).
// It serves as the managed data backend for records, credit requests and
// the wallet RPC.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	if apiKey == "" {
		apiKey = serviceRoleKey
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST answer.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Body)
}

// doRequest executes an authenticated request against /rest/v1/<path>.
// A nil payload sends no body. 4xx answers are not retried.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("encode %s body: %w", path, err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read supabase response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		serr := &statusError{Status: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(serr)
		}
		return nil, serr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

// call runs fn under the circuit breaker with retries. Domain outcomes
// (not found, validation, stale status) pass through untouched and do not
// count as breaker failures.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	var outcome error
	_, err := c.cb.Execute(func() (any, error) {
		err := resilience.RetryWithBackoff(ctx, c.cfg, fn)
		if isOutcome(err) {
			outcome = err
			return nil, nil
		}
		return nil, err
	})
	if outcome != nil {
		return outcome
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: "supabase/" + op}
	}
	return &domain.ErrDependency{Service: "supabase/" + op, Err: err}
}

func isOutcome(err error) bool {
	if err == nil {
		return false
	}
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	return errors.As(err, &notFound) || errors.As(err, &validation) || errors.Is(err, domain.ErrStatusChanged)
}

// Ping checks PostgREST reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", func() error {
		_, err := c.doRequest(ctx, http.MethodGet, "credit_requests?select=id&limit=1", nil, "")
		return err
	})
}
