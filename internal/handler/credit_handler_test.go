package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/handler"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/cache"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/sqlstore"
	"github.com/boddenberg/eel-admin-bfa/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	router http.Handler
	store  *sqlstore.Store
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := cache.New[any](0)
	t.Cleanup(c.Close)

	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	retry := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}

	analyticsSvc := service.NewAnalyticsService(store, c, resilience.NewBulkhead(4), time.UTC, metrics, logger)
	creditSvc := service.NewCreditService(store, store, "KRW", retry, metrics, logger)

	return &testEnv{
		router: handler.NewRouter(analyticsSvc, creditSvc, store, metrics, testSecret, logger),
		store:  store,
		token:  adminToken(t, "admin-7", testSecret, time.Hour),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreditRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/credit-requests", `{"user_id":"U1","amount":500}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.CreditRequest](t, rec)
	require.Equal(t, domain.CreditStatusPending, created.Status)
	require.Equal(t, "KRW", created.Currency)

	// processing straight from pending is refused
	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/process", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/approve", `{"notes":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[domain.CreditRequest](t, rec)
	require.Equal(t, "admin-7", approved.ReviewedBy)

	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/process", `{"transaction_reference":"TX-100"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decode[domain.CreditRequest](t, rec)
	require.Equal(t, domain.CreditStatusProcessed, processed.Status)
	require.Equal(t, "TX-100", processed.TransactionReference)
	require.NotEmpty(t, processed.WalletTransactionID)

	balance, err := env.store.WalletBalance(context.Background(), "U1", "KRW")
	require.NoError(t, err)
	require.Equal(t, "500", balance.String())

	// a second process is a conflict and does not credit again
	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/process", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	balance, err = env.store.WalletBalance(context.Background(), "U1", "KRW")
	require.NoError(t, err)
	require.Equal(t, "500", balance.String())

	rec = env.do(t, http.MethodGet, "/v1/credit-requests?status=processed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[domain.ListResponse[domain.CreditRequest]](t, rec)
	require.Equal(t, 1, list.Total)
}

func TestRejectValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/credit-requests", `{"user_id":"U1","amount":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.CreditRequest](t, rec)

	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/reject", `{"reason":" ab "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/reject", `{"reason":"입금 확인 불가"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, domain.CreditStatusRejected, decode[domain.CreditRequest](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/v1/credit-requests/"+created.ID+"/approve", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreditRequestErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown id", http.MethodGet, "/v1/credit-requests/nope", "", http.StatusNotFound},
		{"approve unknown", http.MethodPost, "/v1/credit-requests/nope/approve", "", http.StatusNotFound},
		{"malformed body", http.MethodPost, "/v1/credit-requests", `{"user_id":`, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/v1/credit-requests", `{"user_id":"U1","amount":0}`, http.StatusBadRequest},
		{"unknown status filter", http.MethodGet, "/v1/credit-requests?status=archived", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
