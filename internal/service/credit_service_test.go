package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func amount(v float64) *float64 { return &v }

func approvedRequest(id string) domain.CreditRequest {
	return domain.CreditRequest{
		ID:       id,
		Status:   domain.CreditStatusApproved,
		Amount:   amount(500),
		Currency: "KRW",
		UserID:   "U1",
	}
}

func newCreditService(store *memStore, wallet *mockWallet) (*service.CreditService, *observability.Metrics) {
	metrics := observability.NewMetrics()
	svc := service.NewCreditService(store, wallet, "krw",
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		metrics, zap.NewNop())
	return svc, metrics
}

func TestSubmit(t *testing.T) {
	store := newMemStore()
	svc, _ := newCreditService(store, &mockWallet{})

	req, err := svc.Submit(context.Background(), domain.SubmitCreditRequest{UserID: " U1 ", Amount: amount(1000)})
	require.NoError(t, err)
	require.NotEmpty(t, req.ID)
	require.Equal(t, domain.CreditStatusPending, req.Status)
	require.Equal(t, "KRW", req.Currency)
	require.Equal(t, "U1", req.UserID)
	require.Equal(t, domain.CreditStatusPending, store.status(req.ID))
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newCreditService(newMemStore(), &mockWallet{})

	tests := []struct {
		name  string
		in    domain.SubmitCreditRequest
		field string
	}{
		{"missing user", domain.SubmitCreditRequest{Amount: amount(1)}, "user_id"},
		{"missing amount", domain.SubmitCreditRequest{UserID: "U1"}, "amount"},
		{"zero amount", domain.SubmitCreditRequest{UserID: "U1", Amount: amount(0)}, "amount"},
		{"negative amount", domain.SubmitCreditRequest{UserID: "U1", Amount: amount(-3)}, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.in)
			var v *domain.ErrValidation
			require.ErrorAs(t, err, &v)
			require.Equal(t, tt.field, v.Field)
		})
	}
}

func TestApproveThenReject(t *testing.T) {
	store := newMemStore(domain.CreditRequest{ID: "cr-1", Status: domain.CreditStatusPending, Amount: amount(10), UserID: "U1"})
	svc, metrics := newCreditService(store, &mockWallet{})
	ctx := context.Background()

	approved, err := svc.Approve(ctx, "cr-1", "looks fine", "admin-1")
	require.NoError(t, err)
	require.Equal(t, domain.CreditStatusApproved, approved.Status)
	require.Equal(t, "admin-1", approved.ReviewedBy)

	_, err = svc.Approve(ctx, "cr-1", "", "admin-1")
	var invalid *domain.ErrInvalidState
	require.ErrorAs(t, err, &invalid)

	_, err = svc.Reject(ctx, "cr-1", "no", "admin-1")
	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)
	require.Equal(t, domain.CreditStatusApproved, store.status("cr-1"))

	rejected, err := svc.Reject(ctx, "cr-1", "duplicate request", "admin-2")
	require.NoError(t, err)
	require.Equal(t, domain.CreditStatusRejected, rejected.Status)
	require.Equal(t, "duplicate request", rejected.RejectionReason)

	snap := metrics.GetWorkflowSnapshot()
	require.Equal(t, int64(1), snap.Approved)
	require.Equal(t, int64(1), snap.Rejected)
}

func TestApprove_NotFound(t *testing.T) {
	svc, _ := newCreditService(newMemStore(), &mockWallet{})

	_, err := svc.Approve(context.Background(), "missing", "", "admin")
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc, _ := newCreditService(newMemStore(), &mockWallet{})

	_, err := svc.List(context.Background(), domain.CreditRequestFilter{Status: "archived"})
	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)
}

func TestProcess_CreditsWalletWithReference(t *testing.T) {
	store := newMemStore(approvedRequest("cr-1"))
	wallet := &mockWallet{}
	svc, _ := newCreditService(store, wallet)

	done, err := svc.Process(context.Background(), "cr-1", "TX-100", "paid", "admin-1")
	require.NoError(t, err)
	require.Equal(t, domain.CreditStatusProcessed, done.Status)
	require.Equal(t, "TX-100", done.TransactionReference)
	require.Equal(t, "admin-1", done.ProcessedBy)
	require.NotNil(t, done.ProcessedAt)
	require.NotEmpty(t, done.WalletTransactionID)
	require.Equal(t, domain.CreditStatusProcessed, store.status("cr-1"))

	require.Len(t, wallet.calls, 1)
	require.Equal(t, domain.WalletCredit{
		UserID:         "U1",
		Amount:         500,
		Currency:       "KRW",
		Reference:      "TX-100",
		IdempotencyKey: "credit-request:cr-1",
	}, wallet.calls[0])
}

func TestProcess_ReferenceDefaultsToID(t *testing.T) {
	store := newMemStore(approvedRequest("cr-1"))
	wallet := &mockWallet{}
	svc, _ := newCreditService(store, wallet)

	_, err := svc.Process(context.Background(), "cr-1", "", "", "admin-1")
	require.NoError(t, err)
	require.Equal(t, "cr-1", wallet.calls[0].Reference)
}

func TestProcess_ValidationHappensBeforeWallet(t *testing.T) {
	tests := []struct {
		name string
		req  domain.CreditRequest
	}{
		{"zero amount", domain.CreditRequest{ID: "cr-1", Status: domain.CreditStatusApproved, Amount: amount(0), UserID: "U1"}},
		{"missing amount", domain.CreditRequest{ID: "cr-1", Status: domain.CreditStatusApproved, UserID: "U1"}},
		{"missing user", domain.CreditRequest{ID: "cr-1", Status: domain.CreditStatusApproved, Amount: amount(5)}},
		{"pending", domain.CreditRequest{ID: "cr-1", Status: domain.CreditStatusPending, Amount: amount(5), UserID: "U1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(tt.req)
			wallet := &mockWallet{}
			svc, _ := newCreditService(store, wallet)

			_, err := svc.Process(context.Background(), "cr-1", "", "", "admin")
			require.Error(t, err)
			require.Zero(t, wallet.callCount())
			require.Equal(t, tt.req.Status, store.status("cr-1"))
		})
	}
}

func TestProcess_WalletFailureRestoresApproved(t *testing.T) {
	original := approvedRequest("cr-1")
	store := newMemStore(original)
	wallet := &mockWallet{err: errors.New("connection refused")}
	svc, _ := newCreditService(store, wallet)

	_, err := svc.Process(context.Background(), "cr-1", "TX-1", "", "admin")
	var dep *domain.ErrDependency
	require.ErrorAs(t, err, &dep)

	got, err := store.GetCreditRequest(context.Background(), "cr-1")
	require.NoError(t, err)
	require.Equal(t, original, *got)
}

func TestProcess_WalletCircuitOpenPassesThrough(t *testing.T) {
	store := newMemStore(approvedRequest("cr-1"))
	svc, _ := newCreditService(store, &mockWallet{err: &domain.ErrCircuitOpen{Service: "wallet"}})

	_, err := svc.Process(context.Background(), "cr-1", "", "", "admin")
	var open *domain.ErrCircuitOpen
	require.ErrorAs(t, err, &open)
	require.Equal(t, domain.CreditStatusApproved, store.status("cr-1"))
}

func TestProcess_ConcurrentCallersCreditOnce(t *testing.T) {
	store := newMemStore(approvedRequest("cr-1"))
	wallet := &mockWallet{delay: 5 * time.Millisecond}
	svc, _ := newCreditService(store, wallet)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Process(context.Background(), "cr-1", "", "", "admin")
			mu.Lock()
			defer mu.Unlock()
			var inv *domain.ErrInvalidState
			switch {
			case err == nil:
				successes++
			case errors.As(err, &inv):
				invalid++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, callers-1, invalid)
	require.Equal(t, 1, wallet.callCount())
	require.Equal(t, domain.CreditStatusProcessed, store.status("cr-1"))
}

func TestProcess_CompletionFailureLeavesProcessing(t *testing.T) {
	store := newMemStore(approvedRequest("cr-1"))
	store.failUpdates[domain.CreditStatusProcessed] = 10
	wallet := &mockWallet{}
	svc, _ := newCreditService(store, wallet)

	_, err := svc.Process(context.Background(), "cr-1", "", "", "admin")
	var dep *domain.ErrDependency
	require.ErrorAs(t, err, &dep)
	require.Equal(t, domain.CreditStatusProcessing, store.status("cr-1"))
	require.Equal(t, 1, wallet.callCount())
}

func TestProcess_CompletionRetriedUntilPersisted(t *testing.T) {
	store := newMemStore(approvedRequest("cr-1"))
	store.failUpdates[domain.CreditStatusProcessed] = 2
	svc, _ := newCreditService(store, &mockWallet{})

	done, err := svc.Process(context.Background(), "cr-1", "", "", "admin")
	require.NoError(t, err)
	require.Equal(t, domain.CreditStatusProcessed, done.Status)
	require.Equal(t, domain.CreditStatusProcessed, store.status("cr-1"))
}
