package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
)

// --- Mocks ---

type memStore struct {
	mu       sync.Mutex
	requests map[string]domain.CreditRequest
	// failUpdates makes the next n updates targeting status fail.
	failUpdates map[domain.CreditStatus]int
}

func newMemStore(reqs ...domain.CreditRequest) *memStore {
	s := &memStore{requests: map[string]domain.CreditRequest{}, failUpdates: map[domain.CreditStatus]int{}}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (s *memStore) GetCreditRequest(_ context.Context, id string) (*domain.CreditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "credit request", ID: id}
	}
	return &r, nil
}

func (s *memStore) ListCreditRequests(_ context.Context, f domain.CreditRequestFilter) ([]domain.CreditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.CreditRequest{}
	for _, r := range s.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !r.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateCreditRequest(_ context.Context, req *domain.CreditRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return &domain.ErrValidation{Field: "id", Message: "credit request already exists"}
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *memStore) UpdateCreditRequest(_ context.Context, req *domain.CreditRequest, expected domain.CreditStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.failUpdates[req.Status]; n > 0 {
		s.failUpdates[req.Status] = n - 1
		return errors.New("store unavailable")
	}
	cur, ok := s.requests[req.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "credit request", ID: req.ID}
	}
	if cur.Status != expected {
		return domain.ErrStatusChanged
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *memStore) status(id string) domain.CreditStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Status
}

type mockWallet struct {
	mu      sync.Mutex
	calls   []domain.WalletCredit
	seen    map[string]string
	err     error
	delay   time.Duration
	counter atomic.Int32
}

func (m *mockWallet) CreditWallet(_ context.Context, c domain.WalletCredit) (*domain.WalletCreditResult, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if m.err != nil {
		return nil, m.err
	}
	if m.seen == nil {
		m.seen = map[string]string{}
	}
	if id, ok := m.seen[c.IdempotencyKey]; ok {
		return &domain.WalletCreditResult{Success: true, WalletTransactionID: id}, nil
	}
	id := "wtx-" + string(rune('0'+m.counter.Add(1)))
	m.seen[c.IdempotencyKey] = id
	return &domain.WalletCreditResult{Success: true, WalletTransactionID: id}, nil
}

func (m *mockWallet) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockSource struct {
	transactions []domain.Record
	orders       []domain.Record
	err          error
	calls        atomic.Int32
}

func (m *mockSource) ListTransactions(_ context.Context, _, _ time.Time) ([]domain.Record, error) {
	m.calls.Add(1)
	return m.transactions, m.err
}

func (m *mockSource) ListOrders(_ context.Context, _, _ time.Time) ([]domain.Record, error) {
	m.calls.Add(1)
	return m.orders, m.err
}
