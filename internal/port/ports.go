// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
)

// RecordSource returns transaction and order snapshots for analytics.
// A zero from or to leaves that side of the range open.
type RecordSource interface {
	ListTransactions(ctx context.Context, from, to time.Time) ([]domain.Record, error)
	ListOrders(ctx context.Context, from, to time.Time) ([]domain.Record, error)
}

// CreditRequestStore persists credit requests.
//
// UpdateCreditRequest is a conditional write: it succeeds only while the
// stored status still equals expected, and returns domain.ErrStatusChanged
// otherwise. Missing requests yield *domain.ErrNotFound.
type CreditRequestStore interface {
	GetCreditRequest(ctx context.Context, id string) (*domain.CreditRequest, error)
	ListCreditRequests(ctx context.Context, filter domain.CreditRequestFilter) ([]domain.CreditRequest, error)
	CreateCreditRequest(ctx context.Context, req *domain.CreditRequest) error
	UpdateCreditRequest(ctx context.Context, req *domain.CreditRequest, expected domain.CreditStatus) error
}

// WalletCreditor credits a user's wallet. Implementations must deduplicate
// on IdempotencyKey and return the original result for a repeated key.
type WalletCreditor interface {
	CreditWallet(ctx context.Context, credit domain.WalletCredit) (*domain.WalletCreditResult, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
