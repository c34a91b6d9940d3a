package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditWallet appends a credit entry to the wallet ledger. A repeated
// idempotency key returns the entry written the first time.
func (s *Store) CreditWallet(ctx context.Context, credit domain.WalletCredit) (*domain.WalletCreditResult, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.CreditWallet")
	defer span.End()

	if credit.UserID == "" {
		return nil, &domain.ErrValidation{Field: "user_id", Message: "required"}
	}
	if math.IsNaN(credit.Amount) || math.IsInf(credit.Amount, 0) || credit.Amount <= 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if credit.IdempotencyKey == "" {
		return nil, &domain.ErrValidation{Field: "idempotency_key", Message: "required"}
	}

	id := uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO wallet_transactions (id, user_id, amount, currency, reference, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		credit.UserID,
		decimal.NewFromFloat(credit.Amount).String(),
		credit.Currency,
		credit.Reference,
		credit.IdempotencyKey,
		toMillis(s.now()),
	)
	if err == nil {
		return &domain.WalletCreditResult{Success: true, WalletTransactionID: id}, nil
	}
	if !isUniqueViolation(err) {
		return nil, dbError("credit wallet", err)
	}

	var existing string
	err = s.queryRow(ctx,
		`SELECT id FROM wallet_transactions WHERE idempotency_key = ?`, credit.IdempotencyKey,
	).Scan(&existing)
	if err != nil {
		return nil, dbError("credit wallet replay", err)
	}
	return &domain.WalletCreditResult{Success: true, WalletTransactionID: existing}, nil
}

// WalletBalance sums the ledger entries of a user in one currency.
func (s *Store) WalletBalance(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	rows, err := s.query(ctx,
		`SELECT amount FROM wallet_transactions WHERE user_id = ? AND currency = ?`, userID, currency)
	if err != nil {
		return decimal.Zero, dbError("wallet balance", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, dbError("wallet balance", err)
		}
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("wallet entry amount %q: %w", raw, err)
		}
		total = total.Add(amt)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, dbError("wallet balance", err)
	}
	return total, nil
}

// WalletEntryCount returns how many ledger entries carry key (0 or 1).
func (s *Store) WalletEntryCount(ctx context.Context, key string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE idempotency_key = ?`, key).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, dbError("wallet entry count", err)
	}
	return n, nil
}

var _ port.WalletCreditor = (*Store)(nil)
