package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/port"
)

const creditRequestColumns = `id, status, amount, currency, user_id, account_details,
       notes, rejection_reason, transaction_reference, reviewed_by,
       processed_at, processed_by, wallet_transaction_id, submitted_at, updated_at`

// DefaultListLimit bounds ListCreditRequests when the filter sets no limit.
const DefaultListLimit = 200

// GetCreditRequest returns one credit request by ID.
func (s *Store) GetCreditRequest(ctx context.Context, id string) (*domain.CreditRequest, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.GetCreditRequest")
	defer span.End()

	row := s.queryRow(ctx, `SELECT `+creditRequestColumns+` FROM credit_requests WHERE id = ?`, id)
	req, err := scanCreditRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "credit request", ID: id}
	}
	if err != nil {
		return nil, dbError("get credit request", err)
	}
	return req, nil
}

// ListCreditRequests returns requests matching filter, newest submission first.
func (s *Store) ListCreditRequests(ctx context.Context, filter domain.CreditRequestFilter) ([]domain.CreditRequest, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListCreditRequests")
	defer span.End()

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, toMillis(filter.UpdatedBefore))
	}

	q := `SELECT ` + creditRequestColumns + ` FROM credit_requests`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q += ` ORDER BY submitted_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, dbError("list credit requests", err)
	}
	defer rows.Close()

	out := make([]domain.CreditRequest, 0)
	for rows.Next() {
		req, err := scanCreditRequest(rows)
		if err != nil {
			return nil, dbError("scan credit request", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate credit requests", err)
	}
	return out, nil
}

// CreateCreditRequest inserts a new request. A duplicate ID is a validation error.
func (s *Store) CreateCreditRequest(ctx context.Context, req *domain.CreditRequest) error {
	ctx, span := tracer.Start(ctx, "sqlstore.CreateCreditRequest")
	defer span.End()

	details, err := encodeAccountDetails(req.AccountDetails)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		`INSERT INTO credit_requests (`+creditRequestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		string(req.Status),
		nullFloat(req.Amount),
		req.Currency,
		req.UserID,
		details,
		req.Notes,
		req.RejectionReason,
		req.TransactionReference,
		req.ReviewedBy,
		nullMillis(req.ProcessedAt),
		req.ProcessedBy,
		req.WalletTransactionID,
		toMillis(req.SubmittedAt),
		toMillis(req.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrValidation{Field: "id", Message: "credit request already exists"}
		}
		return dbError("create credit request", err)
	}
	return nil
}

// UpdateCreditRequest writes every mutable field of req, but only while the
// stored status still equals expected.
func (s *Store) UpdateCreditRequest(ctx context.Context, req *domain.CreditRequest, expected domain.CreditStatus) error {
	ctx, span := tracer.Start(ctx, "sqlstore.UpdateCreditRequest")
	defer span.End()

	details, err := encodeAccountDetails(req.AccountDetails)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx,
		`UPDATE credit_requests
		    SET status = ?, amount = ?, currency = ?, user_id = ?, account_details = ?,
		        notes = ?, rejection_reason = ?, transaction_reference = ?, reviewed_by = ?,
		        processed_at = ?, processed_by = ?, wallet_transaction_id = ?, updated_at = ?
		  WHERE id = ? AND status = ?`,
		string(req.Status),
		nullFloat(req.Amount),
		req.Currency,
		req.UserID,
		details,
		req.Notes,
		req.RejectionReason,
		req.TransactionReference,
		req.ReviewedBy,
		nullMillis(req.ProcessedAt),
		req.ProcessedBy,
		req.WalletTransactionID,
		toMillis(req.UpdatedAt),
		req.ID,
		string(expected),
	)
	if err != nil {
		return dbError("update credit request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("update credit request", err)
	}
	if n == 1 {
		return nil
	}

	var found int
	err = s.queryRow(ctx, `SELECT 1 FROM credit_requests WHERE id = ?`, req.ID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ErrNotFound{Resource: "credit request", ID: req.ID}
	}
	if err != nil {
		return dbError("update credit request", err)
	}
	return domain.ErrStatusChanged
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCreditRequest(row scanner) (*domain.CreditRequest, error) {
	var (
		req         domain.CreditRequest
		status      string
		amount      sql.NullFloat64
		details     sql.NullString
		processedAt sql.NullInt64
		submittedAt int64
		updatedAt   int64
	)
	err := row.Scan(
		&req.ID,
		&status,
		&amount,
		&req.Currency,
		&req.UserID,
		&details,
		&req.Notes,
		&req.RejectionReason,
		&req.TransactionReference,
		&req.ReviewedBy,
		&processedAt,
		&req.ProcessedBy,
		&req.WalletTransactionID,
		&submittedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.CreditStatus(status)
	req.Amount = floatPtr(amount)
	if details.Valid && details.String != "" {
		var ad domain.AccountDetails
		if err := json.Unmarshal([]byte(details.String), &ad); err != nil {
			return nil, fmt.Errorf("decode account_details: %w", err)
		}
		req.AccountDetails = &ad
	}
	if processedAt.Valid {
		t := fromMillis(processedAt.Int64)
		req.ProcessedAt = &t
	}
	req.SubmittedAt = fromMillis(submittedAt)
	req.UpdatedAt = fromMillis(updatedAt)
	return &req, nil
}

func encodeAccountDetails(ad *domain.AccountDetails) (sql.NullString, error) {
	if ad == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ad)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode account_details: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

var _ port.CreditRequestStore = (*Store)(nil)
