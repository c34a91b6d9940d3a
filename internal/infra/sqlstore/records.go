package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/port"
)

const recordColumns = `id, created_at, total_qty, total_cost, net_amount, amount, status, transaction_type`

// ListTransactions returns transaction snapshots created in [from, to).
func (s *Store) ListTransactions(ctx context.Context, from, to time.Time) ([]domain.Record, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListTransactions")
	defer span.End()

	return s.listRecords(ctx, domain.RecordKindTransactions, from, to)
}

// ListOrders returns order snapshots created in [from, to).
func (s *Store) ListOrders(ctx context.Context, from, to time.Time) ([]domain.Record, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListOrders")
	defer span.End()

	return s.listRecords(ctx, domain.RecordKindOrders, from, to)
}

// InsertRecord stores one transaction or order snapshot. Existing IDs are
// overwritten so imports can be re-run.
func (s *Store) InsertRecord(ctx context.Context, kind domain.RecordKind, r domain.Record) error {
	table, err := recordTable(kind)
	if err != nil {
		return err
	}
	var createdAt sql.NullInt64
	if r.CreatedAt.Valid() {
		createdAt = sql.NullInt64{Int64: toMillis(r.CreatedAt.Time), Valid: true}
	}
	_, err = s.exec(ctx,
		`INSERT INTO `+table+` (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   created_at = excluded.created_at,
		   total_qty = excluded.total_qty,
		   total_cost = excluded.total_cost,
		   net_amount = excluded.net_amount,
		   amount = excluded.amount,
		   status = excluded.status,
		   transaction_type = excluded.transaction_type`,
		r.ID,
		createdAt,
		nullFloat(r.TotalQty),
		nullFloat(r.TotalCost),
		nullFloat(r.NetAmount),
		nullFloat(r.Amount),
		r.Status,
		r.TransactionType,
	)
	if err != nil {
		return dbError("insert "+string(kind), err)
	}
	return nil
}

func (s *Store) listRecords(ctx context.Context, kind domain.RecordKind, from, to time.Time) ([]domain.Record, error) {
	table, err := recordTable(kind)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(from))
	}
	if !to.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, toMillis(to))
	}
	q := `SELECT ` + recordColumns + ` FROM ` + table
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, dbError("list "+string(kind), err)
	}
	defer rows.Close()

	out := make([]domain.Record, 0)
	for rows.Next() {
		var (
			r         domain.Record
			createdAt sql.NullInt64
			qty       sql.NullFloat64
			totalCost sql.NullFloat64
			netAmount sql.NullFloat64
			amount    sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &createdAt, &qty, &totalCost, &netAmount, &amount, &r.Status, &r.TransactionType); err != nil {
			return nil, dbError("scan "+string(kind), err)
		}
		if createdAt.Valid {
			r.CreatedAt = domain.NewTimestamp(fromMillis(createdAt.Int64))
		}
		r.TotalQty = floatPtr(qty)
		r.TotalCost = floatPtr(totalCost)
		r.NetAmount = floatPtr(netAmount)
		r.Amount = floatPtr(amount)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate "+string(kind), err)
	}
	return out, nil
}

func recordTable(kind domain.RecordKind) (string, error) {
	switch kind {
	case domain.RecordKindTransactions:
		return "transactions", nil
	case domain.RecordKindOrders:
		return "orders", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

var _ port.RecordSource = (*Store)(nil)
