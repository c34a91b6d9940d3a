package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Records store: transactions and orders snapshots
// ============================================================

// supabaseRecord maps the transactions/orders columns. Timestamps are
// decoded leniently because legacy rows carry epoch numbers.
type supabaseRecord struct {
	ID              string           `json:"id"`
	CreatedAt       domain.Timestamp `json:"created_at"`
	TotalQty        *float64         `json:"total_qty"`
	TotalCost       *float64         `json:"total_cost"`
	NetAmount       *float64         `json:"net_amount"`
	Amount          *float64         `json:"amount"`
	Status          *string          `json:"status"`
	TransactionType *string          `json:"transaction_type"`
}

func (r supabaseRecord) toDomain() domain.Record {
	rec := domain.Record{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		TotalQty:  r.TotalQty,
		TotalCost: r.TotalCost,
		NetAmount: r.NetAmount,
		Amount:    r.Amount,
	}
	if r.Status != nil {
		rec.Status = *r.Status
	}
	if r.TransactionType != nil {
		rec.TransactionType = *r.TransactionType
	}
	return rec
}

// ListTransactions fetches transaction snapshots created in [from, to).
func (c *Client) ListTransactions(ctx context.Context, from, to time.Time) ([]domain.Record, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()

	records, err := c.listRecords(ctx, "transactions", from, to)
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, err
}

// ListOrders fetches order snapshots created in [from, to).
func (c *Client) ListOrders(ctx context.Context, from, to time.Time) ([]domain.Record, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOrders")
	defer span.End()

	records, err := c.listRecords(ctx, "orders", from, to)
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, err
}

func (c *Client) listRecords(ctx context.Context, table string, from, to time.Time) ([]domain.Record, error) {
	q := url.Values{}
	q.Set("select", "id,created_at,total_qty,total_cost,net_amount,amount,status,transaction_type")
	q.Set("order", "created_at.asc")
	rangeFilter(q, "created_at", from, to)
	path := table + "?" + q.Encode()

	var records []domain.Record
	err := c.call(ctx, table, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return err
		}
		var rows []supabaseRecord
		if !isEmptyArray(body) {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode %s: %w", table, err)
			}
		}
		records = make([]domain.Record, 0, len(rows))
		for _, r := range rows {
			records = append(records, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

var _ port.RecordSource = (*Client)(nil)
