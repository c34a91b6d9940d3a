package analytics

import (
	"strings"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// UnknownStatus groups records that carry no status.
const UnknownStatus = "unknown"

// completedOrderStatuses are the order states that count toward average order value.
var completedOrderStatuses = map[string]bool{
	"completed": true,
	"delivered": true,
	"processed": true,
}

type summaryOptions struct {
	averageOver func(domain.Record) bool
}

// SummaryOption configures Summarize.
type SummaryOption func(*summaryOptions)

// AverageOver divides the total amount by the number of records matching
// pred instead of by all records.
func AverageOver(pred func(domain.Record) bool) SummaryOption {
	return func(o *summaryOptions) { o.averageOver = pred }
}

// CompletedOrder reports whether an order is in a completed state.
func CompletedOrder(r domain.Record) bool {
	return completedOrderStatuses[strings.ToLower(r.Status)]
}

// FilterByType matches records of one transaction_type.
func FilterByType(transactionType string) func(domain.Record) bool {
	return func(r domain.Record) bool {
		return r.TransactionType == transactionType
	}
}

// Filter returns the records matching pred. A nil pred keeps everything.
func Filter(records []domain.Record, pred func(domain.Record) bool) []domain.Record {
	if pred == nil {
		return records
	}
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Summarize derives totals, the conditioned average and the status
// distribution of records. Percentages are rounded to one decimal; with no
// records every value is zero.
func Summarize(records []domain.Record, opts ...SummaryOption) domain.Stats {
	var o summaryOptions
	for _, opt := range opts {
		opt(&o)
	}

	stats := domain.Stats{
		Total:              len(records),
		ByStatus:           make(map[string]int),
		PercentageByStatus: make(map[string]float64),
	}

	amount, qty := decimal.Zero, decimal.Zero
	averageBase := 0
	for _, r := range records {
		amount = amount.Add(toDecimal(r.Money()))
		qty = qty.Add(toDecimal(r.Qty()))

		status := r.Status
		if status == "" {
			status = UnknownStatus
		}
		stats.ByStatus[status]++

		if o.averageOver == nil || o.averageOver(r) {
			averageBase++
		}
	}
	stats.TotalAmount = amount.InexactFloat64()
	stats.TotalQty = qty.InexactFloat64()

	if averageBase > 0 {
		stats.Average = amount.Div(decimal.NewFromInt(int64(averageBase))).InexactFloat64()
	}

	if stats.Total > 0 {
		total := decimal.NewFromInt(int64(stats.Total))
		for status, count := range stats.ByStatus {
			stats.PercentageByStatus[status] = decimal.NewFromInt(int64(count)).
				Mul(decimal.NewFromInt(100)).
				Div(total).
				Round(1).
				InexactFloat64()
		}
	}
	return stats
}

// SummarizeOrders averages over completed orders only.
func SummarizeOrders(records []domain.Record) domain.Stats {
	return Summarize(records, AverageOver(CompletedOrder))
}

// PricePerKg is the total amount divided by the total quantity, zero when
// no quantity was recorded.
func PricePerKg(records []domain.Record) float64 {
	amount, qty := decimal.Zero, decimal.Zero
	for _, r := range records {
		amount = amount.Add(toDecimal(r.Money()))
		qty = qty.Add(toDecimal(r.Qty()))
	}
	if qty.IsZero() {
		return 0
	}
	return amount.Div(qty).InexactFloat64()
}

// SummarizeTrading summarizes eel purchases from fishermen.
func SummarizeTrading(records []domain.Record) domain.TradingSummary {
	trades := Filter(records, FilterByType(domain.TransactionTypeFishermanToAssociation))
	return domain.TradingSummary{
		Stats:             Summarize(trades),
		AveragePricePerKg: PricePerKg(trades),
	}
}
