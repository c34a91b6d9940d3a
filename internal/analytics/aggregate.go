package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Chart size bounds applied after sorting.
const (
	MaxDailyBuckets  = 30
	MaxWeeklyBuckets = 12
)

type options struct {
	filter        func(domain.Record) bool
	separateYears bool
	location      *time.Location
}

// Option configures Aggregate.
type Option func(*options)

// WithFilter keeps only records for which pred returns true.
func WithFilter(pred func(domain.Record) bool) Option {
	return func(o *options) { o.filter = pred }
}

// WithSeparateYears keys monthly buckets by YYYY-MM instead of the month
// abbreviation, so the same month of different years stays apart.
func WithSeparateYears() Option {
	return func(o *options) { o.separateYears = true }
}

// WithLocation converts timestamps into loc before bucketing.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

type accumulator struct {
	key     string
	sortKey string
	label   string
	count   int
	qty     decimal.Decimal
	amount  decimal.Decimal
}

// Aggregate folds records into per-period buckets sorted chronologically.
// Records without a usable timestamp are skipped. Daily series keep the
// last MaxDailyBuckets buckets and weekly series the last MaxWeeklyBuckets.
func Aggregate(records []domain.Record, g domain.Granularity, opts ...Option) []domain.Bucket {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	legacyMonthly := g == domain.GranularityMonthly && !o.separateYears

	acc := make(map[string]*accumulator)
	for _, r := range records {
		if o.filter != nil && !o.filter(r) {
			continue
		}
		if !r.CreatedAt.Valid() {
			continue
		}
		t := r.CreatedAt.Time
		if o.location != nil {
			t = t.In(o.location)
		}
		sortKey, label := BucketKeyFor(t, g)
		if sortKey == "" {
			continue
		}

		key := sortKey
		if legacyMonthly {
			key = label
		}
		a, ok := acc[key]
		if !ok {
			a = &accumulator{key: key, sortKey: sortKey, label: label}
			acc[key] = a
		}
		a.count++
		a.qty = a.qty.Add(toDecimal(r.Qty()))
		a.amount = a.amount.Add(toDecimal(r.Money()))
	}

	sorted := make([]*accumulator, 0, len(acc))
	for _, a := range acc {
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if legacyMonthly {
			return monthOrder[sorted[i].key] < monthOrder[sorted[j].key]
		}
		return sorted[i].sortKey < sorted[j].sortKey
	})

	switch g {
	case domain.GranularityDaily:
		sorted = lastN(sorted, MaxDailyBuckets)
	case domain.GranularityWeekly:
		sorted = lastN(sorted, MaxWeeklyBuckets)
	}

	buckets := make([]domain.Bucket, 0, len(sorted))
	for _, a := range sorted {
		buckets = append(buckets, domain.Bucket{
			Key:         a.key,
			Label:       a.label,
			Count:       a.count,
			TotalQty:    a.qty.InexactFloat64(),
			TotalAmount: a.amount.InexactFloat64(),
		})
	}
	return buckets
}

func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// toDecimal coerces non-finite values to zero.
func toDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
