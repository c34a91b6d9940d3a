package analytics_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/analytics"
	"github.com/boddenberg/eel-admin-bfa/internal/domain"

	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func at(y int, m time.Month, d int) domain.Timestamp {
	return domain.NewTimestamp(time.Date(y, m, d, 12, 0, 0, 0, time.UTC))
}

func TestAggregate_MonthlyScenario(t *testing.T) {
	records := []domain.Record{
		{ID: "t1", CreatedAt: at(2025, time.January, 5), TotalQty: f(10)},
		{ID: "t2", CreatedAt: at(2025, time.January, 20), TotalQty: f(5)},
		{ID: "t3", CreatedAt: at(2025, time.February, 1), TotalQty: f(7)},
	}

	buckets := analytics.Aggregate(records, domain.GranularityMonthly)

	require.Len(t, buckets, 2)
	require.Equal(t, "Jan", buckets[0].Label)
	require.Equal(t, 2, buckets[0].Count)
	require.Equal(t, 15.0, buckets[0].TotalQty)
	require.Equal(t, "Feb", buckets[1].Label)
	require.Equal(t, 1, buckets[1].Count)
	require.Equal(t, 7.0, buckets[1].TotalQty)
}

func TestAggregate_AmountFallbackChain(t *testing.T) {
	records := []domain.Record{
		{CreatedAt: at(2025, time.March, 1), TotalCost: f(100), NetAmount: f(1), Amount: f(2)},
		{CreatedAt: at(2025, time.March, 2), NetAmount: f(20), Amount: f(3)},
		{CreatedAt: at(2025, time.March, 3), Amount: f(4)},
		{CreatedAt: at(2025, time.March, 4)},
	}

	buckets := analytics.Aggregate(records, domain.GranularityYearly)

	require.Len(t, buckets, 1)
	require.Equal(t, "2025", buckets[0].Key)
	require.Equal(t, 4, buckets[0].Count)
	require.Equal(t, 124.0, buckets[0].TotalAmount)
	require.Equal(t, 0.0, buckets[0].TotalQty)
}

func TestAggregate_SkipsUndatedRecords(t *testing.T) {
	records := []domain.Record{
		{ID: "ok", CreatedAt: at(2025, time.May, 1), TotalQty: f(3), Amount: f(30)},
		{ID: "missing", TotalQty: f(100), Amount: f(1000)},
		{ID: "garbage", CreatedAt: domain.ParseTimestamp("not a date"), TotalQty: f(100)},
	}

	buckets := analytics.Aggregate(records, domain.GranularityDaily)

	require.Len(t, buckets, 1)
	require.Equal(t, 1, buckets[0].Count)
	require.Equal(t, 3.0, buckets[0].TotalQty)
	require.Equal(t, 30.0, buckets[0].TotalAmount)
}

func TestAggregate_Filter(t *testing.T) {
	records := []domain.Record{
		{CreatedAt: at(2025, time.June, 1), TotalQty: f(8), TransactionType: domain.TransactionTypeFishermanToAssociation},
		{CreatedAt: at(2025, time.June, 2), TotalQty: f(50), TransactionType: "association_to_buyer"},
	}

	buckets := analytics.Aggregate(records, domain.GranularityMonthly,
		analytics.WithFilter(analytics.FilterByType(domain.TransactionTypeFishermanToAssociation)))

	require.Len(t, buckets, 1)
	require.Equal(t, 8.0, buckets[0].TotalQty)
}

func TestAggregate_LegacyMonthlyCollapsesYears(t *testing.T) {
	records := []domain.Record{
		{CreatedAt: at(2024, time.December, 10), TotalQty: f(1)},
		{CreatedAt: at(2024, time.January, 10), TotalQty: f(2)},
		{CreatedAt: at(2025, time.January, 10), TotalQty: f(4)},
		{CreatedAt: at(2025, time.March, 10), TotalQty: f(8)},
	}

	buckets := analytics.Aggregate(records, domain.GranularityMonthly)

	require.Equal(t, []string{"Jan", "Mar", "Dec"}, labels(buckets))
	require.Equal(t, 2, buckets[0].Count)
	require.Equal(t, 6.0, buckets[0].TotalQty)
}

func TestAggregate_SeparateYearsKeepsChronology(t *testing.T) {
	records := []domain.Record{
		{CreatedAt: at(2025, time.January, 10), TotalQty: f(4)},
		{CreatedAt: at(2024, time.December, 10), TotalQty: f(1)},
		{CreatedAt: at(2024, time.January, 10), TotalQty: f(2)},
	}

	buckets := analytics.Aggregate(records, domain.GranularityMonthly, analytics.WithSeparateYears())

	require.Equal(t, []string{"2024-01", "2024-12", "2025-01"}, keys(buckets))
	require.Equal(t, []string{"Jan", "Dec", "Jan"}, labels(buckets))
}

func TestAggregate_DailyTruncatedToLast30(t *testing.T) {
	start := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	var records []domain.Record
	for i := 0; i < 40; i++ {
		records = append(records, domain.Record{CreatedAt: domain.NewTimestamp(start.AddDate(0, 0, i))})
	}

	buckets := analytics.Aggregate(records, domain.GranularityDaily)

	require.Len(t, buckets, analytics.MaxDailyBuckets)
	require.Equal(t, "2025-01-11", buckets[0].Key)
	require.Equal(t, "2025-02-09", buckets[len(buckets)-1].Key)
}

func TestAggregate_WeeklyTruncatedToLast12(t *testing.T) {
	start := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)
	var records []domain.Record
	for i := 0; i < 20; i++ {
		records = append(records, domain.Record{CreatedAt: domain.NewTimestamp(start.AddDate(0, 0, 7*i+2))})
	}

	buckets := analytics.Aggregate(records, domain.GranularityWeekly)

	require.Len(t, buckets, analytics.MaxWeeklyBuckets)
	require.Equal(t, "2025-03-02", buckets[0].Key)
}

func TestAggregate_MonthlyAndYearlyNotTruncated(t *testing.T) {
	var records []domain.Record
	for y := 2000; y < 2040; y++ {
		records = append(records, domain.Record{CreatedAt: at(y, time.June, 1)})
	}

	require.Len(t, analytics.Aggregate(records, domain.GranularityYearly), 40)
	require.Len(t, analytics.Aggregate(records, domain.GranularityMonthly, analytics.WithSeparateYears()), 40)
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	records := sampleRecords()
	want := analytics.Aggregate(records, domain.GranularityWeekly)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		shuffled := append([]domain.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		require.Equal(t, want, analytics.Aggregate(shuffled, domain.GranularityWeekly))
	}
}

func TestAggregate_SumConservation(t *testing.T) {
	records := sampleRecords()
	records = append(records, domain.Record{TotalQty: f(999), Amount: f(999)}) // undated

	for _, g := range []domain.Granularity{domain.GranularityMonthly, domain.GranularityYearly} {
		buckets := analytics.Aggregate(records, g)

		count, qty, amount := 0, 0.0, 0.0
		for _, b := range buckets {
			count += b.Count
			qty += b.TotalQty
			amount += b.TotalAmount
		}
		require.Equal(t, len(records)-1, count)
		require.InDelta(t, 0.1+0.2+0.7+1.5, qty, 1e-9)
		require.InDelta(t, 10.1+20.2+30.3+40.4, amount, 1e-9)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	buckets := analytics.Aggregate(nil, domain.GranularityDaily)
	require.NotNil(t, buckets)
	require.Empty(t, buckets)
}

func TestAggregate_WithLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	records := []domain.Record{
		{CreatedAt: domain.NewTimestamp(time.Date(2025, time.January, 31, 20, 0, 0, 0, time.UTC))},
	}

	buckets := analytics.Aggregate(records, domain.GranularityMonthly, analytics.WithLocation(seoul))
	require.Equal(t, "Feb", buckets[0].Key)
}

func sampleRecords() []domain.Record {
	return []domain.Record{
		{CreatedAt: at(2025, time.January, 2), TotalQty: f(0.1), TotalCost: f(10.1)},
		{CreatedAt: at(2025, time.January, 9), TotalQty: f(0.2), NetAmount: f(20.2)},
		{CreatedAt: at(2025, time.February, 14), TotalQty: f(0.7), Amount: f(30.3)},
		{CreatedAt: at(2024, time.November, 30), TotalQty: f(1.5), TotalCost: f(40.4)},
	}
}

func keys(buckets []domain.Bucket) []string {
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Key)
	}
	return out
}

func labels(buckets []domain.Bucket) []string {
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Label)
	}
	return out
}
