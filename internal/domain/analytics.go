package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Records (transactions and orders)
// ============================================================

// RecordKind selects the collection a record snapshot was read from.
type RecordKind string

const (
	RecordKindTransactions RecordKind = "transactions"
	RecordKindOrders       RecordKind = "orders"
)

// TransactionTypeFishermanToAssociation marks eel purchases from fishermen.
// It is the filter used for trading volume and price-per-kg KPIs.
const TransactionTypeFishermanToAssociation = "fisherman_to_association"

// Record is a read-only snapshot of a transaction or order document.
// Numeric fields are optional because the documents come in several shapes;
// the aggregation core substitutes zero for a missing value.
type Record struct {
	ID              string    `json:"id"`
	CreatedAt       Timestamp `json:"createdAt"`
	TotalQty        *float64  `json:"totalQty,omitempty"`
	TotalCost       *float64  `json:"totalCost,omitempty"`
	NetAmount       *float64  `json:"netAmount,omitempty"`
	Amount          *float64  `json:"amount,omitempty"`
	Status          string    `json:"status,omitempty"`
	TransactionType string    `json:"transaction_type,omitempty"`
}

// Qty returns the record quantity in kg, zero when absent.
func (r Record) Qty() float64 {
	if r.TotalQty != nil {
		return *r.TotalQty
	}
	return 0
}

// Money returns the first monetary field present: totalCost, netAmount, amount.
func (r Record) Money() float64 {
	switch {
	case r.TotalCost != nil:
		return *r.TotalCost
	case r.NetAmount != nil:
		return *r.NetAmount
	case r.Amount != nil:
		return *r.Amount
	}
	return 0
}

// Timestamp is a creation time decoded leniently from the shapes the
// document store produces: RFC3339 strings, plain dates, unix seconds or
// milliseconds, and {"seconds":..,"nanoseconds":..} objects.
// Anything else decodes to the zero time, which marks the record as undated.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Valid reports whether the timestamp carries a usable time.
func (t Timestamp) Valid() bool {
	return !t.IsZero()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		t.Time = parseTimeString(s)
	case '{':
		var obj struct {
			Seconds     *int64 `json:"seconds"`
			Nanoseconds int64  `json:"nanoseconds"`
			UnderSecs   *int64 `json:"_seconds"`
			UnderNanos  int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		switch {
		case obj.Seconds != nil:
			t.Time = time.Unix(*obj.Seconds, obj.Nanoseconds).UTC()
		case obj.UnderSecs != nil:
			t.Time = time.Unix(*obj.UnderSecs, obj.UnderNanos).UTC()
		}
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return nil
		}
		t.Time = fromEpoch(n)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(n)
	}
	return time.Time{}
}

// fromEpoch treats values above 1e11 as milliseconds.
func fromEpoch(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e11 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

// ParseTimestamp decodes a raw string value with the same rules as JSON strings.
func ParseTimestamp(s string) Timestamp {
	return Timestamp{Time: parseTimeString(s)}
}

// ============================================================
// Buckets & Stats
// ============================================================

// Granularity is the period size used for bucketing.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
	GranularityYearly  Granularity = "yearly"
)

// Bucket is one aggregation cell of a period series.
type Bucket struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Count       int     `json:"count"`
	TotalQty    float64 `json:"totalQty"`
	TotalAmount float64 `json:"totalAmount"`
}

// Stats holds scalar KPIs derived from a record set.
type Stats struct {
	Total              int                `json:"total"`
	TotalAmount        float64            `json:"totalAmount"`
	TotalQty           float64            `json:"totalQty"`
	Average            float64            `json:"average"`
	ByStatus           map[string]int     `json:"byStatus"`
	PercentageByStatus map[string]float64 `json:"percentageByStatus"`
}

// ============================================================
// Dashboard API types
// ============================================================

// SeriesResponse is returned by GET /v1/analytics/series.
type SeriesResponse struct {
	Kind            RecordKind  `json:"kind"`
	Granularity     Granularity `json:"granularity"`
	TransactionType string      `json:"transactionType,omitempty"`
	Buckets         []Bucket    `json:"buckets"`
}

// TradingSummary describes eel purchases from fishermen.
type TradingSummary struct {
	Stats
	AveragePricePerKg float64 `json:"averagePricePerKg"`
}

// DashboardSummary is returned by GET /v1/analytics/dashboard.
type DashboardSummary struct {
	Granularity  Granularity     `json:"granularity"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Orders       Stats           `json:"orders"`
	Trading      *TradingSummary `json:"trading"`
	OrderSeries  []Bucket        `json:"orderSeries"`
	VolumeSeries []Bucket        `json:"volumeSeries"`
}
