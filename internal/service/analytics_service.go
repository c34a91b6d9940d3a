// Package service provides the business logic layer (use cases).
// AnalyticsService serves the dashboard series and KPIs; CreditService
// drives the credit request workflow.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/analytics"
	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var analyticsTracer = otel.Tracer("service/analytics")

const analyticsCache = "analytics"

// SeriesQuery selects a bucketed series.
type SeriesQuery struct {
	Kind            domain.RecordKind
	Granularity     string
	TransactionType string
	SeparateYears   bool
	From            time.Time
	To              time.Time
}

// StatsQuery selects a KPI summary.
type StatsQuery struct {
	Kind            domain.RecordKind
	TransactionType string
	From            time.Time
	To              time.Time
}

// AnalyticsService reads record snapshots and folds them into dashboard views.
type AnalyticsService struct {
	source   port.RecordSource
	cache    port.Cache[any]
	bulkhead *resilience.Bulkhead
	location *time.Location
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAnalyticsService creates the analytics service. A nil location means UTC.
func NewAnalyticsService(
	source port.RecordSource,
	cache port.Cache[any],
	bulkhead *resilience.Bulkhead,
	location *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AnalyticsService {
	if location == nil {
		location = time.UTC
	}
	return &AnalyticsService{
		source:   source,
		cache:    cache,
		bulkhead: bulkhead,
		location: location,
		metrics:  metrics,
		logger:   logger,
	}
}

// ParseKind validates a record kind; empty selects transactions.
func ParseKind(s string) (domain.RecordKind, error) {
	switch domain.RecordKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", domain.RecordKindTransactions:
		return domain.RecordKindTransactions, nil
	case domain.RecordKindOrders:
		return domain.RecordKindOrders, nil
	}
	return "", &domain.ErrValidation{Field: "kind", Message: "must be transactions or orders"}
}

// Series returns the bucketed series for q.
func (s *AnalyticsService) Series(ctx context.Context, q SeriesQuery) (*domain.SeriesResponse, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.Series")
	defer span.End()

	g, err := analytics.ParseGranularity(q.Granularity)
	if err != nil {
		return nil, err
	}
	if q.Kind == "" {
		q.Kind = domain.RecordKindTransactions
	}
	span.SetAttributes(
		attribute.String("analytics.kind", string(q.Kind)),
		attribute.String("analytics.granularity", string(g)),
	)

	key := fmt.Sprintf("series:%s:%s:%s:%t:%s", q.Kind, g, q.TransactionType, q.SeparateYears, rangeKey(q.From, q.To))
	if cached, ok := s.cached(key); ok {
		if resp, ok := cached.(*domain.SeriesResponse); ok {
			return resp, nil
		}
	}

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("analytics_series", time.Since(start)) }()

	records, err := s.fetch(ctx, q.Kind, q.From, q.To)
	if err != nil {
		return nil, err
	}

	opts := []analytics.Option{analytics.WithLocation(s.location)}
	if q.TransactionType != "" {
		opts = append(opts, analytics.WithFilter(analytics.FilterByType(q.TransactionType)))
	}
	if q.SeparateYears {
		opts = append(opts, analytics.WithSeparateYears())
	}

	resp := &domain.SeriesResponse{
		Kind:            q.Kind,
		Granularity:     g,
		TransactionType: q.TransactionType,
		Buckets:         analytics.Aggregate(records, g, opts...),
	}
	s.cache.Set(key, resp)
	return resp, nil
}

// Stats returns KPIs for q. Orders average over completed orders only.
func (s *AnalyticsService) Stats(ctx context.Context, q StatsQuery) (*domain.Stats, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.Stats")
	defer span.End()

	if q.Kind == "" {
		q.Kind = domain.RecordKindTransactions
	}
	span.SetAttributes(attribute.String("analytics.kind", string(q.Kind)))

	key := fmt.Sprintf("stats:%s:%s:%s", q.Kind, q.TransactionType, rangeKey(q.From, q.To))
	if cached, ok := s.cached(key); ok {
		if stats, ok := cached.(*domain.Stats); ok {
			return stats, nil
		}
	}

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("analytics_stats", time.Since(start)) }()

	records, err := s.fetch(ctx, q.Kind, q.From, q.To)
	if err != nil {
		return nil, err
	}
	if q.TransactionType != "" {
		records = analytics.Filter(records, analytics.FilterByType(q.TransactionType))
	}

	var stats domain.Stats
	if q.Kind == domain.RecordKindOrders {
		stats = analytics.SummarizeOrders(records)
	} else {
		stats = analytics.Summarize(records)
	}
	s.cache.Set(key, &stats)
	return &stats, nil
}

// Dashboard fetches transactions and orders concurrently and returns the
// order KPIs, eel trading KPIs and the revenue and volume series.
func (s *AnalyticsService) Dashboard(ctx context.Context, granularity string) (*domain.DashboardSummary, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.Dashboard")
	defer span.End()

	g, err := analytics.ParseGranularity(granularity)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("analytics.granularity", string(g)))

	key := "dashboard:" + string(g)
	if cached, ok := s.cached(key); ok {
		if summary, ok := cached.(*domain.DashboardSummary); ok {
			return summary, nil
		}
	}

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("analytics_dashboard", time.Since(start)) }()

	var transactions, orders []domain.Record
	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		transactions, err = s.fetch(gCtx, domain.RecordKindTransactions, time.Time{}, time.Time{})
		return err
	})
	eg.Go(func() error {
		var err error
		orders, err = s.fetch(gCtx, domain.RecordKindOrders, time.Time{}, time.Time{})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	trading := analytics.SummarizeTrading(transactions)
	loc := analytics.WithLocation(s.location)
	summary := &domain.DashboardSummary{
		Granularity: g,
		GeneratedAt: time.Now().In(s.location),
		Orders:      analytics.SummarizeOrders(orders),
		Trading:     &trading,
		OrderSeries: analytics.Aggregate(orders, g, loc),
		VolumeSeries: analytics.Aggregate(transactions, g, loc,
			analytics.WithFilter(analytics.FilterByType(domain.TransactionTypeFishermanToAssociation))),
	}

	s.logger.Debug("dashboard computed",
		zap.String("granularity", string(g)),
		zap.Int("transactions", len(transactions)),
		zap.Int("orders", len(orders)),
	)
	s.cache.Set(key, summary)
	return summary, nil
}

func (s *AnalyticsService) cached(key string) (any, bool) {
	v, ok := s.cache.Get(key)
	if ok {
		s.metrics.IncrCacheHit(analyticsCache)
		return v, true
	}
	s.metrics.IncrCacheMiss(analyticsCache)
	return nil, false
}

// fetch reads one record kind while holding a bulkhead slot.
func (s *AnalyticsService) fetch(ctx context.Context, kind domain.RecordKind, from, to time.Time) ([]domain.Record, error) {
	var records []domain.Record
	err := s.bulkhead.Do(ctx, func() error {
		var err error
		switch kind {
		case domain.RecordKindOrders:
			records, err = s.source.ListOrders(ctx, from, to)
		default:
			records, err = s.source.ListTransactions(ctx, from, to)
		}
		return err
	})
	if err != nil {
		s.logger.Error("failed to fetch records",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("records")
		return nil, fmt.Errorf("%s fetch: %w", kind, err)
	}
	return records, nil
}

func rangeKey(from, to time.Time) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return format(from) + ".." + format(to)
}
