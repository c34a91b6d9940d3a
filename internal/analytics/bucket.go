// Package analytics turns record snapshots into period-bucketed series and
// scalar KPIs for the admin dashboard. Everything here is pure: no I/O, no
// shared state, safe for concurrent use.
package analytics

import (
	"strings"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
)

// monthOrder is the fixed Jan..Dec ordering used for legacy monthly series,
// whose buckets are keyed by month abbreviation only.
var monthOrder = map[string]int{
	"Jan": 1, "Feb": 2, "Mar": 3, "Apr": 4, "May": 5, "Jun": 6,
	"Jul": 7, "Aug": 8, "Sep": 9, "Oct": 10, "Nov": 11, "Dec": 12,
}

// ParseGranularity validates a granularity string. Empty means monthly.
func ParseGranularity(s string) (domain.Granularity, error) {
	switch g := domain.Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return domain.GranularityMonthly, nil
	case domain.GranularityDaily, domain.GranularityWeekly, domain.GranularityMonthly, domain.GranularityYearly:
		return g, nil
	}
	return "", &domain.ErrValidation{Field: "granularity", Message: "must be daily, weekly, monthly or yearly"}
}

// BucketKeyFor maps a timestamp to the sort key and display label of its
// period. Weeks start on Sunday. The result is computed in t's location.
// An unknown granularity yields empty strings.
func BucketKeyFor(t time.Time, g domain.Granularity) (sortKey, label string) {
	switch g {
	case domain.GranularityDaily:
		return t.Format("2006-01-02"), t.Format("Jan 2")
	case domain.GranularityWeekly:
		anchor := weekStart(t)
		return anchor.Format("2006-01-02"), anchor.Format("Jan 2")
	case domain.GranularityMonthly:
		return t.Format("2006-01"), t.Format("Jan")
	case domain.GranularityYearly:
		y := t.Format("2006")
		return y, y
	}
	return "", ""
}

// weekStart returns midnight of the Sunday on or before t.
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}
