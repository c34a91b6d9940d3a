package supabase

import (
	"net/url"
	"time"
)

// ============================================================
// PostgREST query helpers
// ============================================================

// eq builds an eq. filter value with the operand escaped.
func eq(value string) string {
	return "eq." + url.QueryEscape(value)
}

// rangeFilter appends created_at bounds; zero times leave the side open.
func rangeFilter(q url.Values, column string, from, to time.Time) {
	if !from.IsZero() {
		q.Add(column, "gte."+from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		q.Add(column, "lt."+to.UTC().Format(time.RFC3339Nano))
	}
}

func isEmptyArray(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\n', '\r', '\t', '[', ']':
			continue
		default:
			return false
		}
	}
	return true
}
