// Package activity provides the activity store interface and implementations
// for the per-entity activity stream built from ledger domain events.
package activity

import "time"

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time // default: 6 months ago
	Until      *time.Time // default: now
	Categories []string   // filter to specific event categories
	MinWeight  string     // minimum weight threshold (default: "info")
	Limit      int        // max results (default: 100, max: 500)
	Cursor     string     // cursor for pagination
}

// SearchOptions controls filtering for full-text activity search.
type SearchOptions struct {
	EntityType string     // filter to specific entity type
	Since      *time.Time // filter by time
	Categories []string   // filter to specific event categories
	Limit      int        // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	now := time.Now()
	return QueryOptions{
		Since:     &sixMonthsAgo,
		Until:     &now,
		MinWeight: "info",
		Limit:     100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}

// WeightOrder maps event weights to numeric severity (lower = more severe).
var WeightOrder = map[string]int{
	"critical": 1,
	"major":    2,
	"minor":    3,
	"info":     4,
}

// WeightSeverity returns the severity of weight; unknown weights sort last.
func WeightSeverity(weight string) int {
	if s, ok := WeightOrder[weight]; ok {
		return s
	}
	return 5
}

// IsAtLeastWeight returns true if actual is at least as severe as minimum.
func IsAtLeastWeight(actual, minimum string) bool {
	return WeightSeverity(actual) <= WeightSeverity(minimum)
}

// weightsAtLeast lists the weights at least as severe as minimum.
func weightsAtLeast(minimum string) []string {
	floor := WeightSeverity(minimum)
	var out []string
	for w, s := range WeightOrder {
		if s <= floor {
			out = append(out, w)
		}
	}
	return out
}

func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 || (ceiling > 0 && limit > ceiling) {
		return def
	}
	return limit
}
