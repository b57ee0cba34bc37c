// Package types provides value types shared by the ledger, the store, the
// event layer and the HTTP handlers.
package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount tagged with a currency label. The ledger never
// converts between currencies; the label travels with the amount.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217, e.g. "USD"
}

// NewMoney builds a Money value.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// DateRange represents a time period with an optional end.
type DateRange struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside [Start, End). A nil End is open.
func (r DateRange) Contains(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	return r.End == nil || t.Before(*r.End)
}

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "target", "related", "context"
}

// ActivityEntry is a secondary index entry over the domain event log,
// keyed by a referenced entity. One event produces multiple entries.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"`
	Weight            string          `json:"weight"`
	Polarity          string          `json:"polarity"`
	Payload           json.RawMessage `json:"payload"`
}

// Date truncates t to midnight UTC. Ledger dates (invoice, due, collection,
// lease start/end) carry no time-of-day component.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves t forward n calendar months, clamping the day to the last
// day of the target month: Jan 31 + 1 month is Feb 28 (Feb 29 in leap years).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}
