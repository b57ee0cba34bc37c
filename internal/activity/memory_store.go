package activity

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matthewbaird/rentledger/internal/types"
)

// entityKey addresses one indexed entity's stream.
type entityKey struct {
	typ, id string
}

// entryKey mirrors the activity_entries primary key so both stores ignore
// the same redeliveries.
type entryKey struct {
	entity     entityKey
	occurredAt int64
	eventID    string
}

// MemoryStore keeps each entity's activity stream in process memory. It backs
// activity.store=memory, for deployments that want the live stream and the
// activity API without persisting entries next to the ledger tables.
type MemoryStore struct {
	mu        sync.RWMutex
	perEntity int
	streams   map[entityKey][]types.ActivityEntry
	seen      map[entryKey]struct{}
}

// NewMemoryStore creates an empty MemoryStore. perEntity caps how many entries
// each entity keeps, dropping the oldest first; zero means no cap.
func NewMemoryStore(perEntity int) *MemoryStore {
	return &MemoryStore{
		perEntity: perEntity,
		streams:   make(map[entityKey][]types.ActivityEntry),
		seen:      make(map[entryKey]struct{}),
	}
}

// WriteEntries appends entries, ignoring ones already written.
func (s *MemoryStore) WriteEntries(_ context.Context, entries []types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		ek := entityKey{e.IndexedEntityType, e.IndexedEntityID}
		k := entryKey{entity: ek, occurredAt: e.OccurredAt.UnixNano(), eventID: e.EventID}
		if _, dup := s.seen[k]; dup {
			continue
		}
		s.seen[k] = struct{}{}
		s.streams[ek] = insertNewestFirst(s.streams[ek], e)
		if s.perEntity > 0 && len(s.streams[ek]) > s.perEntity {
			s.evict(ek)
		}
	}
	return nil
}

// insertNewestFirst keeps a stream ordered by occurred_at descending. Entries
// with equal timestamps keep arrival order.
func insertNewestFirst(stream []types.ActivityEntry, e types.ActivityEntry) []types.ActivityEntry {
	i := sort.Search(len(stream), func(i int) bool {
		return stream[i].OccurredAt.Before(e.OccurredAt)
	})
	return slices.Insert(stream, i, e)
}

func (s *MemoryStore) evict(ek entityKey) {
	stream := s.streams[ek]
	for _, old := range stream[s.perEntity:] {
		delete(s.seen, entryKey{entity: ek, occurredAt: old.OccurredAt.UnixNano(), eventID: old.EventID})
	}
	s.streams[ek] = slices.Clip(stream[:s.perEntity])
}

// QueryByEntity returns one entity's entries with the same filtering and
// cursor semantics as SQLStore.
func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := clampLimit(opts.Limit, 100, 500)

	var cursor *time.Time
	if opts.Cursor != "" {
		if t, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			cursor = &t
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []types.ActivityEntry{}
	for _, e := range s.streams[entityKey{entityType, entityID}] {
		if !inWindow(e.OccurredAt, opts.Since, opts.Until) {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, e.Category) {
			continue
		}
		if opts.MinWeight != "" && opts.MinWeight != "info" && !IsAtLeastWeight(e.Weight, opts.MinWeight) {
			continue
		}
		if cursor != nil && !e.OccurredAt.Before(*cursor) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	var nextCursor string
	if total > limit {
		matched = matched[:limit]
		nextCursor = matched[limit-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return matched, nextCursor, total, nil
}

// Search performs a case-insensitive substring search across summaries.
func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	limit := clampLimit(opts.Limit, 20, 0)
	q := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []types.ActivityEntry{}
	for ek, stream := range s.streams {
		if opts.EntityType != "" && ek.typ != opts.EntityType {
			continue
		}
		for _, e := range stream {
			if !inWindow(e.OccurredAt, opts.Since, nil) {
				// Streams are newest first; the rest are older still.
				break
			}
			if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, e.Category) {
				continue
			}
			if strings.Contains(strings.ToLower(e.Summary), q) {
				matched = append(matched, e)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	total := len(matched)
	if total > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func inWindow(t time.Time, since, until *time.Time) bool {
	if since != nil && t.Before(*since) {
		return false
	}
	return until == nil || !t.After(*until)
}
