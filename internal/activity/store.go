package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/matthewbaird/rentledger/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search performs full-text search across activity summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

var columns = []*schema.Column{
	{Name: "event_id", Type: field.TypeString, Size: 64},
	{Name: "event_type", Type: field.TypeString, Size: 64},
	{Name: "occurred_at", Type: field.TypeTime},
	{Name: "indexed_entity_type", Type: field.TypeString, Size: 64},
	{Name: "indexed_entity_id", Type: field.TypeString, Size: 64},
	{Name: "entity_role", Type: field.TypeString, Size: 32},
	{Name: "source_refs", Type: field.TypeJSON},
	{Name: "summary", Type: field.TypeString, Size: 2147483647},
	{Name: "category", Type: field.TypeString, Size: 32},
	{Name: "weight", Type: field.TypeString, Size: 16},
	{Name: "polarity", Type: field.TypeString, Size: 16},
	{Name: "payload", Type: field.TypeJSON, Nullable: true},
}

// Table is the activity_entries schema. The store package creates it
// alongside the ledger tables.
var Table = &schema.Table{
	Name:       "activity_entries",
	Columns:    columns,
	PrimaryKey: []*schema.Column{columns[3], columns[4], columns[2], columns[0]},
	Indexes: []*schema.Index{
		{Name: "activity_entity_time", Columns: []*schema.Column{columns[3], columns[4], columns[2]}},
		{Name: "activity_entity_category_time", Columns: []*schema.Column{columns[3], columns[4], columns[8], columns[2]}},
	},
}

func columnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// SQLStore implements Store on the SQL database the ledger uses.
type SQLStore struct {
	drv     dialect.ExecQuerier
	dialect string
}

// NewSQLStore creates a new SQLStore. dialectName is an ent dialect name
// (dialect.SQLite or dialect.Postgres).
func NewSQLStore(drv dialect.ExecQuerier, dialectName string) *SQLStore {
	return &SQLStore{drv: drv, dialect: dialectName}
}

// WriteEntries inserts activity entries, ignoring ones already written.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := entsql.Dialect(s.dialect).Insert(Table.Name).Columns(columnNames()...)
	for _, e := range entries {
		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UTC(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Weight, e.Polarity, payload,
		)
	}
	ins.OnConflict(entsql.DoNothing())
	query, args := ins.Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := clampLimit(opts.Limit, 100, 500)

	where := func() *entsql.Predicate {
		preds := []*entsql.Predicate{
			entsql.EQ("indexed_entity_type", entityType),
			entsql.EQ("indexed_entity_id", entityID),
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
		}
		if opts.Until != nil {
			preds = append(preds, entsql.LTE("occurred_at", opts.Until.UTC()))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, entsql.In("category", anys(opts.Categories)...))
		}
		if opts.MinWeight != "" && opts.MinWeight != "info" {
			preds = append(preds, entsql.In("weight", anys(weightsAtLeast(opts.MinWeight))...))
		}
		if opts.Cursor != "" {
			// Cursor is the occurred_at timestamp of the last result.
			if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
				preds = append(preds, entsql.LT("occurred_at", cursorTime.UTC()))
			}
		}
		return entsql.And(preds...)
	}

	b := entsql.Dialect(s.dialect)
	sel := b.Select(columnNames()...).
		From(b.Table(Table.Name)).
		Where(where()).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit + 1) // one extra for the cursor
	entries, err := s.scan(ctx, sel)
	if err != nil {
		return nil, "", 0, fmt.Errorf("querying activity entries: %w", err)
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	total, err := s.count(ctx, where())
	if err != nil {
		return nil, "", 0, err
	}
	return entries, nextCursor, total, nil
}

// Search performs a case-insensitive substring search across activity summaries.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	limit := clampLimit(opts.Limit, 20, 0)

	where := func() *entsql.Predicate {
		preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
		if opts.EntityType != "" {
			preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, entsql.In("category", anys(opts.Categories)...))
		}
		return entsql.And(preds...)
	}

	b := entsql.Dialect(s.dialect)
	sel := b.Select(columnNames()...).
		From(b.Table(Table.Name)).
		Where(where()).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit)
	entries, err := s.scan(ctx, sel)
	if err != nil {
		return nil, 0, fmt.Errorf("searching activity entries: %w", err)
	}
	total, err := s.count(ctx, where())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLStore) scan(ctx context.Context, sel *entsql.Selector) ([]types.ActivityEntry, error) {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []types.ActivityEntry{}
	for rows.Next() {
		var e types.ActivityEntry
		var refsJSON, payloadJSON []byte
		if err := rows.Scan(
			&e.EventID, &e.EventType, &e.OccurredAt, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refsJSON, &e.Summary, &e.Category, &e.Weight, &e.Polarity, &payloadJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if len(refsJSON) > 0 {
			_ = json.Unmarshal(refsJSON, &e.SourceRefs)
		}
		if len(payloadJSON) > 0 {
			e.Payload = payloadJSON
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// SQLite orders equal timestamps arbitrarily; keep results stable.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
	return entries, nil
}

func (s *SQLStore) count(ctx context.Context, where *entsql.Predicate) (int, error) {
	b := entsql.Dialect(s.dialect)
	query, args := b.Select(entsql.Count("*")).From(b.Table(Table.Name)).Where(where).Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	defer rows.Close()
	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("counting activity entries: %w", err)
		}
	}
	return total, rows.Err()
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
