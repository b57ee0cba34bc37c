// Package store persists the ledger in SQL using ent's dialect/sql builder.
// SQLite (modernc.org/sqlite) is the embedded default; Postgres (lib/pq) is
// supported for multi-process deployments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

// Driver names accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the database.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// DB wraps an ent SQL driver and runs ledger transactions on it.
type DB struct {
	drv     *entsql.Driver
	dialect string
	log     *zap.Logger
}

// Open connects to the configured database. SQLite connections are pinned
// to a single writer with foreign keys enabled.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		driverName  string
		dialectName string
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		driverName, dialectName = "sqlite", dialect.SQLite
		if cfg.DSN == "" {
			cfg.DSN = "file:rentledger.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
		}
	case DriverPostgres:
		driverName, dialectName = "postgres", dialect.Postgres
		if cfg.DSN == "" {
			return nil, errors.New("postgres requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dialectName == dialect.SQLite {
		db.SetMaxOpenConns(1)
		// Required for SQLite; the DSN pragma alone is not honoured by every build.
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	log.Info("database opened", zap.String("driver", driverName))
	return &DB{drv: entsql.OpenDB(dialectName, db), dialect: dialectName, log: log.Named("store")}, nil
}

// OpenMemory opens a private in-memory SQLite database and migrates it.
func OpenMemory(ctx context.Context, name string, log *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&_time_format=sqlite&_pragma=foreign_keys(1)", name)
	d, err := Open(ctx, Config{Driver: DriverSQLite, DSN: dsn}, log)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Dialect returns the ent dialect name.
func (d *DB) Dialect() string { return d.dialect }

// Driver returns the non-transactional driver, for stores that write
// outside ledger transactions such as the activity log.
func (d *DB) Driver() dialect.ExecQuerier { return d.drv }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.drv.DB().PingContext(ctx) }

// Close closes the underlying connection pool.
func (d *DB) Close() error { return d.drv.Close() }

type txKey struct{}

// RunInTx runs fn in a transaction carried by the context. A nested call
// joins the outer transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(dialect.Tx); ok {
		return fn(ctx)
	}
	tx, err := d.drv.Tx(ctx)
	if err != nil {
		return mapError(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			d.log.Warn("rollback failed", zap.Error(rerr))
		}
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// conn returns the transaction on ctx, or the driver.
func (d *DB) conn(ctx context.Context) dialect.ExecQuerier {
	if tx, ok := ctx.Value(txKey{}).(dialect.Tx); ok {
		return tx
	}
	return d.drv
}

func (d *DB) builder() *entsql.DialectBuilder { return entsql.Dialect(d.dialect) }

// lockRows adds FOR UPDATE where the dialect has it. SQLite serializes
// writers on the database lock instead.
func (d *DB) lockRows(sel *entsql.Selector) {
	if d.dialect == dialect.Postgres {
		sel.ForUpdate()
	}
}

// exec runs a statement and returns the number of affected rows.
func (d *DB) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res sql.Result
	if err := d.conn(ctx).Exec(ctx, query, args, &res); err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

// query runs sel and calls scan once per row.
func (d *DB) query(ctx context.Context, sel *entsql.Selector, scan func(scanner) error) error {
	q, args := sel.Query()
	var rows entsql.Rows
	if err := d.conn(ctx).Query(ctx, q, args, &rows); err != nil {
		return mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(&rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// mapError translates driver errors into ledger sentinels. Serialization
// failures and busy databases become ErrConcurrentModification so the
// service retries them; a clash on the pending submission index becomes
// ErrDuplicatePendingSubmission.
func mapError(err error) error {
	if err == nil || errors.Is(err, ledger.ErrConcurrentModification) || errors.Is(err, ledger.ErrDuplicatePendingSubmission) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
		case "23505":
			if pqErr.Constraint == pendingSubmissionIndex {
				return fmt.Errorf("%w: %v", ledger.ErrDuplicatePendingSubmission, err)
			}
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
	case sqlgraph.IsUniqueConstraintError(err) && strings.Contains(msg, SubmissionsTable.Name+".invoice_id"):
		return fmt.Errorf("%w: %v", ledger.ErrDuplicatePendingSubmission, err)
	}
	return err
}

func utc(t time.Time) time.Time { return t.UTC() }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
