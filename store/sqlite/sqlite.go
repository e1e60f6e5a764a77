/*
Package sqlite provides a SQLite-backed implementation of billing.Store.

PURPOSE:
  Persists the catalog (assignments, report groups, acts), entries and the
  closure bookkeeping (closures, group statuses) in one SQLite file. The
  PostgreSQL store in store/postgres follows the same schema.

INTERFACES IMPLEMENTED:
  billing.EntryStore:    entries joined with act and group
  billing.CatalogStore:  acts, active groups, assignments
  billing.CatalogWriter: catalog upserts and hospital removal
  billing.ClosureStore:  closures and group statuses

KEY TABLES:
  hospital_assignments:   user to hospital links, closing day
  report_groups:          submission buckets per hospital
  medical_acts:           billable acts with pricing config
  entries:                recorded sessions
  hospital_closures:      one row per (user, hospital, calculated period)
  closure_group_statuses: one row per (closure, group), ungrouped included

NATURAL KEYS:
  - UNIQUE(user_id, user_hospital_id, period_start_calc, period_end_calc)
  - UNIQUE(closure_id, group_key) where group_key is '' for the ungrouped
    bucket; SQL treats NULLs as distinct, so report_group_id alone cannot
    carry the constraint.
  A violated key surfaces as billing.ErrConflict.

NAIVE VALUES:
  Dates are stored as 'YYYY-MM-DD' and instants as 'YYYY-MM-DDTHH:MM:SS'
  text, exactly as they appear on the wire. Money and quantities are decimal
  strings. Audit timestamps are RFC3339 UTC.

CONCURRENCY:
  Uses sync.RWMutex so a single file is never written by two goroutines at
  once. Lookups and inserts take the lock separately; the closure race is
  still resolved by the unique index.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Jelela/mishorasmed/billing"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already opened database. The schema is not migrated.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return billing.NewStoreError("ping", "", err)
	}
	return nil
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hospital_assignments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		hospital_id TEXT NOT NULL DEFAULT '',
		hospital_name TEXT NOT NULL,
		closing_day INTEGER CHECK (closing_day BETWEEN 1 AND 31)
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_user
		ON hospital_assignments(user_id);

	CREATE TABLE IF NOT EXISTS report_groups (
		id TEXT PRIMARY KEY,
		user_hospital_id TEXT NOT NULL REFERENCES hospital_assignments(id),
		name TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_report_groups_hospital
		ON report_groups(user_hospital_id, is_active, sort_order);

	CREATE TABLE IF NOT EXISTS medical_acts (
		id TEXT PRIMARY KEY,
		user_hospital_id TEXT NOT NULL REFERENCES hospital_assignments(id),
		name TEXT NOT NULL,
		unit_type TEXT NOT NULL CHECK (unit_type IN ('hours', 'units')),
		unit_value TEXT,
		unit_value_principal TEXT,
		unit_value_assistant TEXT,
		requires_patients BOOLEAN NOT NULL DEFAULT FALSE,
		supports_roles BOOLEAN NOT NULL DEFAULT FALSE,
		pricing_rules TEXT,
		report_group_id TEXT REFERENCES report_groups(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_medical_acts_hospital
		ON medical_acts(user_hospital_id, sort_order);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_hospital_id TEXT NOT NULL REFERENCES hospital_assignments(id),
		act_id TEXT NOT NULL REFERENCES medical_acts(id),
		date TEXT NOT NULL,
		start_at TEXT,
		end_at TEXT,
		quantity TEXT NOT NULL,
		notes TEXT,
		patients_count INTEGER,
		role TEXT CHECK (role IN ('principal', 'assistant')),
		total_amount TEXT,
		calculation_detail TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: entries of one hospital within a period
	CREATE INDEX IF NOT EXISTS idx_entries_user_hospital_date
		ON entries(user_id, user_hospital_id, date);

	CREATE TABLE IF NOT EXISTS hospital_closures (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_hospital_id TEXT NOT NULL,
		period_start_calc TEXT NOT NULL,
		period_end_calc TEXT NOT NULL,
		period_start_effective TEXT NOT NULL,
		period_end_effective TEXT NOT NULL,
		is_adjusted BOOLEAN NOT NULL DEFAULT FALSE,
		adjust_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, user_hospital_id, period_start_calc, period_end_calc)
	);

	CREATE TABLE IF NOT EXISTS closure_group_statuses (
		id TEXT PRIMARY KEY,
		closure_id TEXT NOT NULL,
		report_group_id TEXT,
		group_key TEXT NOT NULL,
		is_consolidated BOOLEAN NOT NULL DEFAULT FALSE,
		consolidated_at TEXT,
		UNIQUE(closure_id, group_key)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decimalPtr(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullInstant(i *billing.Instant) sql.NullString {
	if i == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: i.String(), Valid: true}
}

func instantPtr(ns sql.NullString) (*billing.Instant, error) {
	if !ns.Valid {
		return nil, nil
	}
	i, err := billing.ParseInstant(ns.String)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// wrap classifies a driver error for op and key.
func wrap(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return billing.NotFound(op, key)
	case isUniqueConstraintError(err):
		return billing.Conflict(op, key)
	default:
		return billing.NewStoreError(op, key, err)
	}
}

var (
	_ billing.Store         = (*Store)(nil)
	_ billing.CatalogWriter = (*Store)(nil)
)
