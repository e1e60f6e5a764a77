/*
Package postgres provides a PostgreSQL implementation of billing.Store.

The schema mirrors store/sqlite but uses native column types: DATE for
calendar days, TIMESTAMP WITHOUT TIME ZONE for naive instants, NUMERIC for
money and quantities, JSONB for pricing rules and calculation details.
Migrations are embedded and applied with golang-migrate.

ERROR MAPPING:
  pgx.ErrNoRows          -> billing.ErrNotFound
  SQLSTATE 23505         -> billing.ErrConflict
  anything else          -> billing.ErrStoreUnavailable
*/
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/billing"
)

//go:embed migrations/*.sql
var migrations embed.FS

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// Store implements billing.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config from URL: %w", err)
	}
	config.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL", zap.String("host", config.ConnConfig.Host))
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("PostgreSQL connection pool closed")
	}
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return billing.NewStoreError("ping", "", err)
	}
	return nil
}

// Migrate applies the embedded migrations to databaseURL.
func Migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// classify maps a pgx error to a billing store error.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.NotFound(op, key)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return billing.Conflict(op, key)
	}
	return billing.NewStoreError(op, key, err)
}

func requireAffected(tag pgconn.CommandTag, op, key string) error {
	if tag.RowsAffected() == 0 {
		return billing.NotFound(op, key)
	}
	return nil
}

func instantTime(i *billing.Instant) *time.Time {
	if i == nil {
		return nil
	}
	t := i.Time()
	return &t
}

func timeInstant(t *time.Time) *billing.Instant {
	if t == nil {
		return nil
	}
	i := billing.InstantOf(*t)
	return &i
}

var (
	_ billing.Store         = (*Store)(nil)
	_ billing.CatalogWriter = (*Store)(nil)
)
