/*
Package store opens the configured billing.Store backend.

DRIVERS:
  sqlite:   file database, schema created on open
  postgres: pgx pool, embedded migrations applied on open
  memory:   process-local, loaded with the demo dataset

The returned Backend is what cmd/server and cmd/closingctl share: the store
itself, a health check and a closer.
*/
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/billing"
	memstore "github.com/Jelela/mishorasmed/billing/store"
	"github.com/Jelela/mishorasmed/config"
	"github.com/Jelela/mishorasmed/entries"
	"github.com/Jelela/mishorasmed/factory"
	"github.com/Jelela/mishorasmed/store/postgres"
	"github.com/Jelela/mishorasmed/store/sqlite"
)

// Backend is an opened store. Every driver also accepts catalog writes.
type Backend struct {
	billing.Store
	billing.CatalogWriter
	Driver string

	ping  func(ctx context.Context) error
	close func()
}

// Ping reports whether the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error { return b.ping(ctx) }

// Close releases the backend's connections.
func (b *Backend) Close() { b.close() }

// Open connects to the backend named by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", zap.String("driver", cfg.StoreDriver), zap.String("path", cfg.SQLitePath))
		return &Backend{
			Store:         s,
			CatalogWriter: s,
			Driver:        cfg.StoreDriver,
			ping:          s.Ping,
			close: func() {
				if err := s.Close(); err != nil {
					logger.Warn("failed to close sqlite store", zap.Error(err))
				}
			},
		}, nil

	case config.DriverPostgres:
		if err := postgres.Migrate(cfg.PostgresURL); err != nil {
			return nil, err
		}
		s, err := postgres.New(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, CatalogWriter: s, Driver: cfg.StoreDriver, ping: s.Ping, close: s.Close}, nil

	case config.DriverMemory:
		m, err := OpenDemo(ctx, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:         m,
			CatalogWriter: m,
			Driver:        cfg.StoreDriver,
			ping:          func(context.Context) error { return nil },
			close:         func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenDemo returns a memory store holding the bundled demo dataset. Entries
// are recorded through the recorder so they are priced like any other write.
func OpenDemo(ctx context.Context, logger *zap.Logger) (*memstore.Memory, error) {
	seed, err := factory.NewCatalogFactory().ParseSeed(factory.DemoSeed())
	if err != nil {
		return nil, fmt.Errorf("parse demo seed: %w", err)
	}

	m := memstore.NewMemory()
	if err := seed.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("apply demo seed: %w", err)
	}
	recorder := entries.NewRecorder(m, entries.WithLogger(logger))
	for _, draft := range seed.Entries {
		if _, err := recorder.Create(ctx, draft); err != nil {
			return nil, fmt.Errorf("record demo entry: %w", err)
		}
	}

	logger.Info("demo dataset loaded",
		zap.Int("assignments", len(seed.Assignments)),
		zap.Int("acts", len(seed.Acts)),
		zap.Int("entries", len(seed.Entries)),
	)
	return m, nil
}
