/*
store.go - Persistence boundary of the billing engine

PURPOSE:
  Defines what the engine needs from a database. The engine never builds
  queries itself; it asks for entries of a period, catalog rows and closure
  bookkeeping through these interfaces.

KEY INTERFACES:
  EntryStore:    entries joined with act and group, plus entry writes
  CatalogStore:  acts, report groups and hospital assignments
  ClosureStore:  closures and per-group consolidation statuses
  CatalogWriter: catalog upserts and hospital removal

JOIN SHAPE:
  ListEntries returns EntryWithAct with zero or one group. Implementations
  resolve the group once; consumers never inspect raw join results.

UNIQUENESS:
  Closures are unique on (user, hospital, calculated start, calculated end).
  Group statuses are unique on (closure, group), the ungrouped bucket
  included. A violated constraint surfaces as ErrConflict; the caller
  re-reads. Missing rows surface as ErrNotFound. Everything else is
  ErrStoreUnavailable. Implementations never retry.

IMPLEMENTATIONS:
  - billing/store/memory.go: in-memory, for tests and the CLI demo
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL
*/
package billing

import "context"

// EntryQuery selects one user's entries of one hospital within a period.
type EntryQuery struct {
	UserID     string
	HospitalID string
	Period     Period
}

// EntryStore reads and writes entries.
type EntryStore interface {
	// ListEntries returns matching entries ordered by date ascending, joined
	// with their act and the act's report group.
	ListEntries(ctx context.Context, q EntryQuery) ([]EntryWithAct, error)

	// GetEntry returns one of the user's entries.
	GetEntry(ctx context.Context, userID, entryID string) (Entry, error)

	InsertEntry(ctx context.Context, e Entry) error

	// UpdateEntry replaces every mutable field of the entry.
	UpdateEntry(ctx context.Context, e Entry) error
}

// CatalogStore reads acts, groups and assignments.
type CatalogStore interface {
	GetAct(ctx context.Context, actID string) (MedicalAct, error)

	// ListActs returns a hospital's acts ordered by sort order.
	ListActs(ctx context.Context, hospitalID string) ([]MedicalAct, error)

	// ListActiveGroups returns a hospital's active report groups ordered by sort order.
	ListActiveGroups(ctx context.Context, hospitalID string) ([]ReportGroup, error)

	GetAssignment(ctx context.Context, userID, hospitalID string) (HospitalAssignment, error)
	ListAssignments(ctx context.Context, userID string) ([]HospitalAssignment, error)
}

// CatalogWriter creates or replaces catalog rows.
type CatalogWriter interface {
	PutAssignment(ctx context.Context, a HospitalAssignment) error
	PutGroup(ctx context.Context, g ReportGroup) error
	PutAct(ctx context.Context, a MedicalAct) error

	// DeleteAssignment removes one of the user's hospitals together with its
	// acts, groups, entries and closures. ErrNotFound when the user does not
	// own it.
	DeleteAssignment(ctx context.Context, userID, hospitalID string) error
}

// ClosureStore persists closures and their group statuses.
type ClosureStore interface {
	// FindClosure looks a closure up by its natural key.
	FindClosure(ctx context.Context, key ClosureKey) (HospitalClosure, error)
	GetClosure(ctx context.Context, closureID string) (HospitalClosure, error)

	// InsertClosure fails with ErrConflict when the natural key exists.
	InsertClosure(ctx context.Context, c HospitalClosure) error

	// UpdateClosurePeriod persists the effective period, IsAdjusted,
	// AdjustReason and UpdatedAt of c.
	UpdateClosurePeriod(ctx context.Context, c HospitalClosure) error

	ListGroupStatuses(ctx context.Context, closureID string) ([]ClosureGroupStatus, error)

	// InsertGroupStatus fails with ErrConflict when the (closure, group) pair exists.
	InsertGroupStatus(ctx context.Context, s ClosureGroupStatus) error
	GetGroupStatus(ctx context.Context, statusID string) (ClosureGroupStatus, error)

	// UpdateGroupStatus persists IsConsolidated and ConsolidatedAt of s.
	UpdateGroupStatus(ctx context.Context, s ClosureGroupStatus) error
}

// Store is everything the services need.
type Store interface {
	EntryStore
	CatalogStore
	ClosureStore
}
