package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// CLOSURE MANAGER - Lazy closure bookkeeping
// =============================================================================
//
// State per closure:
//
//   (none) --EnsureClosure--> CALCULATED <--AdjustPeriod--> ADJUSTED
//
// IsAdjusted is recomputed on every edit as Effective != Calculated.
//
// Two callers opening the same period may both miss the closure and both try
// to insert it. The store's uniqueness constraint rejects the second insert
// with ErrConflict and the loser re-reads the winner's row once.

// ClosureManager materializes and edits closures and group statuses.
type ClosureManager struct {
	store  ClosureStore
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// ClosureOption configures a ClosureManager.
type ClosureOption func(*ClosureManager)

// WithClock replaces time.Now for consolidation and audit timestamps.
func WithClock(now func() time.Time) ClosureOption {
	return func(m *ClosureManager) { m.now = now }
}

// WithIDGenerator replaces the UUID generator for new rows.
func WithIDGenerator(newID func() string) ClosureOption {
	return func(m *ClosureManager) { m.newID = newID }
}

func WithLogger(logger *zap.Logger) ClosureOption {
	return func(m *ClosureManager) { m.logger = logger }
}

func NewClosureManager(store ClosureStore, opts ...ClosureOption) *ClosureManager {
	m := &ClosureManager{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ClosureManager) timestamp() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// EnsureClosure returns the closure for the calculated period, creating it
// with Effective = Calculated on first access.
func (m *ClosureManager) EnsureClosure(ctx context.Context, userID, hospitalID string, calculated Period) (HospitalClosure, error) {
	if _, err := NewPeriod(calculated.Start, calculated.End); err != nil {
		return HospitalClosure{}, err
	}
	key := ClosureKey{UserID: userID, HospitalID: hospitalID, Calculated: calculated}

	existing, err := m.store.FindClosure(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return HospitalClosure{}, err
	}

	now := m.timestamp()
	closure := HospitalClosure{
		ID:         m.newID(),
		UserID:     userID,
		HospitalID: hospitalID,
		Calculated: calculated,
		Effective:  calculated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.InsertClosure(ctx, closure); err != nil {
		if !IsConflict(err) {
			return HospitalClosure{}, err
		}
		m.logger.Debug("closure created concurrently, re-reading",
			zap.String("key", key.String()))
		return m.store.FindClosure(ctx, key)
	}

	m.logger.Info("closure created",
		zap.String("closure_id", closure.ID),
		zap.String("key", key.String()))
	return closure, nil
}

// EnsureGroupStatuses backfills a status row for every group id plus the
// ungrouped bucket and returns all of the closure's rows. Existing rows are
// untouched; rows inserted concurrently by another caller are accepted.
func (m *ClosureManager) EnsureGroupStatuses(ctx context.Context, closureID string, groupIDs []string) ([]ClosureGroupStatus, error) {
	existing, err := m.store.ListGroupStatuses(ctx, closureID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.GroupKey()] = true
	}

	wanted := make([]*string, 0, len(groupIDs)+1)
	for _, id := range groupIDs {
		id := id
		wanted = append(wanted, &id)
	}
	wanted = append(wanted, nil)

	attempted, inserted := 0, 0
	for _, groupID := range wanted {
		key := GroupKey(groupID)
		if have[key] {
			continue
		}
		have[key] = true
		attempted++
		status := ClosureGroupStatus{
			ID:            m.newID(),
			ClosureID:     closureID,
			ReportGroupID: groupID,
		}
		if err := m.store.InsertGroupStatus(ctx, status); err != nil {
			if IsConflict(err) {
				continue
			}
			return nil, err
		}
		inserted++
	}

	if attempted == 0 {
		return existing, nil
	}
	if inserted > 0 {
		m.logger.Debug("group statuses backfilled",
			zap.String("closure_id", closureID),
			zap.Int("inserted", inserted))
	}
	return m.store.ListGroupStatuses(ctx, closureID)
}

// SetConsolidated sets the flag and stamps or clears ConsolidatedAt.
func (m *ClosureManager) SetConsolidated(ctx context.Context, statusID string, value bool) (ClosureGroupStatus, error) {
	status, err := m.store.GetGroupStatus(ctx, statusID)
	if err != nil {
		return ClosureGroupStatus{}, err
	}
	return m.writeConsolidated(ctx, status, value)
}

// ToggleConsolidated inverts the current flag.
func (m *ClosureManager) ToggleConsolidated(ctx context.Context, statusID string) (ClosureGroupStatus, error) {
	status, err := m.store.GetGroupStatus(ctx, statusID)
	if err != nil {
		return ClosureGroupStatus{}, err
	}
	return m.writeConsolidated(ctx, status, !status.IsConsolidated)
}

func (m *ClosureManager) writeConsolidated(ctx context.Context, status ClosureGroupStatus, value bool) (ClosureGroupStatus, error) {
	status.IsConsolidated = value
	status.ConsolidatedAt = nil
	if value {
		at := m.timestamp()
		status.ConsolidatedAt = &at
	}
	if err := m.store.UpdateGroupStatus(ctx, status); err != nil {
		return ClosureGroupStatus{}, err
	}
	m.logger.Info("group consolidation changed",
		zap.String("status_id", status.ID),
		zap.String("closure_id", status.ClosureID),
		zap.Bool("consolidated", value))
	return status, nil
}

// AdjustPeriod sets the closure's effective period. Start may equal end.
// A blank reason is stored as nil.
func (m *ClosureManager) AdjustPeriod(ctx context.Context, closureID string, start, end Date, reason *string) (HospitalClosure, error) {
	effective, err := NewPeriod(start, end)
	if err != nil {
		return HospitalClosure{}, err
	}

	closure, err := m.store.GetClosure(ctx, closureID)
	if err != nil {
		return HospitalClosure{}, err
	}

	closure.Effective = effective
	closure.IsAdjusted = !effective.Equal(closure.Calculated)
	closure.AdjustReason = nil
	if reason != nil {
		if trimmed := strings.TrimSpace(*reason); trimmed != "" {
			closure.AdjustReason = &trimmed
		}
	}
	closure.UpdatedAt = m.timestamp()

	if err := m.store.UpdateClosurePeriod(ctx, closure); err != nil {
		return HospitalClosure{}, err
	}
	m.logger.Info("closure period adjusted",
		zap.String("closure_id", closure.ID),
		zap.String("effective", effective.String()),
		zap.String("state", string(closure.State())))
	return closure, nil
}
