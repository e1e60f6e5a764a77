package sqlite

import (
	"context"
	"database/sql"

	"github.com/Jelela/mishorasmed/billing"
)

// =============================================================================
// CLOSURES (billing.ClosureStore)
// =============================================================================

const closureColumns = `id, user_id, user_hospital_id, period_start_calc, period_end_calc,
	period_start_effective, period_end_effective, is_adjusted, adjust_reason, created_at, updated_at`

func scanClosure(row scanner) (billing.HospitalClosure, error) {
	var (
		c                    billing.HospitalClosure
		calcStart, calcEnd   string
		effStart, effEnd     string
		reason               sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.HospitalID, &calcStart, &calcEnd,
		&effStart, &effEnd, &c.IsAdjusted, &reason, &createdAt, &updatedAt)
	if err != nil {
		return billing.HospitalClosure{}, err
	}

	if c.Calculated, err = parsePeriod(calcStart, calcEnd); err != nil {
		return c, err
	}
	if c.Effective, err = parsePeriod(effStart, effEnd); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return c, err
	}
	c.AdjustReason = stringPtr(reason)
	return c, nil
}

// parsePeriod reads stored bounds without NewPeriod's ordering check; rows
// written by older rollover arithmetic may carry start after end.
func parsePeriod(start, end string) (billing.Period, error) {
	s, err := billing.ParseDate(start)
	if err != nil {
		return billing.Period{}, err
	}
	e, err := billing.ParseDate(end)
	if err != nil {
		return billing.Period{}, err
	}
	return billing.Period{Start: s, End: e}, nil
}

func (s *Store) FindClosure(ctx context.Context, key billing.ClosureKey) (billing.HospitalClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+closureColumns+`
		FROM hospital_closures
		WHERE user_id = ? AND user_hospital_id = ? AND period_start_calc = ? AND period_end_calc = ?
	`, key.UserID, key.HospitalID, key.Calculated.Start.String(), key.Calculated.End.String())

	c, err := scanClosure(row)
	if err != nil {
		return billing.HospitalClosure{}, wrap("find closure", key.String(), err)
	}
	return c, nil
}

func (s *Store) GetClosure(ctx context.Context, closureID string) (billing.HospitalClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+closureColumns+` FROM hospital_closures WHERE id = ?`, closureID)
	c, err := scanClosure(row)
	if err != nil {
		return billing.HospitalClosure{}, wrap("get closure", closureID, err)
	}
	return c, nil
}

func (s *Store) InsertClosure(ctx context.Context, c billing.HospitalClosure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO hospital_closures
		(id, user_id, user_hospital_id, period_start_calc, period_end_calc,
		 period_start_effective, period_end_effective, is_adjusted, adjust_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.HospitalID,
		c.Calculated.Start.String(),
		c.Calculated.End.String(),
		c.Effective.Start.String(),
		c.Effective.End.String(),
		c.IsAdjusted,
		nullString(c.AdjustReason),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	return wrap("insert closure", c.Key().String(), err)
}

func (s *Store) UpdateClosurePeriod(ctx context.Context, c billing.HospitalClosure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE hospital_closures SET
			period_start_effective = ?, period_end_effective = ?, is_adjusted = ?,
			adjust_reason = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		c.Effective.Start.String(),
		c.Effective.End.String(),
		c.IsAdjusted,
		nullString(c.AdjustReason),
		formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return wrap("update closure", c.ID, err)
	}
	return requireAffected(result, "update closure", c.ID)
}

// =============================================================================
// GROUP STATUSES
// =============================================================================

const statusColumns = `id, closure_id, report_group_id, is_consolidated, consolidated_at`

func scanStatus(row scanner) (billing.ClosureGroupStatus, error) {
	var (
		st             billing.ClosureGroupStatus
		groupID        sql.NullString
		consolidatedAt sql.NullString
	)
	if err := row.Scan(&st.ID, &st.ClosureID, &groupID, &st.IsConsolidated, &consolidatedAt); err != nil {
		return billing.ClosureGroupStatus{}, err
	}
	st.ReportGroupID = stringPtr(groupID)
	if consolidatedAt.Valid {
		t, err := parseTime(consolidatedAt.String)
		if err != nil {
			return st, err
		}
		st.ConsolidatedAt = &t
	}
	return st, nil
}

// storedGroupKey is the value of the group_key column; '' is the ungrouped bucket.
func storedGroupKey(groupID *string) string {
	if groupID == nil {
		return ""
	}
	return *groupID
}

func (s *Store) ListGroupStatuses(ctx context.Context, closureID string) ([]billing.ClosureGroupStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+statusColumns+`
		FROM closure_group_statuses
		WHERE closure_id = ?
		ORDER BY group_key
	`, closureID)
	if err != nil {
		return nil, wrap("list group statuses", closureID, err)
	}
	defer rows.Close()

	var out []billing.ClosureGroupStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, wrap("list group statuses", closureID, err)
		}
		out = append(out, st)
	}
	return out, wrap("list group statuses", closureID, rows.Err())
}

func (s *Store) InsertGroupStatus(ctx context.Context, st billing.ClosureGroupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var consolidatedAt sql.NullString
	if st.ConsolidatedAt != nil {
		consolidatedAt = sql.NullString{String: formatTime(*st.ConsolidatedAt), Valid: true}
	}
	query := `
		INSERT INTO closure_group_statuses
		(id, closure_id, report_group_id, group_key, is_consolidated, consolidated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		st.ID,
		st.ClosureID,
		nullString(st.ReportGroupID),
		storedGroupKey(st.ReportGroupID),
		st.IsConsolidated,
		consolidatedAt,
	)
	return wrap("insert group status", st.ClosureID+"/"+st.GroupKey(), err)
}

func (s *Store) GetGroupStatus(ctx context.Context, statusID string) (billing.ClosureGroupStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM closure_group_statuses WHERE id = ?`, statusID)
	st, err := scanStatus(row)
	if err != nil {
		return billing.ClosureGroupStatus{}, wrap("get group status", statusID, err)
	}
	return st, nil
}

func (s *Store) UpdateGroupStatus(ctx context.Context, st billing.ClosureGroupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var consolidatedAt sql.NullString
	if st.ConsolidatedAt != nil {
		consolidatedAt = sql.NullString{String: formatTime(*st.ConsolidatedAt), Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE closure_group_statuses SET is_consolidated = ?, consolidated_at = ?
		WHERE id = ?
	`, st.IsConsolidated, consolidatedAt, st.ID)
	if err != nil {
		return wrap("update group status", st.ID, err)
	}
	return requireAffected(result, "update group status", st.ID)
}
