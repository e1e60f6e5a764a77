package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Jelela/mishorasmed/billing"
)

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) PutAssignment(ctx context.Context, a billing.HospitalAssignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hospital_assignments (id, user_id, hospital_id, hospital_name, closing_day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			hospital_id = EXCLUDED.hospital_id,
			hospital_name = EXCLUDED.hospital_name,
			closing_day = EXCLUDED.closing_day
	`, a.ID, a.UserID, a.CatalogHospitalID, a.HospitalName, a.ClosingDay)
	return classify("put assignment", a.ID, err)
}

func (s *Store) PutGroup(ctx context.Context, g billing.ReportGroup) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO report_groups (id, user_hospital_id, name, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_hospital_id = EXCLUDED.user_hospital_id,
			name = EXCLUDED.name,
			sort_order = EXCLUDED.sort_order,
			is_active = EXCLUDED.is_active
	`, g.ID, g.HospitalID, g.Name, g.SortOrder, g.Active)
	return classify("put report group", g.ID, err)
}

func (s *Store) PutAct(ctx context.Context, a billing.MedicalAct) error {
	var rules []byte
	if a.PricingRules != nil {
		raw, err := json.Marshal(a.PricingRules)
		if err != nil {
			return fmt.Errorf("failed to encode pricing rules: %w", err)
		}
		rules = raw
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO medical_acts
		(id, user_hospital_id, name, unit_type, unit_value, unit_value_principal, unit_value_assistant,
		 requires_patients, supports_roles, pricing_rules, report_group_id, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			user_hospital_id = EXCLUDED.user_hospital_id,
			name = EXCLUDED.name,
			unit_type = EXCLUDED.unit_type,
			unit_value = EXCLUDED.unit_value,
			unit_value_principal = EXCLUDED.unit_value_principal,
			unit_value_assistant = EXCLUDED.unit_value_assistant,
			requires_patients = EXCLUDED.requires_patients,
			supports_roles = EXCLUDED.supports_roles,
			pricing_rules = EXCLUDED.pricing_rules,
			report_group_id = EXCLUDED.report_group_id,
			is_active = EXCLUDED.is_active,
			sort_order = EXCLUDED.sort_order
	`,
		a.ID, a.HospitalID, a.Name, string(a.UnitKind),
		nullDecimal(a.UnitValue), nullDecimal(a.PrincipalValue), nullDecimal(a.AssistantValue),
		a.RequiresPatients, a.SupportsRoles, rules, a.ReportGroupID, a.Active, a.SortOrder,
	)
	return classify("put act", a.ID, err)
}

const actColumns = `a.id, a.user_hospital_id, a.name, a.unit_type, a.unit_value, a.unit_value_principal,
	a.unit_value_assistant, a.requires_patients, a.supports_roles, a.pricing_rules,
	a.report_group_id, a.is_active, a.sort_order`

type actRow struct {
	act       billing.MedicalAct
	unitType  string
	unitValue decimal.NullDecimal
	principal decimal.NullDecimal
	assistant decimal.NullDecimal
	rules     []byte
}

func (r *actRow) dest() []any {
	return []any{
		&r.act.ID, &r.act.HospitalID, &r.act.Name, &r.unitType, &r.unitValue, &r.principal,
		&r.assistant, &r.act.RequiresPatients, &r.act.SupportsRoles, &r.rules,
		&r.act.ReportGroupID, &r.act.Active, &r.act.SortOrder,
	}
}

func (r *actRow) decode() (billing.MedicalAct, error) {
	act := r.act
	act.UnitKind = billing.UnitKind(r.unitType)
	act.UnitValue = decimalPtr(r.unitValue)
	act.PrincipalValue = decimalPtr(r.principal)
	act.AssistantValue = decimalPtr(r.assistant)

	rules, err := billing.ParsePricingRules(r.rules)
	if err != nil {
		return act, err
	}
	act.PricingRules = rules
	return act, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func (s *Store) GetAct(ctx context.Context, actID string) (billing.MedicalAct, error) {
	var r actRow
	err := s.pool.QueryRow(ctx, `SELECT `+actColumns+` FROM medical_acts a WHERE a.id = $1`, actID).Scan(r.dest()...)
	if err != nil {
		return billing.MedicalAct{}, classify("get act", actID, err)
	}
	act, err := r.decode()
	return act, classify("get act", actID, err)
}

func (s *Store) ListActs(ctx context.Context, hospitalID string) ([]billing.MedicalAct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+actColumns+` FROM medical_acts a WHERE a.user_hospital_id = $1 ORDER BY a.sort_order, a.id`,
		hospitalID)
	if err != nil {
		return nil, classify("list acts", hospitalID, err)
	}
	defer rows.Close()

	var acts []billing.MedicalAct
	for rows.Next() {
		var r actRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, classify("list acts", hospitalID, err)
		}
		act, err := r.decode()
		if err != nil {
			return nil, classify("list acts", hospitalID, err)
		}
		acts = append(acts, act)
	}
	return acts, classify("list acts", hospitalID, rows.Err())
}

func (s *Store) ListActiveGroups(ctx context.Context, hospitalID string) ([]billing.ReportGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_hospital_id, name, sort_order, is_active
		FROM report_groups
		WHERE user_hospital_id = $1 AND is_active
		ORDER BY sort_order, id
	`, hospitalID)
	if err != nil {
		return nil, classify("list active groups", hospitalID, err)
	}

	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.ReportGroup, error) {
		var g billing.ReportGroup
		err := row.Scan(&g.ID, &g.HospitalID, &g.Name, &g.SortOrder, &g.Active)
		return g, err
	})
	return groups, classify("list active groups", hospitalID, err)
}

func scanAssignment(row pgx.Row) (billing.HospitalAssignment, error) {
	var a billing.HospitalAssignment
	err := row.Scan(&a.ID, &a.UserID, &a.CatalogHospitalID, &a.HospitalName, &a.ClosingDay)
	return a, err
}

func (s *Store) GetAssignment(ctx context.Context, userID, hospitalID string) (billing.HospitalAssignment, error) {
	a, err := scanAssignment(s.pool.QueryRow(ctx, `
		SELECT id, user_id, hospital_id, hospital_name, closing_day
		FROM hospital_assignments
		WHERE id = $1 AND user_id = $2
	`, hospitalID, userID))
	if err != nil {
		return billing.HospitalAssignment{}, classify("get assignment", hospitalID, err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]billing.HospitalAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, hospital_id, hospital_name, closing_day
		FROM hospital_assignments
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, classify("list assignments", userID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.HospitalAssignment, error) {
		return scanAssignment(row)
	})
	return out, classify("list assignments", userID, err)
}

// assignmentCascade deletes everything hanging off one assignment, children first.
var assignmentCascade = []string{
	`DELETE FROM closure_group_statuses
		WHERE closure_id IN (SELECT id FROM hospital_closures WHERE user_hospital_id = $1)`,
	`DELETE FROM hospital_closures WHERE user_hospital_id = $1`,
	`DELETE FROM entries WHERE user_hospital_id = $1`,
	`DELETE FROM medical_acts WHERE user_hospital_id = $1`,
	`DELETE FROM report_groups WHERE user_hospital_id = $1`,
	`DELETE FROM hospital_assignments WHERE id = $1`,
}

func (s *Store) DeleteAssignment(ctx context.Context, userID, hospitalID string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx,
			`SELECT id FROM hospital_assignments WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			hospitalID, userID).Scan(&id)
		if err != nil {
			return err
		}
		for _, query := range assignmentCascade {
			if _, err := tx.Exec(ctx, query, hospitalID); err != nil {
				return err
			}
		}
		return nil
	})
	return classify("delete assignment", hospitalID, err)
}

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = `e.id, e.user_id, e.user_hospital_id, e.act_id, e.date, e.start_at, e.end_at,
	e.quantity, e.notes, e.patients_count, e.role, e.total_amount, e.calculation_detail`

type entryRow struct {
	entry   billing.Entry
	date    time.Time
	startAt *time.Time
	endAt   *time.Time
	role    *string
	total   decimal.NullDecimal
	detail  []byte
}

func (r *entryRow) dest() []any {
	return []any{
		&r.entry.ID, &r.entry.UserID, &r.entry.HospitalID, &r.entry.ActID, &r.date, &r.startAt, &r.endAt,
		&r.entry.Quantity, &r.entry.Notes, &r.entry.PatientsCount, &r.role, &r.total, &r.detail,
	}
}

func (r *entryRow) decode() (billing.Entry, error) {
	e := r.entry
	e.Date = billing.DateOf(r.date)
	e.StartAt = timeInstant(r.startAt)
	e.EndAt = timeInstant(r.endAt)
	e.TotalAmount = decimalPtr(r.total)
	if r.role != nil {
		role, err := billing.ParseRole(*r.role)
		if err != nil {
			return e, err
		}
		e.Role = role
	}
	if len(r.detail) > 0 {
		var d billing.CalculationDetail
		if err := json.Unmarshal(r.detail, &d); err != nil {
			return e, fmt.Errorf("invalid calculation detail: %w", err)
		}
		e.CalculationDetail = &d
	}
	return e, nil
}

func entryArgs(e billing.Entry) ([]any, error) {
	var detail []byte
	if e.CalculationDetail != nil {
		raw, err := json.Marshal(e.CalculationDetail)
		if err != nil {
			return nil, fmt.Errorf("failed to encode calculation detail: %w", err)
		}
		detail = raw
	}
	var role *string
	if e.Role != nil {
		r := string(*e.Role)
		role = &r
	}
	return []any{
		e.ID, e.UserID, e.HospitalID, e.ActID, e.Date.Time(),
		instantTime(e.StartAt), instantTime(e.EndAt), e.Quantity,
		e.Notes, e.PatientsCount, role, nullDecimal(e.TotalAmount), detail,
	}, nil
}

func (s *Store) ListEntries(ctx context.Context, q billing.EntryQuery) ([]billing.EntryWithAct, error) {
	key := q.HospitalID + "/" + q.Period.String()
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`, `+actColumns+`,
			g.id, g.user_hospital_id, g.name, g.sort_order, g.is_active
		FROM entries e
		JOIN medical_acts a ON a.id = e.act_id
		LEFT JOIN report_groups g ON g.id = a.report_group_id
		WHERE e.user_id = $1 AND e.user_hospital_id = $2 AND e.date BETWEEN $3 AND $4
		ORDER BY e.date, e.created_at, e.id
	`, q.UserID, q.HospitalID, q.Period.Start.Time(), q.Period.End.Time())
	if err != nil {
		return nil, classify("list entries", key, err)
	}
	defer rows.Close()

	var out []billing.EntryWithAct
	for rows.Next() {
		var (
			er        entryRow
			ar        actRow
			gID       *string
			gHospital *string
			gName     *string
			gSort     *int
			gActive   *bool
		)
		dest := append(er.dest(), ar.dest()...)
		dest = append(dest, &gID, &gHospital, &gName, &gSort, &gActive)
		if err := rows.Scan(dest...); err != nil {
			return nil, classify("list entries", key, err)
		}
		entry, err := er.decode()
		if err != nil {
			return nil, classify("list entries", key, err)
		}
		act, err := ar.decode()
		if err != nil {
			return nil, classify("list entries", key, err)
		}
		row := billing.EntryWithAct{Entry: entry, Act: act}
		if gID != nil {
			row.Group = &billing.ReportGroup{ID: *gID, HospitalID: *gHospital, Name: *gName, SortOrder: *gSort, Active: *gActive}
		}
		out = append(out, row)
	}
	return out, classify("list entries", key, rows.Err())
}

func (s *Store) GetEntry(ctx context.Context, userID, entryID string) (billing.Entry, error) {
	var er entryRow
	err := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM entries e WHERE e.id = $1 AND e.user_id = $2`,
		entryID, userID).Scan(er.dest()...)
	if err != nil {
		return billing.Entry{}, classify("get entry", entryID, err)
	}
	e, err := er.decode()
	return e, classify("get entry", entryID, err)
}

func (s *Store) InsertEntry(ctx context.Context, e billing.Entry) error {
	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO entries
		(id, user_id, user_hospital_id, act_id, date, start_at, end_at, quantity, notes,
		 patients_count, role, total_amount, calculation_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, args...)
	return classify("insert entry", e.ID, err)
}

func (s *Store) UpdateEntry(ctx context.Context, e billing.Entry) error {
	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE entries SET
			user_hospital_id = $3, act_id = $4, date = $5, start_at = $6, end_at = $7, quantity = $8,
			notes = $9, patients_count = $10, role = $11, total_amount = $12, calculation_detail = $13,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, args...)
	if err != nil {
		return classify("update entry", e.ID, err)
	}
	return requireAffected(tag, "update entry", e.ID)
}

// =============================================================================
// CLOSURES
// =============================================================================

const closureColumns = `id, user_id, user_hospital_id, period_start_calc, period_end_calc,
	period_start_effective, period_end_effective, is_adjusted, adjust_reason, created_at, updated_at`

func scanClosure(row pgx.Row) (billing.HospitalClosure, error) {
	var (
		c                  billing.HospitalClosure
		calcStart, calcEnd time.Time
		effStart, effEnd   time.Time
	)
	err := row.Scan(&c.ID, &c.UserID, &c.HospitalID, &calcStart, &calcEnd,
		&effStart, &effEnd, &c.IsAdjusted, &c.AdjustReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return billing.HospitalClosure{}, err
	}
	c.Calculated = billing.Period{Start: billing.DateOf(calcStart), End: billing.DateOf(calcEnd)}
	c.Effective = billing.Period{Start: billing.DateOf(effStart), End: billing.DateOf(effEnd)}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) FindClosure(ctx context.Context, key billing.ClosureKey) (billing.HospitalClosure, error) {
	c, err := scanClosure(s.pool.QueryRow(ctx, `
		SELECT `+closureColumns+`
		FROM hospital_closures
		WHERE user_id = $1 AND user_hospital_id = $2 AND period_start_calc = $3 AND period_end_calc = $4
	`, key.UserID, key.HospitalID, key.Calculated.Start.Time(), key.Calculated.End.Time()))
	if err != nil {
		return billing.HospitalClosure{}, classify("find closure", key.String(), err)
	}
	return c, nil
}

func (s *Store) GetClosure(ctx context.Context, closureID string) (billing.HospitalClosure, error) {
	c, err := scanClosure(s.pool.QueryRow(ctx,
		`SELECT `+closureColumns+` FROM hospital_closures WHERE id = $1`, closureID))
	if err != nil {
		return billing.HospitalClosure{}, classify("get closure", closureID, err)
	}
	return c, nil
}

func (s *Store) InsertClosure(ctx context.Context, c billing.HospitalClosure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hospital_closures
		(id, user_id, user_hospital_id, period_start_calc, period_end_calc,
		 period_start_effective, period_end_effective, is_adjusted, adjust_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.ID, c.UserID, c.HospitalID,
		c.Calculated.Start.Time(), c.Calculated.End.Time(),
		c.Effective.Start.Time(), c.Effective.End.Time(),
		c.IsAdjusted, c.AdjustReason, c.CreatedAt, c.UpdatedAt,
	)
	return classify("insert closure", c.Key().String(), err)
}

func (s *Store) UpdateClosurePeriod(ctx context.Context, c billing.HospitalClosure) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hospital_closures SET
			period_start_effective = $2, period_end_effective = $3, is_adjusted = $4,
			adjust_reason = $5, updated_at = $6
		WHERE id = $1
	`, c.ID, c.Effective.Start.Time(), c.Effective.End.Time(), c.IsAdjusted, c.AdjustReason, c.UpdatedAt)
	if err != nil {
		return classify("update closure", c.ID, err)
	}
	return requireAffected(tag, "update closure", c.ID)
}

const statusColumns = `id, closure_id, report_group_id, is_consolidated, consolidated_at`

func scanStatus(row pgx.Row) (billing.ClosureGroupStatus, error) {
	var st billing.ClosureGroupStatus
	if err := row.Scan(&st.ID, &st.ClosureID, &st.ReportGroupID, &st.IsConsolidated, &st.ConsolidatedAt); err != nil {
		return billing.ClosureGroupStatus{}, err
	}
	if st.ConsolidatedAt != nil {
		t := st.ConsolidatedAt.UTC()
		st.ConsolidatedAt = &t
	}
	return st, nil
}

func storedGroupKey(groupID *string) string {
	if groupID == nil {
		return ""
	}
	return *groupID
}

func (s *Store) ListGroupStatuses(ctx context.Context, closureID string) ([]billing.ClosureGroupStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+statusColumns+`
		FROM closure_group_statuses
		WHERE closure_id = $1
		ORDER BY group_key
	`, closureID)
	if err != nil {
		return nil, classify("list group statuses", closureID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.ClosureGroupStatus, error) {
		return scanStatus(row)
	})
	return out, classify("list group statuses", closureID, err)
}

func (s *Store) InsertGroupStatus(ctx context.Context, st billing.ClosureGroupStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO closure_group_statuses
		(id, closure_id, report_group_id, group_key, is_consolidated, consolidated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, st.ID, st.ClosureID, st.ReportGroupID, storedGroupKey(st.ReportGroupID), st.IsConsolidated, st.ConsolidatedAt)
	return classify("insert group status", st.ClosureID+"/"+st.GroupKey(), err)
}

func (s *Store) GetGroupStatus(ctx context.Context, statusID string) (billing.ClosureGroupStatus, error) {
	st, err := scanStatus(s.pool.QueryRow(ctx,
		`SELECT `+statusColumns+` FROM closure_group_statuses WHERE id = $1`, statusID))
	if err != nil {
		return billing.ClosureGroupStatus{}, classify("get group status", statusID, err)
	}
	return st, nil
}

func (s *Store) UpdateGroupStatus(ctx context.Context, st billing.ClosureGroupStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE closure_group_statuses SET is_consolidated = $2, consolidated_at = $3
		WHERE id = $1
	`, st.ID, st.IsConsolidated, st.ConsolidatedAt)
	if err != nil {
		return classify("update group status", st.ID, err)
	}
	return requireAffected(tag, "update group status", st.ID)
}
