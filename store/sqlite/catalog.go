package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Jelela/mishorasmed/billing"
)

// =============================================================================
// CATALOG WRITES (billing.CatalogWriter)
// =============================================================================

func (s *Store) PutAssignment(ctx context.Context, a billing.HospitalAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO hospital_assignments (id, user_id, hospital_id, hospital_name, closing_day)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			hospital_id = excluded.hospital_id,
			hospital_name = excluded.hospital_name,
			closing_day = excluded.closing_day
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.UserID, a.CatalogHospitalID, a.HospitalName, nullInt(a.ClosingDay))
	return wrap("put assignment", a.ID, err)
}

func (s *Store) PutGroup(ctx context.Context, g billing.ReportGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO report_groups (id, user_hospital_id, name, sort_order, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_hospital_id = excluded.user_hospital_id,
			name = excluded.name,
			sort_order = excluded.sort_order,
			is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query, g.ID, g.HospitalID, g.Name, g.SortOrder, g.Active)
	return wrap("put report group", g.ID, err)
}

func (s *Store) PutAct(ctx context.Context, a billing.MedicalAct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rules sql.NullString
	if a.PricingRules != nil {
		raw, err := json.Marshal(a.PricingRules)
		if err != nil {
			return fmt.Errorf("failed to encode pricing rules: %w", err)
		}
		rules = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO medical_acts
		(id, user_hospital_id, name, unit_type, unit_value, unit_value_principal, unit_value_assistant,
		 requires_patients, supports_roles, pricing_rules, report_group_id, is_active, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_hospital_id = excluded.user_hospital_id,
			name = excluded.name,
			unit_type = excluded.unit_type,
			unit_value = excluded.unit_value,
			unit_value_principal = excluded.unit_value_principal,
			unit_value_assistant = excluded.unit_value_assistant,
			requires_patients = excluded.requires_patients,
			supports_roles = excluded.supports_roles,
			pricing_rules = excluded.pricing_rules,
			report_group_id = excluded.report_group_id,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.HospitalID,
		a.Name,
		string(a.UnitKind),
		nullDecimal(a.UnitValue),
		nullDecimal(a.PrincipalValue),
		nullDecimal(a.AssistantValue),
		a.RequiresPatients,
		a.SupportsRoles,
		rules,
		nullString(a.ReportGroupID),
		a.Active,
		a.SortOrder,
	)
	return wrap("put act", a.ID, err)
}

// assignmentCascade deletes everything hanging off one assignment, children first.
var assignmentCascade = []string{
	`DELETE FROM closure_group_statuses
		WHERE closure_id IN (SELECT id FROM hospital_closures WHERE user_hospital_id = ?)`,
	`DELETE FROM hospital_closures WHERE user_hospital_id = ?`,
	`DELETE FROM entries WHERE user_hospital_id = ?`,
	`DELETE FROM medical_acts WHERE user_hospital_id = ?`,
	`DELETE FROM report_groups WHERE user_hospital_id = ?`,
	`DELETE FROM hospital_assignments WHERE id = ?`,
}

func (s *Store) DeleteAssignment(ctx context.Context, userID, hospitalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("delete assignment", hospitalID, err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM hospital_assignments WHERE id = ? AND user_id = ?`, hospitalID, userID).Scan(&id)
	if err != nil {
		return wrap("delete assignment", hospitalID, err)
	}
	for _, query := range assignmentCascade {
		if _, err := tx.ExecContext(ctx, query, hospitalID); err != nil {
			return wrap("delete assignment", hospitalID, err)
		}
	}
	return wrap("delete assignment", hospitalID, tx.Commit())
}

// =============================================================================
// CATALOG READS (billing.CatalogStore)
// =============================================================================

const actColumns = `a.id, a.user_hospital_id, a.name, a.unit_type, a.unit_value, a.unit_value_principal,
	a.unit_value_assistant, a.requires_patients, a.supports_roles, a.pricing_rules,
	a.report_group_id, a.is_active, a.sort_order`

// actRow holds the nullable columns of a medical_acts row until decoded.
type actRow struct {
	act       billing.MedicalAct
	unitType  string
	unitValue sql.NullString
	principal sql.NullString
	assistant sql.NullString
	rules     sql.NullString
	groupID   sql.NullString
}

func (r *actRow) dest() []any {
	return []any{
		&r.act.ID, &r.act.HospitalID, &r.act.Name, &r.unitType, &r.unitValue, &r.principal,
		&r.assistant, &r.act.RequiresPatients, &r.act.SupportsRoles, &r.rules,
		&r.groupID, &r.act.Active, &r.act.SortOrder,
	}
}

func (r *actRow) decode() (billing.MedicalAct, error) {
	act := r.act
	act.UnitKind = billing.UnitKind(r.unitType)
	act.ReportGroupID = stringPtr(r.groupID)

	var err error
	if act.UnitValue, err = decimalPtr(r.unitValue); err != nil {
		return act, err
	}
	if act.PrincipalValue, err = decimalPtr(r.principal); err != nil {
		return act, err
	}
	if act.AssistantValue, err = decimalPtr(r.assistant); err != nil {
		return act, err
	}
	if r.rules.Valid {
		if act.PricingRules, err = billing.ParsePricingRules([]byte(r.rules.String)); err != nil {
			return act, err
		}
	}
	return act, nil
}

func scanAct(row scanner) (billing.MedicalAct, error) {
	var r actRow
	if err := row.Scan(r.dest()...); err != nil {
		return billing.MedicalAct{}, err
	}
	return r.decode()
}

func (s *Store) GetAct(ctx context.Context, actID string) (billing.MedicalAct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+actColumns+` FROM medical_acts a WHERE a.id = ?`, actID)
	act, err := scanAct(row)
	if err != nil {
		return billing.MedicalAct{}, wrap("get act", actID, err)
	}
	return act, nil
}

func (s *Store) ListActs(ctx context.Context, hospitalID string) ([]billing.MedicalAct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actColumns+` FROM medical_acts a WHERE a.user_hospital_id = ? ORDER BY a.sort_order, a.id`,
		hospitalID)
	if err != nil {
		return nil, wrap("list acts", hospitalID, err)
	}
	defer rows.Close()

	var acts []billing.MedicalAct
	for rows.Next() {
		act, err := scanAct(rows)
		if err != nil {
			return nil, wrap("list acts", hospitalID, err)
		}
		acts = append(acts, act)
	}
	return acts, wrap("list acts", hospitalID, rows.Err())
}

func (s *Store) ListActiveGroups(ctx context.Context, hospitalID string) ([]billing.ReportGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_hospital_id, name, sort_order, is_active
		FROM report_groups
		WHERE user_hospital_id = ? AND is_active = TRUE
		ORDER BY sort_order, id
	`
	rows, err := s.db.QueryContext(ctx, query, hospitalID)
	if err != nil {
		return nil, wrap("list active groups", hospitalID, err)
	}
	defer rows.Close()

	var groups []billing.ReportGroup
	for rows.Next() {
		var g billing.ReportGroup
		if err := rows.Scan(&g.ID, &g.HospitalID, &g.Name, &g.SortOrder, &g.Active); err != nil {
			return nil, wrap("list active groups", hospitalID, err)
		}
		groups = append(groups, g)
	}
	return groups, wrap("list active groups", hospitalID, rows.Err())
}

func scanAssignment(row scanner) (billing.HospitalAssignment, error) {
	var (
		a          billing.HospitalAssignment
		closingDay sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.CatalogHospitalID, &a.HospitalName, &closingDay); err != nil {
		return billing.HospitalAssignment{}, err
	}
	a.ClosingDay = intPtr(closingDay)
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, userID, hospitalID string) (billing.HospitalAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, hospital_id, hospital_name, closing_day
		FROM hospital_assignments
		WHERE id = ? AND user_id = ?
	`, hospitalID, userID)
	a, err := scanAssignment(row)
	if err != nil {
		return billing.HospitalAssignment{}, wrap("get assignment", hospitalID, err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]billing.HospitalAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, hospital_id, hospital_name, closing_day
		FROM hospital_assignments
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, wrap("list assignments", userID, err)
	}
	defer rows.Close()

	var out []billing.HospitalAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, wrap("list assignments", userID, err)
		}
		out = append(out, a)
	}
	return out, wrap("list assignments", userID, rows.Err())
}
