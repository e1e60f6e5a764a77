package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jelela/mishorasmed/billing"
)

// =============================================================================
// ENTRIES (billing.EntryStore)
// =============================================================================

const entryColumns = `e.id, e.user_id, e.user_hospital_id, e.act_id, e.date, e.start_at, e.end_at,
	e.quantity, e.notes, e.patients_count, e.role, e.total_amount, e.calculation_detail`

// entryRow holds the raw columns of an entries row until decoded.
type entryRow struct {
	entry    billing.Entry
	date     string
	startAt  sql.NullString
	endAt    sql.NullString
	quantity string
	notes    sql.NullString
	patients sql.NullInt64
	role     sql.NullString
	total    sql.NullString
	detail   sql.NullString
}

func (r *entryRow) dest() []any {
	return []any{
		&r.entry.ID, &r.entry.UserID, &r.entry.HospitalID, &r.entry.ActID, &r.date, &r.startAt, &r.endAt,
		&r.quantity, &r.notes, &r.patients, &r.role, &r.total, &r.detail,
	}
}

func (r *entryRow) decode() (billing.Entry, error) {
	e := r.entry
	var err error

	if e.Date, err = billing.ParseDate(r.date); err != nil {
		return e, err
	}
	if e.StartAt, err = instantPtr(r.startAt); err != nil {
		return e, err
	}
	if e.EndAt, err = instantPtr(r.endAt); err != nil {
		return e, err
	}
	if e.Quantity, err = decimal.NewFromString(r.quantity); err != nil {
		return e, fmt.Errorf("invalid quantity %q: %w", r.quantity, err)
	}
	if e.TotalAmount, err = decimalPtr(r.total); err != nil {
		return e, err
	}
	if e.Role, err = billing.ParseRole(r.role.String); err != nil {
		return e, err
	}
	if r.detail.Valid {
		var d billing.CalculationDetail
		if err := json.Unmarshal([]byte(r.detail.String), &d); err != nil {
			return e, fmt.Errorf("invalid calculation detail: %w", err)
		}
		e.CalculationDetail = &d
	}
	e.Notes = stringPtr(r.notes)
	e.PatientsCount = intPtr(r.patients)
	return e, nil
}

func entryArgs(e billing.Entry) ([]any, error) {
	var detail sql.NullString
	if e.CalculationDetail != nil {
		raw, err := json.Marshal(e.CalculationDetail)
		if err != nil {
			return nil, fmt.Errorf("failed to encode calculation detail: %w", err)
		}
		detail = sql.NullString{String: string(raw), Valid: true}
	}
	var role sql.NullString
	if e.Role != nil {
		role = sql.NullString{String: string(*e.Role), Valid: true}
	}
	return []any{
		e.UserID,
		e.HospitalID,
		e.ActID,
		e.Date.String(),
		nullInstant(e.StartAt),
		nullInstant(e.EndAt),
		e.Quantity.String(),
		nullString(e.Notes),
		nullInt(e.PatientsCount),
		role,
		nullDecimal(e.TotalAmount),
		detail,
	}, nil
}

func (s *Store) ListEntries(ctx context.Context, q billing.EntryQuery) ([]billing.EntryWithAct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `, ` + actColumns + `,
			g.id, g.user_hospital_id, g.name, g.sort_order, g.is_active
		FROM entries e
		JOIN medical_acts a ON a.id = e.act_id
		LEFT JOIN report_groups g ON g.id = a.report_group_id
		WHERE e.user_id = ? AND e.user_hospital_id = ? AND e.date >= ? AND e.date <= ?
		ORDER BY e.date, e.created_at, e.id
	`
	key := q.HospitalID + "/" + q.Period.String()
	rows, err := s.db.QueryContext(ctx, query, q.UserID, q.HospitalID, q.Period.Start.String(), q.Period.End.String())
	if err != nil {
		return nil, wrap("list entries", key, err)
	}
	defer rows.Close()

	var out []billing.EntryWithAct
	for rows.Next() {
		var (
			er        entryRow
			ar        actRow
			gID       sql.NullString
			gHospital sql.NullString
			gName     sql.NullString
			gSort     sql.NullInt64
			gActive   sql.NullBool
		)
		dest := append(er.dest(), ar.dest()...)
		dest = append(dest, &gID, &gHospital, &gName, &gSort, &gActive)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrap("list entries", key, err)
		}

		entry, err := er.decode()
		if err != nil {
			return nil, wrap("list entries", key, err)
		}
		act, err := ar.decode()
		if err != nil {
			return nil, wrap("list entries", key, err)
		}
		row := billing.EntryWithAct{Entry: entry, Act: act}
		if gID.Valid {
			row.Group = &billing.ReportGroup{
				ID:         gID.String,
				HospitalID: gHospital.String,
				Name:       gName.String,
				SortOrder:  int(gSort.Int64),
				Active:     gActive.Bool,
			}
		}
		out = append(out, row)
	}
	return out, wrap("list entries", key, rows.Err())
}

func (s *Store) GetEntry(ctx context.Context, userID, entryID string) (billing.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries e WHERE e.id = ? AND e.user_id = ?`,
		entryID, userID)

	var er entryRow
	if err := row.Scan(er.dest()...); err != nil {
		return billing.Entry{}, wrap("get entry", entryID, err)
	}
	e, err := er.decode()
	if err != nil {
		return billing.Entry{}, wrap("get entry", entryID, err)
	}
	return e, nil
}

func (s *Store) InsertEntry(ctx context.Context, e billing.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	now := formatTime(time.Now())
	args = append([]any{e.ID}, args...)
	args = append(args, now, now)

	query := `
		INSERT INTO entries
		(id, user_id, user_hospital_id, act_id, date, start_at, end_at, quantity, notes,
		 patients_count, role, total_amount, calculation_detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query, args...)
	return wrap("insert entry", e.ID, err)
}

func (s *Store) UpdateEntry(ctx context.Context, e billing.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	// user_id is the ownership filter, not a mutable column.
	args = append(args[1:], formatTime(time.Now()), e.ID, e.UserID)

	query := `
		UPDATE entries SET
			user_hospital_id = ?, act_id = ?, date = ?, start_at = ?, end_at = ?, quantity = ?,
			notes = ?, patients_count = ?, role = ?, total_amount = ?, calculation_detail = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("update entry", e.ID, err)
	}
	return requireAffected(result, "update entry", e.ID)
}

func requireAffected(result sql.Result, op, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return wrap(op, key, err)
	}
	if n == 0 {
		return billing.NotFound(op, key)
	}
	return nil
}
