package consolidation

import (
	"context"

	"github.com/Jelela/mishorasmed/billing"
)

// UpcomingWindowDays is how far ahead a closing counts as upcoming.
const UpcomingWindowDays = 7

// HospitalRef names one of the user's hospitals.
type HospitalRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpcomingClosing is a closing inside the upcoming window.
type UpcomingClosing struct {
	ClosingInfo
	DaysUntil int `json:"days_until"`
}

// Actionables is what needs the user's attention on a given day.
type Actionables struct {
	NoHospitals                bool              `json:"no_hospitals"`
	NoActivityThisWeek         bool              `json:"no_activity_this_week"`
	HospitalsWithoutActs       []HospitalRef     `json:"hospitals_without_acts"`
	HospitalsWithoutClosingDay []HospitalRef     `json:"hospitals_without_closing_day"`
	ActsWithoutValue           int               `json:"acts_without_value"`
	PendingClosings            []ClosingInfo     `json:"pending_closings"`
	PendingCount               int               `json:"pending_count"`
	UpcomingClosings           []UpcomingClosing `json:"upcoming_closings"`
}

// Actionables collects the reminders for the user's home screen:
//   - no hospital configured
//   - no entry since the Sunday starting today's week
//   - hospitals without an active act, and active acts without a rate
//   - hospitals without a closing day, listed only when there is more than one hospital
//   - past closings since the history cutoff that are not fully consolidated
//   - closings due within UpcomingWindowDays days
func (s *Service) Actionables(ctx context.Context, userID string, today billing.Date) (Actionables, error) {
	out := Actionables{
		HospitalsWithoutActs:       []HospitalRef{},
		HospitalsWithoutClosingDay: []HospitalRef{},
		PendingClosings:            []ClosingInfo{},
		UpcomingClosings:           []UpcomingClosing{},
	}

	assignments, err := s.store.ListAssignments(ctx, userID)
	if err != nil {
		return Actionables{}, err
	}
	if len(assignments) == 0 {
		out.NoHospitals = true
		return out, nil
	}

	weekStart := today.AddDays(-int(today.Time().Weekday()))
	week := billing.Period{Start: weekStart, End: today}
	active := false
	for _, a := range assignments {
		ref := HospitalRef{ID: a.ID, Name: a.HospitalName}

		if !active {
			rows, err := s.store.ListEntries(ctx, billing.EntryQuery{UserID: userID, HospitalID: a.ID, Period: week})
			if err != nil {
				return Actionables{}, err
			}
			active = len(rows) > 0
		}

		acts, err := s.store.ListActs(ctx, a.ID)
		if err != nil {
			return Actionables{}, err
		}
		hasActive := false
		for _, act := range acts {
			if !act.Active {
				continue
			}
			hasActive = true
			if !priced(act) {
				out.ActsWithoutValue++
			}
		}
		if !hasActive {
			out.HospitalsWithoutActs = append(out.HospitalsWithoutActs, ref)
		}

		if a.ClosingDay == nil && len(assignments) > 1 {
			out.HospitalsWithoutClosingDay = append(out.HospitalsWithoutClosingDay, ref)
		}
	}
	out.NoActivityThisWeek = !active

	closings, err := s.ListClosings(ctx, userID, today)
	if err != nil {
		return Actionables{}, err
	}
	for _, c := range closings.Past {
		pending, err := s.pending(ctx, c)
		if err != nil {
			return Actionables{}, err
		}
		if pending {
			out.PendingClosings = append(out.PendingClosings, c)
		}
	}
	out.PendingCount = len(out.PendingClosings)

	horizon := today.AddDays(UpcomingWindowDays)
	for _, c := range closings.Upcoming {
		if c.ClosingDate.After(horizon) {
			continue
		}
		days := billing.Period{Start: today, End: c.ClosingDate}.Days() - 1
		out.UpcomingClosings = append(out.UpcomingClosings, UpcomingClosing{ClosingInfo: c, DaysUntil: days})
	}
	return out, nil
}

// pending reports whether a past closing still has work: it was never
// opened, or one of its groups is not consolidated.
func (s *Service) pending(ctx context.Context, c ClosingInfo) (bool, error) {
	if c.ClosureID == nil {
		return true, nil
	}
	statuses, err := s.store.ListGroupStatuses(ctx, *c.ClosureID)
	if err != nil {
		return false, err
	}
	if len(statuses) == 0 {
		return true, nil
	}
	for _, st := range statuses {
		if !st.IsConsolidated {
			return true, nil
		}
	}
	return false, nil
}

func priced(act billing.MedicalAct) bool {
	if act.SupportsRoles {
		return act.PrincipalValue != nil && act.AssistantValue != nil
	}
	return act.UnitValue != nil
}
