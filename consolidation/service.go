/*
Package consolidation lists closings per hospital and loads the per-group
breakdown of one closing.

FLOW (LoadClosing):
 1. Resolve the user's hospital assignment and its closing day
 2. Check the requested date is a closing date for that day
 3. Ensure the closure row for the calculated period
 4. Read entries in the closure's EFFECTIVE period
 5. Backfill group statuses for every active group plus the ungrouped bucket
 6. Aggregate and attach statuses

Ownership is checked on every mutation: a closure or status that belongs to
another user is reported as not found.
*/
package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/billing"
)

// ClosingInfo describes one closing of one hospital. Closure fields are set
// only when the closure row already exists.
type ClosingInfo struct {
	ID           string          `json:"id"`
	HospitalID   string          `json:"hospital_id"`
	HospitalName string          `json:"hospital_name"`
	ClosingDate  billing.Date    `json:"closing_date"`
	ClosingDay   int             `json:"closing_day"`
	Calculated   billing.Period  `json:"calculated"`
	IsPast       bool            `json:"is_past"`
	ClosureID    *string         `json:"closure_id,omitempty"`
	Effective    *billing.Period `json:"effective,omitempty"`
	IsAdjusted   bool            `json:"is_adjusted"`
}

// ClosingID is the stable identifier of a closing in listings.
func ClosingID(hospitalID string, closingDate billing.Date) string {
	return hospitalID + "-" + closingDate.String()
}

// Closings is the listing for one user.
type Closings struct {
	Upcoming []ClosingInfo `json:"upcoming"`
	Past     []ClosingInfo `json:"past"`
}

// ClosingBreakdown is one loaded closing.
type ClosingBreakdown struct {
	Closing   ClosingInfo                  `json:"closing"`
	Closure   billing.HospitalClosure      `json:"closure"`
	Statuses  []billing.ClosureGroupStatus `json:"statuses"`
	Breakdown billing.Breakdown            `json:"breakdown"`
}

// Service serves closings for the consolidation screens.
type Service struct {
	store     billing.Store
	calc      billing.PeriodCalculator
	aggregate billing.AggregateOptions
	closures  *billing.ClosureManager
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithPeriodCalculator(calc billing.PeriodCalculator) Option {
	return func(s *Service) { s.calc = calc }
}

func WithAggregateOptions(opts billing.AggregateOptions) Option {
	return func(s *Service) { s.aggregate = opts }
}

// WithClosureManager replaces the manager built from the store.
func WithClosureManager(m *billing.ClosureManager) Option {
	return func(s *Service) { s.closures = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store billing.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		calc:      billing.NewPeriodCalculator(),
		aggregate: billing.DefaultAggregateOptions(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.closures == nil {
		s.closures = billing.NewClosureManager(store, billing.WithLogger(s.logger))
	}
	return s
}

// Calculator returns the period calculator in use.
func (s *Service) Calculator() billing.PeriodCalculator { return s.calc }

// =============================================================================
// LISTING
// =============================================================================

// ListClosings returns the next closing and the history since the cutoff for
// every assignment with a closing day. today is the user's local date.
func (s *Service) ListClosings(ctx context.Context, userID string, today billing.Date) (Closings, error) {
	assignments, err := s.store.ListAssignments(ctx, userID)
	if err != nil {
		return Closings{}, err
	}

	out := Closings{Upcoming: []ClosingInfo{}, Past: []ClosingInfo{}}
	for _, a := range assignments {
		if a.ClosingDay == nil {
			continue
		}
		cd := *a.ClosingDay

		next, err := s.calc.NextClosing(today, cd)
		if err != nil {
			return Closings{}, fmt.Errorf("hospital %s: %w", a.ID, err)
		}
		info, err := s.closingInfo(ctx, userID, a, next, false)
		if err != nil {
			return Closings{}, err
		}
		out.Upcoming = append(out.Upcoming, info)

		history, err := s.calc.History(today, cd)
		if err != nil {
			return Closings{}, fmt.Errorf("hospital %s: %w", a.ID, err)
		}
		for _, closing := range history {
			info, err := s.closingInfo(ctx, userID, a, closing, true)
			if err != nil {
				return Closings{}, err
			}
			out.Past = append(out.Past, info)
		}
	}

	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].ClosingDate.Before(out.Upcoming[j].ClosingDate)
	})
	sort.SliceStable(out.Past, func(i, j int) bool {
		return out.Past[i].ClosingDate.After(out.Past[j].ClosingDate)
	})
	return out, nil
}

func (s *Service) closingInfo(ctx context.Context, userID string, a billing.HospitalAssignment, closing billing.Date, past bool) (ClosingInfo, error) {
	period, err := s.calc.PeriodFor(closing, *a.ClosingDay)
	if err != nil {
		return ClosingInfo{}, err
	}
	info := ClosingInfo{
		ID:           ClosingID(a.ID, closing),
		HospitalID:   a.ID,
		HospitalName: a.HospitalName,
		ClosingDate:  closing,
		ClosingDay:   *a.ClosingDay,
		Calculated:   period,
		IsPast:       past,
	}

	closure, err := s.store.FindClosure(ctx, billing.ClosureKey{UserID: userID, HospitalID: a.ID, Calculated: period})
	switch {
	case errors.Is(err, billing.ErrNotFound):
		return info, nil
	case err != nil:
		return ClosingInfo{}, err
	}
	withClosure(&info, closure)
	return info, nil
}

func withClosure(info *ClosingInfo, c billing.HospitalClosure) {
	id := c.ID
	effective := c.Effective
	info.ClosureID = &id
	info.Effective = &effective
	info.IsAdjusted = c.IsAdjusted
}

// =============================================================================
// BREAKDOWN
// =============================================================================

// LoadClosing materializes the closure for closingDate and returns its
// per-group totals over the effective period.
func (s *Service) LoadClosing(ctx context.Context, userID, hospitalID string, closingDate billing.Date) (ClosingBreakdown, error) {
	assignment, err := s.store.GetAssignment(ctx, userID, hospitalID)
	if err != nil {
		return ClosingBreakdown{}, err
	}
	if assignment.ClosingDay == nil {
		return ClosingBreakdown{}, &billing.FieldError{Field: "hospital_id", Message: "hospital has no closing day"}
	}
	cd := *assignment.ClosingDay
	if err := billing.ValidateClosingDay(cd); err != nil {
		return ClosingBreakdown{}, err
	}
	if !s.calc.IsClosingDate(closingDate, cd) {
		return ClosingBreakdown{}, &billing.FieldError{
			Field:   "closing_date",
			Message: fmt.Sprintf("%s is not a closing date for closing day %d", closingDate, cd),
		}
	}

	calculated, err := s.calc.PeriodFor(closingDate, cd)
	if err != nil {
		return ClosingBreakdown{}, err
	}
	closure, err := s.closures.EnsureClosure(ctx, userID, hospitalID, calculated)
	if err != nil {
		return ClosingBreakdown{}, err
	}

	rows, err := s.store.ListEntries(ctx, billing.EntryQuery{
		UserID:     userID,
		HospitalID: hospitalID,
		Period:     closure.Effective,
	})
	if err != nil {
		return ClosingBreakdown{}, err
	}
	groups, err := s.store.ListActiveGroups(ctx, hospitalID)
	if err != nil {
		return ClosingBreakdown{}, err
	}

	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	statuses, err := s.closures.EnsureGroupStatuses(ctx, closure.ID, groupIDs)
	if err != nil {
		return ClosingBreakdown{}, err
	}

	breakdown, err := billing.Aggregate(rows, groups, s.aggregate)
	if err != nil {
		return ClosingBreakdown{}, err
	}
	breakdown.AttachStatuses(statuses)

	info := ClosingInfo{
		ID:           ClosingID(hospitalID, closingDate),
		HospitalID:   hospitalID,
		HospitalName: assignment.HospitalName,
		ClosingDate:  closingDate,
		ClosingDay:   cd,
		Calculated:   calculated,
	}
	withClosure(&info, closure)

	s.logger.Debug("closing loaded",
		zap.String("closure_id", closure.ID),
		zap.Stringer("effective", closure.Effective),
		zap.Int("entries", len(rows)),
		zap.Int("groups", len(breakdown.Groups)),
	)
	return ClosingBreakdown{
		Closing:   info,
		Closure:   closure,
		Statuses:  statuses,
		Breakdown: breakdown,
	}, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AdjustPeriod edits the effective period of one of the user's closures.
func (s *Service) AdjustPeriod(ctx context.Context, userID, closureID string, start, end billing.Date, reason *string) (billing.HospitalClosure, error) {
	if _, err := s.ownClosure(ctx, userID, closureID); err != nil {
		return billing.HospitalClosure{}, err
	}
	return s.closures.AdjustPeriod(ctx, closureID, start, end, reason)
}

// SetGroupConsolidated sets the consolidation flag of one of the user's statuses.
func (s *Service) SetGroupConsolidated(ctx context.Context, userID, statusID string, value bool) (billing.ClosureGroupStatus, error) {
	if err := s.ownStatus(ctx, userID, statusID); err != nil {
		return billing.ClosureGroupStatus{}, err
	}
	return s.closures.SetConsolidated(ctx, statusID, value)
}

// ToggleGroup flips the consolidation flag of one of the user's statuses.
func (s *Service) ToggleGroup(ctx context.Context, userID, statusID string) (billing.ClosureGroupStatus, error) {
	if err := s.ownStatus(ctx, userID, statusID); err != nil {
		return billing.ClosureGroupStatus{}, err
	}
	return s.closures.ToggleConsolidated(ctx, statusID)
}

func (s *Service) ownClosure(ctx context.Context, userID, closureID string) (billing.HospitalClosure, error) {
	c, err := s.store.GetClosure(ctx, closureID)
	if err != nil {
		return billing.HospitalClosure{}, err
	}
	if c.UserID != userID {
		return billing.HospitalClosure{}, billing.NotFound("get closure", closureID)
	}
	return c, nil
}

func (s *Service) ownStatus(ctx context.Context, userID, statusID string) error {
	st, err := s.store.GetGroupStatus(ctx, statusID)
	if err != nil {
		return err
	}
	if _, err := s.ownClosure(ctx, userID, st.ClosureID); err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return billing.NotFound("get group status", statusID)
		}
		return err
	}
	return nil
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview is the next closing and its period for a closing day.
type Preview struct {
	ClosingDay  int            `json:"closing_day"`
	Reference   billing.Date   `json:"reference"`
	ClosingDate billing.Date   `json:"closing_date"`
	Period      billing.Period `json:"period"`
}

// PreviewPeriod computes the next closing on or after reference and its period.
func PreviewPeriod(calc billing.PeriodCalculator, reference billing.Date, closingDay int) (Preview, error) {
	next, err := calc.NextClosing(reference, closingDay)
	if err != nil {
		return Preview{}, err
	}
	period, err := calc.PeriodFor(next, closingDay)
	if err != nil {
		return Preview{}, err
	}
	return Preview{ClosingDay: closingDay, Reference: reference, ClosingDate: next, Period: period}, nil
}
