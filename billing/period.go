package billing

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive range of calendar days. It starts at 00:00:00 of
// Start and runs through the last second of End.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewPeriod validates start <= end.
func NewPeriod(start, end Date) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

func (p Period) String() string      { return p.Start.String() + ".." + p.End.String() }
func (p Period) Equal(o Period) bool { return p.Start.Equal(o.Start) && p.End.Equal(o.End) }

func (p Period) StartInstant() Instant { return p.Start.At(Midnight) }

// EndInstant returns 23:59:59 of End. Instant has whole-second resolution, so
// this is the last instant of the period and covers End through 23:59:59.999.
func (p Period) EndInstant() Instant {
	return p.End.At(WallTime{Hour: 23, Minute: 59, Second: 59})
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns the number of calendar days covered.
func (p Period) Days() int {
	return int(p.End.t.Sub(p.Start.t).Hours()/24) + 1
}

// =============================================================================
// POLICIES
// =============================================================================

// MonthEndPolicy decides what a closing day means in a month that is too short.
type MonthEndPolicy int

const (
	// MonthEndClamp moves the closing day to the month's last day, so day 31
	// closes on Feb 28/29 and Apr 30. Periods stay contiguous for every day.
	MonthEndClamp MonthEndPolicy = iota

	// MonthEndRollover lets the day overflow into the following month, so day
	// 31 in February closes on Mar 2/3. Kept for parity with legacy data.
	MonthEndRollover
)

func (p MonthEndPolicy) String() string {
	switch p {
	case MonthEndClamp:
		return "clamp"
	case MonthEndRollover:
		return "rollover"
	default:
		return "unknown"
	}
}

func ParseMonthEndPolicy(s string) (MonthEndPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return MonthEndClamp, nil
	case "rollover":
		return MonthEndRollover, nil
	default:
		return 0, &FieldError{Field: "month_end_policy", Message: fmt.Sprintf("unknown policy %q", s)}
	}
}

// ClosingOrder is the order closings are enumerated in.
type ClosingOrder int

const (
	Ascending ClosingOrder = iota
	Descending
)

// DefaultHistoryCutoff is the earliest closing listed in a hospital's history.
var DefaultHistoryCutoff = NewDate(2026, time.January, 1)

// ValidateClosingDay checks the day is in [1,31].
func ValidateClosingDay(closingDay int) error {
	if closingDay < 1 || closingDay > 31 {
		return fmt.Errorf("%w: got %d", ErrInvalidClosingDay, closingDay)
	}
	return nil
}

// =============================================================================
// PERIOD CALCULATOR
// =============================================================================

// PeriodCalculator derives billing periods from a closing day. The zero value
// clamps at month end and uses DefaultHistoryCutoff. All methods are pure.
type PeriodCalculator struct {
	MonthEnd      MonthEndPolicy
	HistoryCutoff Date
}

// NewPeriodCalculator returns a calculator with the default policies.
func NewPeriodCalculator() PeriodCalculator {
	return PeriodCalculator{MonthEnd: MonthEndClamp, HistoryCutoff: DefaultHistoryCutoff}
}

// closingIn returns the closing date attributed to the given month.
// Month and year may be out of range; they are normalized first.
func (pc PeriodCalculator) closingIn(year int, month time.Month, closingDay int) Date {
	first := NewDate(year, month, 1)
	if pc.MonthEnd == MonthEndRollover {
		return NewDate(first.Year(), first.Month(), closingDay)
	}
	day := min(closingDay, DaysInMonth(first.Year(), first.Month()))
	return NewDate(first.Year(), first.Month(), day)
}

func (pc PeriodCalculator) cutoff() Date {
	if pc.HistoryCutoff.IsZero() {
		return DefaultHistoryCutoff
	}
	return pc.HistoryCutoff
}

// billable reports whether closing has a non-empty period. Under rollover the
// closing that follows an overflowed month gets an inverted period; the
// overflowed closing already covers its days, so it is skipped.
func (pc PeriodCalculator) billable(closing Date, closingDay int) bool {
	if pc.MonthEnd != MonthEndRollover {
		return true
	}
	p, err := pc.PeriodFor(closing, closingDay)
	return err == nil && !p.End.Before(p.Start)
}

// NextClosing returns the earliest closing date on or after reference. If this
// month's closing has already passed, the following month's is returned.
func (pc PeriodCalculator) NextClosing(reference Date, closingDay int) (Date, error) {
	if err := ValidateClosingDay(closingDay); err != nil {
		return Date{}, err
	}
	for month := reference.Month(); ; month++ {
		closing := pc.closingIn(reference.Year(), month, closingDay)
		if !closing.Before(reference) && pc.billable(closing, closingDay) {
			return closing, nil
		}
	}
}

// PeriodFor returns the period that ends the day before closingDate. It starts
// on the previous month's closing.
func (pc PeriodCalculator) PeriodFor(closingDate Date, closingDay int) (Period, error) {
	if err := ValidateClosingDay(closingDay); err != nil {
		return Period{}, err
	}
	if pc.MonthEnd == MonthEndRollover {
		// Legacy arithmetic: step the closing date back a month, then set the
		// day; the end is day closingDay-1 of the closing's month.
		prev := NewDate(closingDate.Year(), closingDate.Month()-1, closingDate.Day())
		start := NewDate(prev.Year(), prev.Month(), closingDay)
		end := NewDate(closingDate.Year(), closingDate.Month(), closingDay-1)
		return Period{Start: start, End: end}, nil
	}
	start := pc.closingIn(closingDate.Year(), closingDate.Month()-1, closingDay)
	return Period{Start: start, End: closingDate.AddDays(-1)}, nil
}

// EnumerateClosings returns every billable closing date in [from, to].
func (pc PeriodCalculator) EnumerateClosings(from, to Date, closingDay int, order ClosingOrder) ([]Date, error) {
	if err := ValidateClosingDay(closingDay); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, nil
	}

	var closings []Date
	// One month of slack on each side catches closings rolled across a month boundary.
	year, month := from.Year(), from.Month()-1
	last := NewDate(to.Year(), to.Month()+1, 1)
	for {
		first := NewDate(year, month, 1)
		if first.After(last) {
			break
		}
		c := pc.closingIn(year, month, closingDay)
		if c.AfterOrEqual(from) && c.BeforeOrEqual(to) && pc.billable(c, closingDay) {
			if n := len(closings); n == 0 || closings[n-1].Before(c) {
				closings = append(closings, c)
			}
		}
		month++
	}

	if order == Descending {
		slices.Reverse(closings)
	}
	return closings, nil
}

// History returns the past closings strictly before reference and on or after
// the history cutoff, most recent first.
func (pc PeriodCalculator) History(reference Date, closingDay int) ([]Date, error) {
	return pc.EnumerateClosings(pc.cutoff(), reference.AddDays(-1), closingDay, Descending)
}

// IsClosingDate reports whether d is a closing date for closingDay.
func (pc PeriodCalculator) IsClosingDate(d Date, closingDay int) bool {
	if ValidateClosingDay(closingDay) != nil {
		return false
	}
	if !pc.closingIn(d.Year(), d.Month(), closingDay).Equal(d) &&
		!pc.closingIn(d.Year(), d.Month()-1, closingDay).Equal(d) {
		return false
	}
	return pc.billable(d, closingDay)
}
