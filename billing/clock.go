package billing

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NAIVE CLOCK - Literal calendar values, no timezone conversion
// =============================================================================
//
// Every value below is held in a time.Time pinned to UTC and is only ever
// built from, or rendered to, its literal digits. UTC is used as a nominal
// clock without DST or offsets; it never means "the instant in Greenwich".

const (
	DateLayout    = "2006-01-02"
	InstantLayout = "2006-01-02T15:04:05"
	WallLayout    = "15:04:05"
	ShortLayout   = "15:04"
)

var (
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	instantPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)
	wallPattern    = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
)

// Date is a calendar day with no time-of-day and no zone.
type Date struct {
	t time.Time
}

// NewDate builds a date. Out-of-range days roll over like time.Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf takes the literal calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD only.
func ParseDate(s string) (Date, error) {
	if !datePattern.MatchString(s) {
		return Date{}, &MalformedInputError{Value: s, Layout: "YYYY-MM-DD"}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &MalformedInputError{Value: s, Layout: "YYYY-MM-DD"}
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string { return d.t.Format(DateLayout) }

// Time returns midnight of the date on the nominal UTC clock.
func (d Date) Time() time.Time { return d.t }

func (d Date) Year() int          { return d.t.Year() }
func (d Date) Month() time.Month  { return d.t.Month() }
func (d Date) Day() int           { return d.t.Day() }
func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// At combines the date with a wall-clock time.
func (d Date) At(w WallTime) Instant {
	return Instant{t: time.Date(d.Year(), d.Month(), d.Day(), w.Hour, w.Minute, w.Second, 0, time.UTC)}
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the number of days of the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// =============================================================================
// WALL TIME
// =============================================================================

// WallTime is a time of day read off a clock face.
type WallTime struct {
	Hour   int
	Minute int
	Second int
}

// Midnight is 00:00:00.
var Midnight = WallTime{}

// ParseWallTime accepts HH:mm:ss or HH:mm.
func ParseWallTime(s string) (WallTime, error) {
	if !wallPattern.MatchString(s) {
		return WallTime{}, &MalformedInputError{Value: s, Layout: "HH:mm:ss"}
	}
	layout := WallLayout
	if len(s) == len(ShortLayout) {
		layout = ShortLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return WallTime{}, &MalformedInputError{Value: s, Layout: "HH:mm:ss"}
	}
	return WallTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func (w WallTime) String() string { return w.asTime().Format(WallLayout) }

// Short renders HH:mm for display.
func (w WallTime) Short() string { return w.asTime().Format(ShortLayout) }

func (w WallTime) seconds() int64 {
	return int64(w.Hour)*3600 + int64(w.Minute)*60 + int64(w.Second)
}

func (w WallTime) asTime() time.Time {
	return time.Date(2000, time.January, 1, w.Hour, w.Minute, w.Second, 0, time.UTC)
}

// =============================================================================
// INSTANT
// =============================================================================

// Instant is a naive date and wall-clock time.
type Instant struct {
	t time.Time
}

// InstantOf takes the literal wall clock of t in t's own location.
func InstantOf(t time.Time) Instant {
	return Instant{t: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)}
}

// ParseInstant accepts YYYY-MM-DDTHH:mm:ss, or a bare date meaning 00:00:00.
// An empty literal fails with ErrMissingInstant; it is never replaced by "now".
func ParseInstant(s string) (Instant, error) {
	if s == "" {
		return Instant{}, ErrMissingInstant
	}
	if datePattern.MatchString(s) {
		d, err := ParseDate(s)
		if err != nil {
			return Instant{}, err
		}
		return d.At(Midnight), nil
	}
	if !instantPattern.MatchString(s) {
		return Instant{}, &MalformedInputError{Value: s, Layout: "YYYY-MM-DDTHH:mm:ss"}
	}
	t, err := time.Parse(InstantLayout, s)
	if err != nil {
		return Instant{}, &MalformedInputError{Value: s, Layout: "YYYY-MM-DDTHH:mm:ss"}
	}
	return Instant{t: t}, nil
}

// ParseInstantOr is ParseInstant with an explicit substitute for an empty
// literal. Malformed non-empty literals still fail.
func ParseInstantOr(s string, fallback Instant) (Instant, error) {
	if s == "" {
		return fallback, nil
	}
	return ParseInstant(s)
}

// MustParseInstant is ParseInstant for literals known to be valid.
func MustParseInstant(s string) Instant {
	i, err := ParseInstant(s)
	if err != nil {
		panic(err)
	}
	return i
}

func (i Instant) String() string { return i.t.Format(InstantLayout) }

// Time returns the instant on the nominal UTC clock.
func (i Instant) Time() time.Time { return i.t }

func (i Instant) Date() Date { return NewDate(i.t.Year(), i.t.Month(), i.t.Day()) }

func (i Instant) Clock() WallTime {
	return WallTime{Hour: i.t.Hour(), Minute: i.t.Minute(), Second: i.t.Second()}
}

func (i Instant) IsZero() bool                { return i.t.IsZero() }
func (i Instant) Before(other Instant) bool   { return i.t.Before(other.t) }
func (i Instant) After(other Instant) bool    { return i.t.After(other.t) }
func (i Instant) Equal(other Instant) bool    { return i.t.Equal(other.t) }
func (i Instant) AddHours(h int) Instant      { return Instant{t: i.t.Add(time.Duration(h) * time.Hour)} }
func (i Instant) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Instant) UnmarshalText(b []byte) error {
	parsed, err := ParseInstant(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// =============================================================================
// DURATION
// =============================================================================

// MidnightPolicy decides how an end wall time earlier than the start is read.
type MidnightPolicy int

const (
	// ElapsedStrict uses full calendar arithmetic. End must be strictly after
	// start; a session crossing midnight must carry the next day's date.
	ElapsedStrict MidnightPolicy = iota

	// WrapAtMidnight compares clock faces only. An end wall time earlier than
	// the start wall time is read as the next day (+24h). Dates are ignored.
	WrapAtMidnight
)

func (p MidnightPolicy) String() string {
	switch p {
	case ElapsedStrict:
		return "elapsed_strict"
	case WrapAtMidnight:
		return "wrap_at_midnight"
	default:
		return "unknown"
	}
}

var secondsPerHour = decimal.NewFromInt(3600)

// DurationHours returns the hours between two instants under the given policy.
func DurationHours(start, end Instant, policy MidnightPolicy) (decimal.Decimal, error) {
	var seconds int64
	switch policy {
	case ElapsedStrict:
		seconds = int64(end.t.Sub(start.t) / time.Second)
		if seconds <= 0 {
			return decimal.Zero, ErrEndBeforeStart
		}
	case WrapAtMidnight:
		seconds = end.Clock().seconds() - start.Clock().seconds()
		if seconds < 0 {
			seconds += 24 * 3600
		}
	default:
		return decimal.Zero, &FieldError{Field: "policy", Message: "unknown midnight policy"}
	}
	return decimal.NewFromInt(seconds).Div(secondsPerHour), nil
}
