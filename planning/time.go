package planning

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE - A calendar day
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day, normalized to UTC midnight.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Time() time.Time          { return d.t }
func (d Date) IsZero() bool             { return d.t.IsZero() }
func (d Date) Equal(o Date) bool        { return d.t.Equal(o.t) }
func (d Date) Before(o Date) bool       { return d.t.Before(o.t) }
func (d Date) After(o Date) bool        { return d.t.After(o.t) }
func (d Date) AddDays(n int) Date       { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Weekday() time.Weekday    { return d.t.Weekday() }
func (d Date) String() string           { return d.t.Format(dateLayout) }

// WeekStart returns the Monday of d's ISO week.
func (d Date) WeekStart() Date {
	offset := (int(d.t.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// =============================================================================
// CLOCK TIME - Wall-clock minutes since midnight
// =============================================================================

const (
	MinutesPerDay = 24 * 60
	clockLayout   = "15:04"
)

// ClockTime is a wall-clock time of day in minutes since midnight.
// 24:00 (1440) is allowed as an end-of-day marker.
type ClockTime int

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime accepts "HH:MM" and "HH:MM:SS" (seconds are dropped).
func ParseClockTime(s string) (ClockTime, error) {
	if s == "24:00" || s == "24:00:00" {
		return ClockTime(MinutesPerDay), nil
	}
	if len(s) == len("15:04:05") {
		s = s[:5]
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (use HH:MM): %w", s, err)
	}
	return NewClockTime(t.Hour(), t.Minute()), nil
}

func MustParseClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Minutes() int { return int(c) }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Ptr is a convenience for optional fields.
func (c ClockTime) Ptr() *ClockTime { return &c }

// =============================================================================
// WORKING HOURS - Default span used when confirming all-day entries
// =============================================================================

type WorkingHours struct {
	Start ClockTime
	End   ClockTime
}

// DefaultWorkingHours is 07:00-16:00.
var DefaultWorkingHours = WorkingHours{Start: NewClockTime(7, 0), End: NewClockTime(16, 0)}

func (w WorkingHours) Validate() error {
	if w.Start < 0 || w.End > MinutesPerDay || w.Start == w.End {
		return fmt.Errorf("%w: working hours %s-%s", ErrInvalidTimeRange, w.Start, w.End)
	}
	return nil
}

// =============================================================================
// DURATIONS - Raw time records may cross midnight
// =============================================================================

// DurationBetween is midnight-aware: 22:00 -> 06:00 is eight hours.
// Equal from/to is treated as zero, not a full day.
func DurationBetween(from, to ClockTime) time.Duration {
	minutes := int(to) - int(from)
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return time.Duration(minutes) * time.Minute
}

// Hours returns the worked hours between from and to, rounded to two places.
func Hours(from, to ClockTime) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(DurationBetween(from, to) / time.Minute))
	return minutes.Div(decimal.NewFromInt(60)).Round(2)
}
