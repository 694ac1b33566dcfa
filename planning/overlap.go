/*
overlap.go - Interval Overlap Validator

PURPOSE:
  Decides whether two blocks of the same worker on the same day collide.
  Pure functions, no state.

INTERVAL MODEL:
  Intervals are half-open [start, end) in minutes since midnight, so
  08:00-12:00 and 12:00-16:00 touch but do not conflict.

  Comparison is same-day. A block whose end is not after its start
  (22:00-02:00) is clamped to end at 24:00 on its own date; the part after
  midnight belongs to the next day and is not compared here. Worked hours of
  raw time records use the midnight-aware DurationBetween instead.

  An all-day block conflicts with every other block on that date.

WHAT IS IGNORED:
  - the entry being edited (excludeID)
  - CONFIRMED entries: they are settled fact, not contested plan
  - entries of other workers or dates
*/
package planning

import (
	"fmt"
	"strings"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// span returns the same-day [start, end) of a timed block.
func span(start, end ClockTime) (int, int) {
	s, e := start.Minutes(), end.Minutes()
	if e <= s {
		e = MinutesPerDay
	}
	return s, e
}

// entriesConflict reports whether two entries on the same date collide.
// Timed entries missing a bound are treated as occupying the whole day.
func entriesConflict(a, b PlanningEntry) bool {
	if a.AllDay || b.AllDay || !a.HasTimes() || !b.HasTimes() {
		return true
	}
	as, ae := span(*a.StartTime, *a.EndTime)
	bs, be := span(*b.StartTime, *b.EndTime)
	return Overlaps(as, ae, bs, be)
}

// CheckEntryShape rejects candidates that cannot be compared at all.
func CheckEntryShape(e PlanningEntry) error {
	if e.AllDay {
		return nil
	}
	if !e.HasTimes() {
		return newValidationError("missing_times", "Zeitplanung erfordert Start- und Endzeit", ErrMissingTimes)
	}
	if *e.StartTime == *e.EndTime {
		return newValidationError("invalid_range",
			fmt.Sprintf("Startzeit und Endzeit sind identisch (%s)", e.StartTime), ErrInvalidTimeRange)
	}
	if *e.StartTime < 0 || *e.StartTime >= MinutesPerDay || *e.EndTime < 0 || *e.EndTime > MinutesPerDay {
		return newValidationError("invalid_range",
			fmt.Sprintf("Ungültige Uhrzeit %s-%s", e.StartTime, e.EndTime), ErrInvalidTimeRange)
	}
	return nil
}

// ValidateEntryAgainstDay checks candidate against the worker's other blocks
// on the same date and returns the first conflict as a *ValidationError.
func ValidateEntryAgainstDay(candidate PlanningEntry, existing []PlanningEntry, excludeID PlanningEntryID) error {
	if err := CheckEntryShape(candidate); err != nil {
		return err
	}
	for _, other := range existing {
		if excludeID != "" && other.ID == excludeID {
			continue
		}
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		if other.Status == StatusConfirmed {
			continue
		}
		if other.WorkerID != candidate.WorkerID || !other.Date.Equal(candidate.Date) {
			continue
		}
		if entriesConflict(candidate, other) {
			err := newValidationError("conflict", "Überschneidung mit bestehendem Eintrag: "+DescribeEntry(other), ErrConflict)
			err.ConflictingID = other.ID
			return err
		}
	}
	return nil
}

// ValidatePlanningEntryOverlap is the caller-facing name of
// ValidateEntryAgainstDay.
func ValidatePlanningEntryOverlap(candidate PlanningEntry, existingDayEntries []PlanningEntry, excludeID PlanningEntryID) error {
	return ValidateEntryAgainstDay(candidate, existingDayEntries, excludeID)
}

// DescribeEntry renders a block as "PROJEKT @ loc-1, 08:00-12:00".
func DescribeEntry(e PlanningEntry) string {
	var b strings.Builder
	b.WriteString(string(e.Category))
	if e.LocationID != nil && *e.LocationID != "" {
		b.WriteString(" @ ")
		b.WriteString(string(*e.LocationID))
	}
	b.WriteString(", ")
	switch {
	case e.AllDay:
		b.WriteString("ganztägig")
	case e.HasTimes():
		b.WriteString(e.StartTime.String())
		b.WriteString("-")
		b.WriteString(e.EndTime.String())
	default:
		b.WriteString("ohne Zeitangabe")
	}
	return b.String()
}
