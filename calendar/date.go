/*
date.go - Day-granularity time primitives

PURPOSE:
  Everything in this system resolves at day granularity: schedules span
  dates, absences cover dates, the cache is partitioned per (group, date).
  Date wraps time.Time normalized to midnight UTC so that two values built
  from the same calendar day always compare equal, regardless of how they
  were produced.

KEY TYPES:
  Date:      One calendar day (no time-of-day component)
  DateRange: Closed interval [Start, End] of days
  TimeOfDay: Wall-clock minutes within a day (for time slots)

AGE ARITHMETIC:
  AgeOn is calendar-aware, not plain year subtraction. Feb-29 birthdays
  are observed on Feb 28 in non-leap years; ObservedBirthday encodes that
  policy in one place so the birthday scan and age derivation agree.

SEE ALSO:
  - entities.go: Date-windowed rule entities
  - resolve.go: Iterates DateRange.Days during resolution
*/
package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - One calendar day
// =============================================================================

type Date struct {
	Time time.Time
}

// NewDate builds a Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date  { return Date{Time: d.normalize().AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{Time: d.normalize().AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.normalize().Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) String() string {
	return d.normalize().Format("2006-01-02")
}

// DaysBetween returns the number of days from one date to another.
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// AGE ARITHMETIC
// =============================================================================

// IsLeapYear reports whether the year has a Feb 29.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ObservedBirthday returns the day within the given year on which a birthday
// is observed. A Feb-29 birthday is observed on Feb 28 in non-leap years.
func ObservedBirthday(birth Date, year int) Date {
	if birth.Month() == time.February && birth.Day() == 29 && !IsLeapYear(year) {
		return NewDate(year, time.February, 28)
	}
	return NewDate(year, birth.Month(), birth.Day())
}

// AgeOn returns the age in completed years on the given day.
func AgeOn(birth, on Date) int {
	age := on.Year() - birth.Year()
	if on.Before(ObservedBirthday(birth, on.Year())) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// =============================================================================
// DATE RANGE - Closed interval of days
// =============================================================================

// DateRange is the closed interval [Start, End].
type DateRange struct {
	Start Date
	End   Date
}

func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Contains returns true if the day is within [Start, End].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Overlaps returns true if the two closed intervals share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Days returns every day in the range, in order.
func (r DateRange) Days() []Date {
	var days []Date
	current := r.Start
	for current.BeforeOrEqual(r.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// =============================================================================
// TIME OF DAY - Wall-clock minutes for time slots
// =============================================================================

// TimeOfDay is a wall-clock time within a day, minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// ParseTimeOfDay parses "15:04".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// TimeOfDayFromMinutes converts minutes since midnight.
func TimeOfDayFromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

func (t TimeOfDay) Minutes() int             { return t.Hour*60 + t.Minute }
func (t TimeOfDay) Before(o TimeOfDay) bool  { return t.Minutes() < o.Minutes() }
func (t TimeOfDay) After(o TimeOfDay) bool   { return t.Minutes() > o.Minutes() }
func (t TimeOfDay) IsZero() bool             { return t.Hour == 0 && t.Minute == 0 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
