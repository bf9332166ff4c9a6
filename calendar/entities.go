/*
entities.go - Rule store records and their write-time invariants

PURPOSE:
  The rule store holds plain records: Schedules with their weekly rules,
  TimeSlots, Absences, ClosurePeriods and EndMarks. They carry no behavior
  beyond validation. Each Validate method returns the full structured list
  of violations, not just the first one.

INVARIANTS ENFORCED HERE:
  Schedule:      endDate, if present, strictly after startDate;
                 at most one rule per weekday
  TimeSlot:      end-of-day strictly after start-of-day
  Absence:       end date not before start date
  ClosurePeriod: end date not before start date, reason required
  EndMark:       end date required

INVARIANTS ENFORCED AT THE STORE:
  - At most one EndMark per (child, endDate)
  - TimeSlot deletion blocked while referenced by any schedule rule

SEE ALSO:
  - errors.go: ValidationError
  - service.go: Command handlers that own these records
*/
package calendar

import "time"

// =============================================================================
// SCHEDULE - A child's recurring weekly attendance definition
// =============================================================================

// Schedule owns a child reference, a date window and a set of weekly rules.
// EndDate nil means the schedule is open-ended going forward. Rules are
// replaced as a set, never partially deleted.
type Schedule struct {
	ID        ScheduleID
	TenantID  TenantID
	ChildID   ChildID
	StartDate Date
	EndDate   *Date
	Rules     []ScheduleRule

	// Version supports optimistic concurrency on rule replacement.
	Version int64
}

// ScheduleRule attends the named time slot, in the named group, on every
// occurrence of the weekday while the owning schedule is active.
type ScheduleRule struct {
	Weekday    time.Weekday
	TimeSlotID TimeSlotID
	GroupID    GroupID
}

// Window returns the schedule's active window clamped to [from, to].
// The second return is false when the windows do not intersect.
func (s *Schedule) Window(bounds DateRange) (DateRange, bool) {
	start := s.StartDate
	if bounds.Start.After(start) {
		start = bounds.Start
	}
	end := bounds.End
	if s.EndDate != nil && s.EndDate.Before(end) {
		end = *s.EndDate
	}
	if start.After(end) {
		return DateRange{}, false
	}
	return DateRange{Start: start, End: end}, true
}

// ActiveOn returns true if the date falls inside the schedule's window.
func (s *Schedule) ActiveOn(d Date) bool {
	if d.Before(s.StartDate) {
		return false
	}
	if s.EndDate != nil && d.After(*s.EndDate) {
		return false
	}
	return true
}

// GroupIDs returns the distinct groups referenced by the schedule's rules.
func (s *Schedule) GroupIDs() []GroupID {
	seen := make(map[GroupID]bool, len(s.Rules))
	var groups []GroupID
	for _, rule := range s.Rules {
		if !seen[rule.GroupID] {
			seen[rule.GroupID] = true
			groups = append(groups, rule.GroupID)
		}
	}
	return groups
}

func (s *Schedule) Validate() error {
	v := &ValidationError{}
	if s.ChildID == "" {
		v.Add("childId", "required", "child reference is required")
	}
	if s.StartDate.IsZero() {
		v.Add("startDate", "required", "start date is required")
	}
	if s.EndDate != nil && !s.EndDate.After(s.StartDate) {
		v.Add("endDate", "invalid_window", "end date must be strictly after start date")
	}
	byWeekday := make(map[time.Weekday]bool, len(s.Rules))
	for _, rule := range s.Rules {
		if rule.Weekday < 0 || rule.Weekday > 6 {
			v.Add("rules.weekday", "out_of_range", "weekday must be between 0 (Sunday) and 6 (Saturday)")
		}
		if byWeekday[rule.Weekday] {
			v.Add("rules.weekday", "duplicate", "at most one rule per weekday")
		}
		byWeekday[rule.Weekday] = true
		if rule.TimeSlotID == "" {
			v.Add("rules.timeSlotId", "required", "time slot reference is required")
		}
		if rule.GroupID == "" {
			v.Add("rules.groupId", "required", "group reference is required")
		}
	}
	return v.OrNil()
}

// =============================================================================
// TIME SLOT
// =============================================================================

// TimeSlot is an immutable named attendance window once referenced;
// deletion is blocked while any schedule rule points at it.
type TimeSlot struct {
	ID       TimeSlotID
	TenantID TenantID
	Name     string
	Start    TimeOfDay
	End      TimeOfDay
}

func (t *TimeSlot) Validate() error {
	v := &ValidationError{}
	if t.Name == "" {
		v.Add("name", "required", "name is required")
	}
	if !t.End.After(t.Start) {
		v.Add("endTime", "invalid_window", "end time must be strictly after start time")
	}
	return v.OrNil()
}

// =============================================================================
// ABSENCE - Child excused despite matching rules
// =============================================================================

// Absence is a closed date interval during which the child does not attend
// despite matching schedule rules.
type Absence struct {
	ID        AbsenceID
	TenantID  TenantID
	ChildID   ChildID
	StartDate Date
	EndDate   Date
	Reason    string
}

func (a *Absence) Range() DateRange {
	return DateRange{Start: a.StartDate, End: a.EndDate}
}

func (a *Absence) Covers(d Date) bool {
	return a.Range().Contains(d)
}

func (a *Absence) Validate() error {
	v := &ValidationError{}
	if a.ChildID == "" {
		v.Add("childId", "required", "child reference is required")
	}
	if a.StartDate.IsZero() {
		v.Add("startDate", "required", "start date is required")
	}
	if a.EndDate.IsZero() {
		v.Add("endDate", "required", "end date is required")
	}
	if !a.StartDate.IsZero() && !a.EndDate.IsZero() && a.EndDate.Before(a.StartDate) {
		v.Add("endDate", "invalid_window", "end date must not be before start date")
	}
	return v.OrNil()
}

// =============================================================================
// CLOSURE PERIOD - Organization-wide, not group-scoped
// =============================================================================

// ClosurePeriod is an interval during which no group operates, regardless
// of child-level rules or absences.
type ClosurePeriod struct {
	ID        ClosureID
	TenantID  TenantID
	StartDate Date
	EndDate   Date
	Reason    string
}

func (c *ClosurePeriod) Range() DateRange {
	return DateRange{Start: c.StartDate, End: c.EndDate}
}

func (c *ClosurePeriod) Covers(d Date) bool {
	return c.Range().Contains(d)
}

func (c *ClosurePeriod) Validate() error {
	v := &ValidationError{}
	if c.StartDate.IsZero() {
		v.Add("startDate", "required", "start date is required")
	}
	if c.EndDate.IsZero() {
		v.Add("endDate", "required", "end date is required")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		v.Add("endDate", "invalid_window", "end date must not be before start date")
	}
	if c.Reason == "" {
		v.Add("reason", "required", "reason is required")
	}
	return v.OrNil()
}

// =============================================================================
// END MARK - Hard child-specific attendance cutoff
// =============================================================================

// EndMark marks a hard attendance cutoff for one child on EndDate.
// SystemGenerated marks come from the workflow engine; user marks come
// through the API. At most one mark per (child, endDate), enforced at
// write time by the store.
type EndMark struct {
	ID              EndMarkID
	TenantID        TenantID
	ChildID         ChildID
	EndDate         Date
	Reason          string
	SystemGenerated bool
}

func (m *EndMark) Validate() error {
	v := &ValidationError{}
	if m.ChildID == "" {
		v.Add("childId", "required", "child reference is required")
	}
	if m.EndDate.IsZero() {
		v.Add("endDate", "required", "end date is required")
	}
	return v.OrNil()
}
