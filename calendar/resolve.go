/*
resolve.go - Calendar resolution engine

PURPOSE:
  Pure resolution from (group set, date range) to a dated event log, given
  the rule store's current contents. The engine emits all contributing
  evidence; it never collapses to a single verdict. Collapsing is the row
  cache's job (cache.go).

ALGORITHM:
  1. Load schedules overlapping the range with at least one rule in the
     requested groups; closures overlapping the range (global); absences
     for the referenced children overlapping the range.
  2. For each date: inside a closure, emit one Closure event (once, not
     per group) and nothing else for that date.
  3. Otherwise, for each schedule active on the date and each rule whose
     weekday matches: an absence covering the date emits an Absence event,
     else a ScheduleRule event with the slot denormalized.

PRECEDENCE:
  Closure > Absence > ScheduleRule, enforced structurally: a closure date
  emits no rule or absence evidence at all, and an absent child emits no
  rule evidence for that date.

EDGE CASES:
  - An open-ended schedule (nil end date) is never enumerated past the
    requested range end.
  - A rule whose weekday never occurs inside the schedule window
    intersected with the range contributes nothing.

SEE ALSO:
  - cache.go: Collapses this event log into rows
*/
package calendar

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine resolves rule store contents into a calendar event log.
// It holds no state beyond its reader and performs no caching.
type Engine struct {
	Rules RuleReader
}

func NewEngine(rules RuleReader) *Engine {
	return &Engine{Rules: rules}
}

// Resolve produces the event log for the groups over [r.Start, r.End].
// Events are ordered by (date, kind, child) for deterministic output.
func (e *Engine) Resolve(ctx context.Context, tenant TenantID, groups []GroupID, r DateRange) ([]CalendarEvent, error) {
	if r.End.Before(r.Start) {
		return nil, (&ValidationError{}).Add("to", "invalid_window", "range end must not be before range start")
	}

	schedules, err := e.Rules.SchedulesOverlapping(ctx, tenant, groups, r)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	closures, err := e.Rules.ClosuresOverlapping(ctx, tenant, r)
	if err != nil {
		return nil, fmt.Errorf("load closures: %w", err)
	}

	children := make([]ChildID, 0, len(schedules))
	seenChildren := make(map[ChildID]bool, len(schedules))
	slotIDs := make([]TimeSlotID, 0, len(schedules))
	seenSlots := make(map[TimeSlotID]bool)
	for _, s := range schedules {
		if !seenChildren[s.ChildID] {
			seenChildren[s.ChildID] = true
			children = append(children, s.ChildID)
		}
		for _, rule := range s.Rules {
			if !seenSlots[rule.TimeSlotID] {
				seenSlots[rule.TimeSlotID] = true
				slotIDs = append(slotIDs, rule.TimeSlotID)
			}
		}
	}

	absences, err := e.Rules.AbsencesForChildren(ctx, tenant, children, r)
	if err != nil {
		return nil, fmt.Errorf("load absences: %w", err)
	}

	slots, err := e.Rules.TimeSlots(ctx, tenant, slotIDs)
	if err != nil {
		return nil, fmt.Errorf("load time slots: %w", err)
	}

	requested := make(map[GroupID]bool, len(groups))
	for _, g := range groups {
		requested[g] = true
	}

	var events []CalendarEvent
	for _, day := range r.Days() {
		if closure := coveringClosure(closures, day); closure != nil {
			events = append(events, CalendarEvent{
				Kind:   EventClosure,
				Date:   day,
				Reason: closure.Reason,
			})
			continue
		}

		for i := range schedules {
			s := &schedules[i]
			if !s.ActiveOn(day) {
				continue
			}
			for _, rule := range s.Rules {
				if rule.Weekday != day.Weekday() || !requested[rule.GroupID] {
					continue
				}
				if absence := coveringAbsence(absences, s.ChildID, day); absence != nil {
					events = append(events, CalendarEvent{
						Kind:    EventAbsence,
						Date:    day,
						ChildID: s.ChildID,
						GroupID: rule.GroupID,
						Reason:  absence.Reason,
					})
					continue
				}
				slot, ok := slots[rule.TimeSlotID]
				if !ok {
					return nil, &NotFoundError{Kind: "time slot", ID: string(rule.TimeSlotID)}
				}
				events = append(events, CalendarEvent{
					Kind:      EventScheduleRule,
					Date:      day,
					ChildID:   s.ChildID,
					GroupID:   rule.GroupID,
					SlotID:    slot.ID,
					SlotName:  slot.Name,
					SlotStart: slot.Start,
					SlotEnd:   slot.End,
				})
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		if events[i].Kind != events[j].Kind {
			return events[i].Kind < events[j].Kind
		}
		return events[i].ChildID < events[j].ChildID
	})
	return events, nil
}

func coveringClosure(closures []ClosurePeriod, d Date) *ClosurePeriod {
	for i := range closures {
		if closures[i].Covers(d) {
			return &closures[i]
		}
	}
	return nil
}

func coveringAbsence(absences []Absence, child ChildID, d Date) *Absence {
	for i := range absences {
		if absences[i].ChildID == child && absences[i].Covers(d) {
			return &absences[i]
		}
	}
	return nil
}
