// Package store provides in-memory implementations of the calendar
// storage interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// MEMORY STORE - Implements calendar.RuleStore and calendar.CacheStore
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	schedules map[calendar.ScheduleID]calendar.Schedule
	absences  map[calendar.AbsenceID]calendar.Absence
	closures  map[calendar.ClosureID]calendar.ClosurePeriod
	endMarks  map[calendar.EndMarkID]calendar.EndMark
	timeSlots map[calendar.TimeSlotID]calendar.TimeSlot
	children  map[calendar.ChildID]calendar.Child
	groups    map[calendar.GroupID]calendar.Group

	// Cache: rows and freshness marks per (tenant, group, date).
	rows  map[partitionKey][]calendar.CalendarRow
	fresh map[partitionKey]bool
}

type partitionKey struct {
	Tenant calendar.TenantID
	Group  calendar.GroupID
	Date   string
}

func NewMemory() *Memory {
	return &Memory{
		schedules: make(map[calendar.ScheduleID]calendar.Schedule),
		absences:  make(map[calendar.AbsenceID]calendar.Absence),
		closures:  make(map[calendar.ClosureID]calendar.ClosurePeriod),
		endMarks:  make(map[calendar.EndMarkID]calendar.EndMark),
		timeSlots: make(map[calendar.TimeSlotID]calendar.TimeSlot),
		children:  make(map[calendar.ChildID]calendar.Child),
		groups:    make(map[calendar.GroupID]calendar.Group),
		rows:      make(map[partitionKey][]calendar.CalendarRow),
		fresh:     make(map[partitionKey]bool),
	}
}

// =============================================================================
// DIRECTORY SEEDING - Children and groups are external CRUD; tests seed them
// =============================================================================

func (m *Memory) PutChild(c calendar.Child) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[c.ID] = c
}

func (m *Memory) PutGroup(g calendar.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
}

// ListChildren satisfies the workflow engine's child directory.
func (m *Memory) ListChildren(_ context.Context, tenant calendar.TenantID) ([]calendar.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.Child
	for _, c := range m.children {
		if c.TenantID == tenant {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// RULE READER
// =============================================================================

func (m *Memory) SchedulesOverlapping(_ context.Context, tenant calendar.TenantID, groups []calendar.GroupID, r calendar.DateRange) ([]calendar.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groupFilter := make(map[calendar.GroupID]bool, len(groups))
	for _, g := range groups {
		groupFilter[g] = true
	}

	var out []calendar.Schedule
	for _, s := range m.schedules {
		if s.TenantID != tenant {
			continue
		}
		if _, ok := s.Window(r); !ok {
			continue
		}
		if len(groups) > 0 {
			match := false
			for _, rule := range s.Rules {
				if groupFilter[rule.GroupID] {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, cloneSchedule(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ClosuresOverlapping(_ context.Context, tenant calendar.TenantID, r calendar.DateRange) ([]calendar.ClosurePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.ClosurePeriod
	for _, c := range m.closures {
		if c.TenantID == tenant && c.Range().Overlaps(r) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AbsencesForChildren(_ context.Context, tenant calendar.TenantID, children []calendar.ChildID, r calendar.DateRange) ([]calendar.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[calendar.ChildID]bool, len(children))
	for _, c := range children {
		wanted[c] = true
	}
	var out []calendar.Absence
	for _, a := range m.absences {
		if a.TenantID == tenant && wanted[a.ChildID] && a.Range().Overlaps(r) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) TimeSlots(_ context.Context, tenant calendar.TenantID, ids []calendar.TimeSlotID) (map[calendar.TimeSlotID]calendar.TimeSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[calendar.TimeSlotID]calendar.TimeSlot, len(ids))
	for _, id := range ids {
		if slot, ok := m.timeSlots[id]; ok && slot.TenantID == tenant {
			out[id] = slot
		}
	}
	return out, nil
}

func (m *Memory) Children(_ context.Context, tenant calendar.TenantID, ids []calendar.ChildID) (map[calendar.ChildID]calendar.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[calendar.ChildID]calendar.Child, len(ids))
	for _, id := range ids {
		if child, ok := m.children[id]; ok && child.TenantID == tenant {
			out[id] = child
		}
	}
	return out, nil
}

func (m *Memory) Groups(_ context.Context, tenant calendar.TenantID) ([]calendar.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.Group
	for _, g := range m.groups {
		if g.TenantID == tenant {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) GetSchedule(_ context.Context, tenant calendar.TenantID, id calendar.ScheduleID) (*calendar.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok || s.TenantID != tenant {
		return nil, &calendar.NotFoundError{Kind: "schedule", ID: string(id)}
	}
	clone := cloneSchedule(s)
	return &clone, nil
}

func (m *Memory) SchedulesByChild(_ context.Context, tenant calendar.TenantID, child calendar.ChildID) ([]calendar.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.Schedule
	for _, s := range m.schedules {
		if s.TenantID == tenant && s.ChildID == child {
			out = append(out, cloneSchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateSchedule(_ context.Context, s *calendar.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = cloneSchedule(*s)
	return nil
}

func (m *Memory) DeleteSchedule(_ context.Context, tenant calendar.TenantID, id calendar.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.TenantID != tenant {
		return &calendar.NotFoundError{Kind: "schedule", ID: string(id)}
	}
	delete(m.schedules, id)
	return nil
}

func (m *Memory) UpdateScheduleRules(_ context.Context, tenant calendar.TenantID, id calendar.ScheduleID, expectedVersion int64, rules []calendar.ScheduleRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.TenantID != tenant {
		return &calendar.NotFoundError{Kind: "schedule", ID: string(id)}
	}
	if s.Version != expectedVersion {
		return calendar.ErrConcurrency
	}
	s.Rules = append([]calendar.ScheduleRule{}, rules...)
	s.Version++
	m.schedules[id] = s
	return nil
}

// =============================================================================
// ABSENCES
// =============================================================================

func (m *Memory) GetAbsence(_ context.Context, tenant calendar.TenantID, id calendar.AbsenceID) (*calendar.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.absences[id]
	if !ok || a.TenantID != tenant {
		return nil, &calendar.NotFoundError{Kind: "absence", ID: string(id)}
	}
	return &a, nil
}

func (m *Memory) CreateAbsence(_ context.Context, a *calendar.Absence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absences[a.ID] = *a
	return nil
}

func (m *Memory) DeleteAbsence(_ context.Context, tenant calendar.TenantID, id calendar.AbsenceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.absences[id]
	if !ok || a.TenantID != tenant {
		return &calendar.NotFoundError{Kind: "absence", ID: string(id)}
	}
	delete(m.absences, id)
	return nil
}

// =============================================================================
// CLOSURES
// =============================================================================

func (m *Memory) GetClosure(_ context.Context, tenant calendar.TenantID, id calendar.ClosureID) (*calendar.ClosurePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.closures[id]
	if !ok || c.TenantID != tenant {
		return nil, &calendar.NotFoundError{Kind: "closure", ID: string(id)}
	}
	return &c, nil
}

func (m *Memory) CreateClosure(_ context.Context, c *calendar.ClosurePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closures[c.ID] = *c
	return nil
}

func (m *Memory) DeleteClosure(_ context.Context, tenant calendar.TenantID, id calendar.ClosureID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.closures[id]
	if !ok || c.TenantID != tenant {
		return &calendar.NotFoundError{Kind: "closure", ID: string(id)}
	}
	delete(m.closures, id)
	return nil
}

// =============================================================================
// END MARKS
// =============================================================================

func (m *Memory) EndMarksByChild(_ context.Context, tenant calendar.TenantID, child calendar.ChildID) ([]calendar.EndMark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.EndMark
	for _, mark := range m.endMarks {
		if mark.TenantID == tenant && mark.ChildID == child {
			out = append(out, mark)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (m *Memory) CreateEndMark(_ context.Context, mark *calendar.EndMark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.endMarks {
		if existing.TenantID == mark.TenantID &&
			existing.ChildID == mark.ChildID &&
			existing.EndDate.Equal(mark.EndDate) {
			return &calendar.ConflictError{
				Message: "end mark already exists for " + mark.EndDate.String(),
			}
		}
	}
	m.endMarks[mark.ID] = *mark
	return nil
}

func (m *Memory) DeleteEndMark(_ context.Context, tenant calendar.TenantID, id calendar.EndMarkID) (*calendar.EndMark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mark, ok := m.endMarks[id]
	if !ok || mark.TenantID != tenant {
		return nil, &calendar.NotFoundError{Kind: "end mark", ID: string(id)}
	}
	delete(m.endMarks, id)
	return &mark, nil
}

// =============================================================================
// TIME SLOTS
// =============================================================================

func (m *Memory) CreateTimeSlot(_ context.Context, t *calendar.TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeSlots[t.ID] = *t
	return nil
}

func (m *Memory) DeleteTimeSlot(_ context.Context, tenant calendar.TenantID, id calendar.TimeSlotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.timeSlots[id]
	if !ok || slot.TenantID != tenant {
		return &calendar.NotFoundError{Kind: "time slot", ID: string(id)}
	}
	for _, s := range m.schedules {
		if s.TenantID != tenant {
			continue
		}
		for _, rule := range s.Rules {
			if rule.TimeSlotID == id {
				return &calendar.ConflictError{
					Message: "time slot " + string(id) + " is referenced by schedule " + string(s.ID),
				}
			}
		}
	}
	delete(m.timeSlots, id)
	return nil
}

// =============================================================================
// CACHE STORE
// =============================================================================

func (m *Memory) Rows(_ context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) ([]calendar.CalendarRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.CalendarRow
	for _, day := range r.Days() {
		key := partitionKey{Tenant: tenant, Group: group, Date: day.String()}
		out = append(out, m.rows[key]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ChildID < out[j].ChildID
	})
	return out, nil
}

func (m *Memory) FreshDates(_ context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) (map[calendar.Date]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[calendar.Date]bool)
	for _, day := range r.Days() {
		key := partitionKey{Tenant: tenant, Group: group, Date: day.String()}
		if m.fresh[key] {
			out[day] = true
		}
	}
	return out, nil
}

func (m *Memory) ReplaceDates(_ context.Context, tenant calendar.TenantID, group calendar.GroupID, dates []calendar.Date, rows []calendar.CalendarRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, day := range dates {
		key := partitionKey{Tenant: tenant, Group: group, Date: day.String()}
		delete(m.rows, key)
		m.fresh[key] = true
	}
	for _, row := range rows {
		key := partitionKey{Tenant: tenant, Group: group, Date: row.Date.String()}
		m.rows[key] = append(m.rows[key], row)
	}
	return nil
}

func (m *Memory) DeleteRange(_ context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.fresh {
		if key.Tenant != tenant || key.Group != group {
			continue
		}
		day, err := calendar.ParseDate(key.Date)
		if err != nil {
			continue
		}
		if day.Before(r.Start) {
			continue
		}
		if !r.End.IsZero() && day.After(r.End) {
			continue
		}
		delete(m.fresh, key)
		delete(m.rows, key)
	}
	return nil
}

func cloneSchedule(s calendar.Schedule) calendar.Schedule {
	clone := s
	clone.Rules = append([]calendar.ScheduleRule{}, s.Rules...)
	if s.EndDate != nil {
		end := *s.EndDate
		clone.EndDate = &end
	}
	return clone
}
