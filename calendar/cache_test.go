package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/calendar/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func tenantCtx() context.Context {
	return calendar.WithTenant(context.Background(), testTenant)
}

func newCache(m *store.Memory) *calendar.RowCache {
	return calendar.NewRowCache(calendar.NewEngine(m), m, m, nil)
}

func newService(m *store.Memory, timeline calendar.ScheduleTimelineService) *calendar.Service {
	inv := calendar.NewInvalidator(m, m, nil)
	return calendar.NewService(m, inv, timeline, nil)
}

// timelineSpy records recalculation requests.
type timelineSpy struct {
	calls []calendar.ChildID
}

func (s *timelineSpy) Recalculate(_ context.Context, _ calendar.TenantID, child calendar.ChildID) error {
	s.calls = append(s.calls, child)
	return nil
}

func rowsByDate(rows []calendar.CalendarRow) map[string]calendar.CalendarRow {
	out := make(map[string]calendar.CalendarRow, len(rows))
	for _, row := range rows {
		out[row.Date.String()] = row
	}
	return out
}

// =============================================================================
// COLLAPSING
// =============================================================================

func TestGetRows_CollapsesWithPrecedence(t *testing.T) {
	// GIVEN: Monday schedule, absence on Aug 4 ("Sick"), closure Aug 11
	//        ("Holiday")
	// WHEN: Reading the group's August calendar
	// THEN: Aug 4 is absent with the reason, Aug 11 is a single group-wide
	//       closed row without a child, Aug 18 and 25 are present with the
	//       slot denormalized

	m := newFixture(t)
	mondaySchedule(t, m)
	require.NoError(t, m.CreateAbsence(context.Background(), &calendar.Absence{
		ID: "abs-1", TenantID: testTenant, ChildID: testChild,
		StartDate: calendar.NewDate(2025, time.August, 4),
		EndDate:   calendar.NewDate(2025, time.August, 4),
		Reason:    "Sick",
	}))
	require.NoError(t, m.CreateClosure(context.Background(), &calendar.ClosurePeriod{
		ID: "clo-1", TenantID: testTenant,
		StartDate: calendar.NewDate(2025, time.August, 11),
		EndDate:   calendar.NewDate(2025, time.August, 11),
		Reason:    "Holiday",
	}))

	rows, err := newCache(m).GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	byDate := rowsByDate(rows)

	absent := byDate["2025-08-04"]
	assert.Equal(t, calendar.StatusAbsent, absent.Status)
	assert.Equal(t, "Sick", absent.Reason)
	assert.Equal(t, testChild, absent.ChildID)

	closed := byDate["2025-08-11"]
	assert.Equal(t, calendar.StatusClosed, closed.Status)
	assert.Equal(t, "Holiday", closed.Reason)
	assert.Empty(t, closed.ChildID, "a closed day is one group-wide row")

	for _, day := range []string{"2025-08-18", "2025-08-25"} {
		present := byDate[day]
		assert.Equal(t, calendar.StatusPresent, present.Status)
		assert.Equal(t, "Full day", present.SlotName)
		assert.Equal(t, calendar.NewTimeOfDay(8, 0), present.StartTime)
		assert.Equal(t, calendar.NewTimeOfDay(17, 30), present.EndTime)
	}
}

func TestGetRows_OverlappingSchedulesCollapseToOneRow(t *testing.T) {
	// GIVEN: Two open-ended schedules for the same child whose rules both
	//        cover Mondays in the same group
	// WHEN: Reading the group's August calendar and its report
	// THEN: Each Monday collapses to a single row and the report counts
	//       the day once

	m := newFixture(t)
	mondaySchedule(t, m)
	require.NoError(t, m.CreateSchedule(context.Background(), &calendar.Schedule{
		ID:        "sched-emma-2",
		TenantID:  testTenant,
		ChildID:   testChild,
		StartDate: calendar.NewDate(2025, time.August, 1),
		Rules: []calendar.ScheduleRule{
			{Weekday: time.Monday, TimeSlotID: testSlot, GroupID: testGroup},
		},
		Version: 1,
	}))

	cache := newCache(m)
	rows, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Len(t, rows, 4, "one row per Monday, not one per schedule")
	for _, row := range rows {
		assert.Equal(t, calendar.StatusPresent, row.Status)
		assert.Equal(t, testChild, row.ChildID)
	}

	report, err := calendar.NewReporter(cache).Report(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Len(t, report.Children, 1)
	assert.Equal(t, 4, report.Children[0].PresentDays)
	assert.Equal(t, "38", report.Children[0].ScheduledHours.String())
}

func TestGetRows_OverlappingSchedulesAbsenceStillWins(t *testing.T) {
	m := newFixture(t)
	mondaySchedule(t, m)
	require.NoError(t, m.CreateSchedule(context.Background(), &calendar.Schedule{
		ID:        "sched-emma-2",
		TenantID:  testTenant,
		ChildID:   testChild,
		StartDate: calendar.NewDate(2025, time.August, 1),
		Rules: []calendar.ScheduleRule{
			{Weekday: time.Monday, TimeSlotID: testSlot, GroupID: testGroup},
		},
		Version: 1,
	}))
	require.NoError(t, m.CreateAbsence(context.Background(), &calendar.Absence{
		ID: "abs-1", TenantID: testTenant, ChildID: testChild,
		StartDate: calendar.NewDate(2025, time.August, 4),
		EndDate:   calendar.NewDate(2025, time.August, 4),
		Reason:    "Sick",
	}))

	rows, err := newCache(m).GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	absent := rowsByDate(rows)["2025-08-04"]
	assert.Equal(t, calendar.StatusAbsent, absent.Status)
	assert.Equal(t, "Sick", absent.Reason)
	assert.Empty(t, absent.SlotName)
}

func TestGetRows_DenormalizesBirthdayAndAge(t *testing.T) {
	// Emma is born 2021-08-15: three years old on Aug 4, four on Aug 18.
	m := newFixture(t)
	mondaySchedule(t, m)

	rows, err := newCache(m).GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)

	byDate := rowsByDate(rows)
	assert.Equal(t, 3, byDate["2025-08-04"].Age)
	assert.Equal(t, 4, byDate["2025-08-18"].Age)
	assert.Equal(t, "2021-08-15", byDate["2025-08-04"].Birthday.String())
}

func TestGetRows_SecondReadServedFromCache(t *testing.T) {
	// GIVEN: A warmed cache
	// WHEN: The backing rules change without invalidation
	// THEN: The cached verdict is still served; invalidation is the only
	//       path to a rebuild

	m := newFixture(t)
	mondaySchedule(t, m)
	cache := newCache(m)

	first, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Len(t, first, 4)

	// Out-of-band write, bypassing the command service on purpose.
	require.NoError(t, m.CreateClosure(context.Background(), &calendar.ClosurePeriod{
		ID: "clo-sneaky", TenantID: testTenant,
		StartDate: calendar.NewDate(2025, time.August, 18),
		EndDate:   calendar.NewDate(2025, time.August, 18),
		Reason:    "Sneaky",
	}))

	second, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Equal(t, rowsByDate(first)["2025-08-18"].Status, rowsByDate(second)["2025-08-18"].Status)
}

func TestGetRows_EmptyDaysAreFreshVerdicts(t *testing.T) {
	// A rebuilt range with no matching rules yields no rows but must not be
	// rebuilt again on every read.
	m := newFixture(t)
	cache := newCache(m)

	rows, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Empty(t, rows)

	fresh, err := m.FreshDates(context.Background(), testTenant, testGroup, august2025())
	require.NoError(t, err)
	assert.Len(t, fresh, 31, "every empty day is materialized as fresh")
}

func TestGetRows_MissingTenant(t *testing.T) {
	m := newFixture(t)
	_, err := newCache(m).GetRows(context.Background(), testGroup, august2025())
	assert.ErrorIs(t, err, calendar.ErrNoTenant)
}

// =============================================================================
// WRITE-THROUGH INVALIDATION
// =============================================================================

func TestAddAbsence_InvalidatesCachedRange(t *testing.T) {
	// GIVEN: A warmed cache showing Emma present on Aug 4
	// WHEN: An absence covering Aug 4 is recorded through the service
	// THEN: The next read reflects the absence

	m := newFixture(t)
	mondaySchedule(t, m)
	cache := newCache(m)
	service := newService(m, &timelineSpy{})

	rows, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Equal(t, calendar.StatusPresent, rowsByDate(rows)["2025-08-04"].Status)

	absence, err := service.AddAbsence(tenantCtx(), testChild, calendar.NewDateRange(
		calendar.NewDate(2025, time.August, 4),
		calendar.NewDate(2025, time.August, 4),
	), "Sick")
	require.NoError(t, err)

	rows, err = cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusAbsent, rowsByDate(rows)["2025-08-04"].Status)

	// Removing the absence restores the schedule verdict.
	require.NoError(t, service.RemoveAbsence(tenantCtx(), absence.ID))
	rows, err = cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusPresent, rowsByDate(rows)["2025-08-04"].Status)
}

func TestAddClosure_InvalidatesCachedRange(t *testing.T) {
	// Closure creation must invalidate, not only deletion; otherwise a
	// warmed cache keeps showing children present during the closure.
	m := newFixture(t)
	mondaySchedule(t, m)
	cache := newCache(m)
	service := newService(m, &timelineSpy{})

	rows, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Equal(t, calendar.StatusPresent, rowsByDate(rows)["2025-08-11"].Status)

	_, err = service.AddClosure(tenantCtx(), calendar.NewDateRange(
		calendar.NewDate(2025, time.August, 11),
		calendar.NewDate(2025, time.August, 12),
	), "Holiday")
	require.NoError(t, err)

	rows, err = cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusClosed, rowsByDate(rows)["2025-08-11"].Status)
}

func TestReplaceScheduleRules_InvalidatesOldAndNewGroups(t *testing.T) {
	// GIVEN: A warmed cache for the old group and a second group
	// WHEN: The schedule's rules move to the new group
	// THEN: Both groups' calendars reflect the move

	m := newFixture(t)
	m.PutGroup(calendar.Group{ID: "group-rose", TenantID: testTenant, Name: "Rose"})
	s := mondaySchedule(t, m)
	cache := newCache(m)
	service := newService(m, &timelineSpy{})

	oldRows, err := cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	require.Len(t, oldRows, 4)

	_, err = service.ReplaceScheduleRules(tenantCtx(), s.ID, s.Version, []calendar.ScheduleRule{
		{Weekday: time.Monday, TimeSlotID: testSlot, GroupID: "group-rose"},
	})
	require.NoError(t, err)

	oldRows, err = cache.GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Empty(t, oldRows, "old group no longer has the child")

	newRows, err := cache.GetRows(tenantCtx(), "group-rose", august2025())
	require.NoError(t, err)
	assert.Len(t, newRows, 4)
}
