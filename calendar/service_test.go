package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/calendar/store"
)

// =============================================================================
// END MARKS
// =============================================================================

func TestAddEndMark_Idempotent(t *testing.T) {
	// GIVEN: An end mark for (child, date)
	// WHEN: The same (child, date) is added again
	// THEN: The call succeeds, returns the existing mark, and the timeline
	//       is not recalculated a second time

	m := newFixture(t)
	spy := &timelineSpy{}
	service := newService(m, spy)

	endDate := calendar.NewDate(2025, time.August, 15)
	first, err := service.AddEndMark(tenantCtx(), testChild, endDate, "Auto: Child turned 4", true)
	require.NoError(t, err)
	require.Len(t, spy.calls, 1)

	second, err := service.AddEndMark(tenantCtx(), testChild, endDate, "different reason", false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "the existing mark is returned untouched")
	assert.True(t, second.SystemGenerated)
	assert.Len(t, spy.calls, 1, "a no-op add does not recalculate the timeline")

	marks, err := m.EndMarksByChild(context.Background(), testTenant, testChild)
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func TestRemoveEndMark_RecalculatesTimeline(t *testing.T) {
	m := newFixture(t)
	spy := &timelineSpy{}
	service := newService(m, spy)

	mark, err := service.AddEndMark(tenantCtx(), testChild, calendar.NewDate(2025, time.August, 15), "Parental request", false)
	require.NoError(t, err)

	require.NoError(t, service.RemoveEndMark(tenantCtx(), mark.ID))
	assert.Equal(t, []calendar.ChildID{testChild, testChild}, spy.calls)

	err = service.RemoveEndMark(tenantCtx(), mark.ID)
	assert.True(t, calendar.IsNotFound(err))
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestCreateSchedule_RejectsUnknownSlot(t *testing.T) {
	m := newFixture(t)
	service := newService(m, &timelineSpy{})

	_, err := service.CreateSchedule(tenantCtx(), testChild, calendar.NewDate(2025, time.August, 1), nil,
		[]calendar.ScheduleRule{
			{Weekday: time.Monday, TimeSlotID: "slot-missing", GroupID: testGroup},
		})
	assert.True(t, calendar.IsNotFound(err))
}

func TestCreateSchedule_RejectsDuplicateWeekdayWithoutWriting(t *testing.T) {
	m := newFixture(t)
	service := newService(m, &timelineSpy{})

	_, err := service.CreateSchedule(tenantCtx(), testChild, calendar.NewDate(2025, time.August, 1), nil,
		[]calendar.ScheduleRule{
			{Weekday: time.Monday, TimeSlotID: testSlot, GroupID: testGroup},
			{Weekday: time.Monday, TimeSlotID: testSlot, GroupID: testGroup},
		})
	_, ok := calendar.AsValidation(err)
	require.True(t, ok)

	schedules, err := m.SchedulesByChild(context.Background(), testTenant, testChild)
	require.NoError(t, err)
	assert.Empty(t, schedules, "a rejected command writes nothing")
}

func TestReplaceScheduleRules_StaleVersion(t *testing.T) {
	// GIVEN: A schedule at version 1
	// WHEN: Two replacements race with the same expected version
	// THEN: The second is rejected with a concurrency conflict

	m := newFixture(t)
	s := mondaySchedule(t, m)
	service := newService(m, &timelineSpy{})

	rules := []calendar.ScheduleRule{
		{Weekday: time.Tuesday, TimeSlotID: testSlot, GroupID: testGroup},
	}
	updated, err := service.ReplaceScheduleRules(tenantCtx(), s.ID, s.Version, rules)
	require.NoError(t, err)
	assert.Equal(t, s.Version+1, updated.Version)

	_, err = service.ReplaceScheduleRules(tenantCtx(), s.ID, s.Version, rules)
	assert.True(t, calendar.IsConcurrency(err))
}

// =============================================================================
// TIME SLOTS
// =============================================================================

func TestDeleteTimeSlot_BlockedWhileReferenced(t *testing.T) {
	m := newFixture(t)
	mondaySchedule(t, m)
	service := newService(m, &timelineSpy{})

	err := service.DeleteTimeSlot(tenantCtx(), testSlot)
	assert.True(t, calendar.IsConflict(err))
}

func TestDeleteTimeSlot_UnreferencedSlot(t *testing.T) {
	m := newFixture(t)
	service := newService(m, &timelineSpy{})

	slot, err := service.CreateTimeSlot(tenantCtx(), "Afternoon",
		calendar.NewTimeOfDay(13, 0), calendar.NewTimeOfDay(17, 0))
	require.NoError(t, err)

	assert.NoError(t, service.DeleteTimeSlot(tenantCtx(), slot.ID))
}

// =============================================================================
// INVALIDATION FAILURE COMPENSATION
// =============================================================================

// flakyCacheStore fails DeleteRange on demand, leaving the rule store
// healthy.
type flakyCacheStore struct {
	*store.Memory
	fail bool
}

func (f *flakyCacheStore) DeleteRange(ctx context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) error {
	if f.fail {
		return errors.New("cache store unavailable")
	}
	return f.Memory.DeleteRange(ctx, tenant, group, r)
}

func flakyService(m *store.Memory) (*calendar.Service, *flakyCacheStore) {
	flaky := &flakyCacheStore{Memory: m}
	inv := calendar.NewInvalidator(m, flaky, nil)
	return calendar.NewService(m, inv, &timelineSpy{}, nil), flaky
}

func TestRemoveAbsence_RestoresRecordWhenInvalidationFails(t *testing.T) {
	// GIVEN: A recorded absence and a cache store that stops accepting
	//        invalidations
	// WHEN: The absence is removed
	// THEN: The command fails and the record is put back, so the cache
	//       never outlives its evidence

	m := newFixture(t)
	mondaySchedule(t, m)
	service, flaky := flakyService(m)

	absence, err := service.AddAbsence(tenantCtx(), testChild, calendar.DateRange{
		Start: calendar.NewDate(2025, time.August, 4),
		End:   calendar.NewDate(2025, time.August, 4),
	}, "Sick")
	require.NoError(t, err)

	flaky.fail = true
	require.Error(t, service.RemoveAbsence(tenantCtx(), absence.ID))

	restored, err := m.GetAbsence(context.Background(), testTenant, absence.ID)
	require.NoError(t, err, "the delete must be compensated")
	assert.Equal(t, "Sick", restored.Reason)

	rows, err := newCache(m).GetRows(tenantCtx(), testGroup, august2025())
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusAbsent, rowsByDate(rows)["2025-08-04"].Status)
}

func TestRemoveClosure_RestoresRecordWhenInvalidationFails(t *testing.T) {
	m := newFixture(t)
	service, flaky := flakyService(m)

	closure, err := service.AddClosure(tenantCtx(), calendar.DateRange{
		Start: calendar.NewDate(2025, time.August, 11),
		End:   calendar.NewDate(2025, time.August, 12),
	}, "Holiday")
	require.NoError(t, err)

	flaky.fail = true
	require.Error(t, service.RemoveClosure(tenantCtx(), closure.ID))

	restored, err := m.GetClosure(context.Background(), testTenant, closure.ID)
	require.NoError(t, err)
	assert.Equal(t, "Holiday", restored.Reason)
}

func TestCreateSchedule_RolledBackWhenInvalidationFails(t *testing.T) {
	m := newFixture(t)
	service, flaky := flakyService(m)
	flaky.fail = true

	_, err := service.CreateSchedule(tenantCtx(), testChild,
		calendar.NewDate(2025, time.August, 1), nil,
		[]calendar.ScheduleRule{
			{Weekday: time.Monday, TimeSlotID: testSlot, GroupID: testGroup},
		})
	require.Error(t, err)

	schedules, err := m.SchedulesByChild(context.Background(), testTenant, testChild)
	require.NoError(t, err)
	assert.Empty(t, schedules, "a failed command leaves no schedule behind")
}

func TestReplaceScheduleRules_RestoredWhenInvalidationFails(t *testing.T) {
	m := newFixture(t)
	s := mondaySchedule(t, m)
	service, flaky := flakyService(m)
	flaky.fail = true

	_, err := service.ReplaceScheduleRules(tenantCtx(), s.ID, s.Version,
		[]calendar.ScheduleRule{
			{Weekday: time.Tuesday, TimeSlotID: testSlot, GroupID: "group-rose"},
		})
	require.Error(t, err)

	current, err := m.GetSchedule(context.Background(), testTenant, s.ID)
	require.NoError(t, err)
	require.Len(t, current.Rules, 1)
	assert.Equal(t, time.Monday, current.Rules[0].Weekday)
	assert.Equal(t, testGroup, current.Rules[0].GroupID)
}

// =============================================================================
// TENANCY
// =============================================================================

func TestCommands_RequireTenant(t *testing.T) {
	m := newFixture(t)
	service := newService(m, &timelineSpy{})

	_, err := service.AddAbsence(context.Background(), testChild, august2025(), "Sick")
	assert.ErrorIs(t, err, calendar.ErrNoTenant)

	_, err = service.AddClosure(context.Background(), august2025(), "Holiday")
	assert.ErrorIs(t, err, calendar.ErrNoTenant)
}
