package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func datePtr(d calendar.Date) *calendar.Date { return &d }

func validSchedule() calendar.Schedule {
	return calendar.Schedule{
		ID:        "sched-1",
		TenantID:  "tenant-a",
		ChildID:   "child-1",
		StartDate: calendar.NewDate(2025, time.August, 1),
		Rules: []calendar.ScheduleRule{
			{Weekday: time.Monday, TimeSlotID: "slot-1", GroupID: "group-1"},
		},
		Version: 1,
	}
}

func fieldCodes(t *testing.T, err error) map[string]string {
	t.Helper()
	verr, ok := calendar.AsValidation(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	codes := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		codes[f.Property] = f.Code
	}
	return codes
}

// =============================================================================
// SCHEDULE VALIDATION
// =============================================================================

func TestSchedule_Validate_Valid(t *testing.T) {
	s := validSchedule()
	assert.NoError(t, s.Validate())

	s.EndDate = datePtr(calendar.NewDate(2025, time.December, 31))
	assert.NoError(t, s.Validate())
}

func TestSchedule_Validate_EndDateMustFollowStart(t *testing.T) {
	// GIVEN: A schedule whose end date equals its start date
	// WHEN: Validating
	// THEN: The endDate field is rejected; the window must be non-empty

	s := validSchedule()
	s.EndDate = datePtr(s.StartDate)

	codes := fieldCodes(t, s.Validate())
	assert.Equal(t, "invalid_window", codes["endDate"])
}

func TestSchedule_Validate_DuplicateWeekday(t *testing.T) {
	s := validSchedule()
	s.Rules = append(s.Rules, calendar.ScheduleRule{
		Weekday: time.Monday, TimeSlotID: "slot-2", GroupID: "group-1",
	})

	codes := fieldCodes(t, s.Validate())
	assert.Equal(t, "duplicate", codes["rules.weekday"])
}

func TestSchedule_Validate_CollectsAllViolations(t *testing.T) {
	// GIVEN: A schedule with several independent problems
	// WHEN: Validating
	// THEN: Every violation is reported, not just the first

	s := calendar.Schedule{
		Rules: []calendar.ScheduleRule{{Weekday: time.Weekday(9)}},
	}

	codes := fieldCodes(t, s.Validate())
	assert.Equal(t, "required", codes["childId"])
	assert.Equal(t, "required", codes["startDate"])
	assert.Equal(t, "out_of_range", codes["rules.weekday"])
	assert.Equal(t, "required", codes["rules.timeSlotId"])
	assert.Equal(t, "required", codes["rules.groupId"])
}

func TestSchedule_ActiveOn_OpenEnded(t *testing.T) {
	s := validSchedule()

	assert.False(t, s.ActiveOn(calendar.NewDate(2025, time.July, 31)))
	assert.True(t, s.ActiveOn(calendar.NewDate(2025, time.August, 1)))
	assert.True(t, s.ActiveOn(calendar.NewDate(2031, time.January, 1)), "no end date means active forever")
}

func TestSchedule_Window_Clamps(t *testing.T) {
	s := validSchedule()
	s.EndDate = datePtr(calendar.NewDate(2025, time.August, 20))

	bounds := calendar.NewDateRange(
		calendar.NewDate(2025, time.August, 10),
		calendar.NewDate(2025, time.September, 10),
	)
	window, ok := s.Window(bounds)
	require.True(t, ok)
	assert.Equal(t, "2025-08-10", window.Start.String())
	assert.Equal(t, "2025-08-20", window.End.String())

	_, ok = s.Window(calendar.NewDateRange(
		calendar.NewDate(2025, time.September, 1),
		calendar.NewDate(2025, time.September, 30),
	))
	assert.False(t, ok, "schedule ended before the bounds start")
}

// =============================================================================
// OTHER RECORD VALIDATION
// =============================================================================

func TestTimeSlot_Validate(t *testing.T) {
	slot := calendar.TimeSlot{
		ID:       "slot-1",
		TenantID: "tenant-a",
		Name:     "Morning",
		Start:    calendar.NewTimeOfDay(8, 0),
		End:      calendar.NewTimeOfDay(13, 0),
	}
	assert.NoError(t, slot.Validate())

	slot.End = slot.Start
	codes := fieldCodes(t, slot.Validate())
	assert.Equal(t, "invalid_window", codes["endTime"])
}

func TestAbsence_Validate_ReversedRange(t *testing.T) {
	absence := calendar.Absence{
		ID:        "abs-1",
		TenantID:  "tenant-a",
		ChildID:   "child-1",
		StartDate: calendar.NewDate(2025, time.August, 10),
		EndDate:   calendar.NewDate(2025, time.August, 4),
	}

	codes := fieldCodes(t, absence.Validate())
	assert.Equal(t, "invalid_window", codes["endDate"])
}

func TestClosurePeriod_Validate_ReasonRequired(t *testing.T) {
	closure := calendar.ClosurePeriod{
		ID:        "clo-1",
		TenantID:  "tenant-a",
		StartDate: calendar.NewDate(2025, time.December, 24),
		EndDate:   calendar.NewDate(2025, time.December, 31),
	}

	codes := fieldCodes(t, closure.Validate())
	assert.Equal(t, "required", codes["reason"])
}

func TestEndMark_Validate(t *testing.T) {
	mark := calendar.EndMark{ID: "mark-1", TenantID: "tenant-a"}

	codes := fieldCodes(t, mark.Validate())
	assert.Equal(t, "required", codes["childId"])
	assert.Equal(t, "required", codes["endDate"])
}
