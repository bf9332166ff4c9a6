package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/calendar/store"
)

const testTenant = "tenant-a"

type noopTimeline struct{}

func (noopTimeline) Recalculate(context.Context, calendar.TenantID, calendar.ChildID) error {
	return nil
}

// newServer wires the full HTTP stack over the in-memory store. Scenario
// loading stays disabled.
func newServer(t *testing.T) (*store.Memory, *httptest.Server) {
	t.Helper()

	m := store.NewMemory()
	m.PutGroup(calendar.Group{ID: "group-sunflower", TenantID: testTenant, Name: "Sunflower"})
	m.PutChild(calendar.Child{
		ID:        "child-emma",
		TenantID:  testTenant,
		Name:      "Emma",
		BirthDate: calendar.NewDate(2021, time.August, 15),
	})

	cache := calendar.NewRowCache(calendar.NewEngine(m), m, m, nil)
	service := calendar.NewService(m, calendar.NewInvalidator(m, m, nil), noopTimeline{}, nil)
	handler := api.NewHandler(cache, service, calendar.NewReporter(cache), nil, nil)

	srv := httptest.NewServer(api.NewRouter(handler, ""))
	t.Cleanup(srv.Close)
	return m, srv
}

// do issues a request with the tenant header set and decodes the JSON
// response into out (when out is non-nil).
func do(t *testing.T, srv *httptest.Server, method, path string, body, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set(api.DefaultTenantHeader, testTenant)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// createSlotAndSchedule posts a full-day slot and a Monday schedule for
// Emma, returning both response bodies.
func createSlotAndSchedule(t *testing.T, srv *httptest.Server) (api.TimeSlotDTO, api.ScheduleDTO) {
	t.Helper()

	var slot api.TimeSlotDTO
	resp := do(t, srv, http.MethodPost, "/api/timeslots", api.CreateTimeSlotRequest{
		Name: "Full day", Start: "08:00", End: "17:30"}, &slot)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var schedule api.ScheduleDTO
	resp = do(t, srv, http.MethodPost, "/api/schedules", api.CreateScheduleRequest{
		ChildID: "child-emma",
		From:    "2025-08-01",
		Rules: []api.ScheduleRuleDTO{
			{Weekday: int(time.Monday), TimeSlotID: slot.ID, GroupID: "group-sunflower"},
		},
	}, &schedule)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return slot, schedule
}

// =============================================================================
// TENANCY
// =============================================================================

func TestAPI_MissingTenantHeader(t *testing.T) {
	_, srv := newServer(t)

	req, err := http.NewRequest(http.MethodGet,
		srv.URL+"/api/groups/group-sunflower/calendar?from=2025-08-01&to=2025-08-31", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HealthzNeedsNoTenant(t *testing.T) {
	_, srv := newServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAPI_BadDateQueryNamesTheField(t *testing.T) {
	_, srv := newServer(t)

	var body api.ErrorResponse
	resp := do(t, srv, http.MethodGet,
		"/api/groups/group-sunflower/calendar?from=08/01/2025&to=2025-08-31", nil, &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "from", body.Fields[0].Property)
	assert.Equal(t, "format", body.Fields[0].Code)
}

func TestAPI_ReversedRangeRejected(t *testing.T) {
	_, srv := newServer(t)

	var body api.ErrorResponse
	resp := do(t, srv, http.MethodGet,
		"/api/groups/group-sunflower/calendar?from=2025-08-31&to=2025-08-01", nil, &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "to", body.Fields[0].Property)
}

// =============================================================================
// END TO END
// =============================================================================

func TestAPI_ScheduleThenCalendar(t *testing.T) {
	// GIVEN: A full-day slot and a Monday schedule created over the API
	// WHEN: August 2025 is read for the group
	// THEN: The four Mondays come back as present rows with the slot
	//       window denormalized

	_, srv := newServer(t)
	_, schedule := createSlotAndSchedule(t, srv)
	assert.Equal(t, int64(1), schedule.Version)

	var rows []api.CalendarRowDTO
	resp := do(t, srv, http.MethodGet,
		"/api/groups/group-sunflower/calendar?from=2025-08-01&to=2025-08-31", nil, &rows)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 4)
	assert.Equal(t, "2025-08-04", rows[0].Date)
	assert.Equal(t, "present", rows[0].Status)
	assert.Equal(t, "child-emma", rows[0].ChildID)
	assert.Equal(t, "Full day", rows[0].SlotName)
	assert.Equal(t, "08:00", rows[0].Start)
	assert.Equal(t, "17:30", rows[0].End)
}

func TestAPI_AbsenceShowsUpInReport(t *testing.T) {
	_, srv := newServer(t)
	createSlotAndSchedule(t, srv)

	var absence api.AbsenceDTO
	resp := do(t, srv, http.MethodPost, "/api/absences", api.CreateAbsenceRequest{
		ChildID: "child-emma", From: "2025-08-04", To: "2025-08-04", Reason: "Sick"}, &absence)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var report api.AttendanceReportDTO
	resp = do(t, srv, http.MethodGet,
		"/api/groups/group-sunflower/report?from=2025-08-01&to=2025-08-31", nil, &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, report.Children, 1)
	assert.Equal(t, 3, report.Children[0].PresentDays)
	assert.Equal(t, 1, report.Children[0].AbsentDays)
	assert.Equal(t, "28.5", report.Children[0].ScheduledHours)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_DeleteMissingAbsence(t *testing.T) {
	_, srv := newServer(t)

	resp := do(t, srv, http.MethodDelete, "/api/absences/absence-nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_StaleVersionRejected(t *testing.T) {
	_, srv := newServer(t)
	slot, schedule := createSlotAndSchedule(t, srv)

	replace := api.ReplaceScheduleRulesRequest{
		ExpectedVersion: schedule.Version,
		Rules: []api.ScheduleRuleDTO{
			{Weekday: int(time.Tuesday), TimeSlotID: slot.ID, GroupID: "group-sunflower"},
		},
	}
	resp := do(t, srv, http.MethodPut, "/api/schedules/"+schedule.ID+"/rules", replace, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/api/schedules/"+schedule.ID+"/rules", replace, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ScenariosDisabledWithoutSeedStore(t *testing.T) {
	_, srv := newServer(t)

	resp := do(t, srv, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "small-daycare"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
