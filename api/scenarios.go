/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates groups, children,
	time slots and schedules that demonstrate specific features.

AVAILABLE SCENARIOS:

	small-daycare:  One group, three children, mixed weekly schedules
	winter-closure: Schedules plus an organization-wide closure week
	turning-four:   Child about to turn four, workflow rules configured

HOW SCENARIOS WORK:
 1. Seed the directory (groups, children) for the request's tenant
 2. Create time slots and schedules through the command service, so the
    cache invalidation path runs exactly as in production
 3. Optionally add absences, closures and workflow configuration

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-daycare"}

NOTE:

	Scenarios add data, they do not wipe existing data. Only use in
	development/demo environments.

SEE ALSO:
  - server.go: Scenario routes
  - store/sqlite: The ScenarioStore implementation
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/workflow"
)

// ScenarioStore is the seeding surface scenario loaders need on top of
// the command service. The sqlite store implements it.
type ScenarioStore interface {
	PutChild(ctx context.Context, c calendar.Child) error
	PutGroup(ctx context.Context, g calendar.Group) error
	PutConfig(ctx context.Context, config workflow.RuleConfig) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-daycare",
		Name:        "Small Daycare",
		Description: "One group, three children, mixed weekly schedules",
	},
	{
		ID:          "winter-closure",
		Name:        "Winter Closure",
		Description: "Schedules plus an organization-wide closure week",
	},
	{
		ID:          "turning-four",
		Name:        "Turning Four",
		Description: "Child about to turn four with workflow rules configured",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into the request's tenant.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Seed == nil {
		writeError(w, http.StatusServiceUnavailable, "Scenario loading is disabled", nil)
		return
	}

	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "small-daycare":
		err = h.loadSmallDaycare(ctx, false)
	case "winter-closure":
		err = h.loadSmallDaycare(ctx, true)
	case "turning-four":
		err = h.loadTurningFour(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSmallDaycare(ctx context.Context, withClosure bool) error {
	tenant, err := calendar.TenantFromContext(ctx)
	if err != nil {
		return err
	}

	group := calendar.Group{ID: "group-sunflower", TenantID: tenant, Name: "Sunflower"}
	if err := h.Seed.PutGroup(ctx, group); err != nil {
		return err
	}

	today := calendar.Today()
	children := []calendar.Child{
		{ID: "child-emma", TenantID: tenant, Name: "Emma", BirthDate: today.AddYears(-3).AddDays(-40)},
		{ID: "child-liam", TenantID: tenant, Name: "Liam", BirthDate: today.AddYears(-2).AddDays(10)},
		{ID: "child-noah", TenantID: tenant, Name: "Noah", BirthDate: today.AddYears(-3).AddDays(95)},
	}
	for _, child := range children {
		if err := h.Seed.PutChild(ctx, child); err != nil {
			return err
		}
	}

	morning, err := h.Service.CreateTimeSlot(ctx, "Morning",
		calendar.TimeOfDay{Hour: 8}, calendar.TimeOfDay{Hour: 13})
	if err != nil {
		return err
	}
	fullDay, err := h.Service.CreateTimeSlot(ctx, "Full day",
		calendar.TimeOfDay{Hour: 8}, calendar.TimeOfDay{Hour: 17, Minute: 30})
	if err != nil {
		return err
	}

	start := today.AddDays(-30)
	enrollments := []struct {
		child calendar.ChildID
		slot  calendar.TimeSlotID
		days  []time.Weekday
	}{
		{children[0].ID, fullDay.ID, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
		{children[1].ID, morning.ID, []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{children[2].ID, fullDay.ID, []time.Weekday{time.Tuesday, time.Thursday}},
	}
	for _, e := range enrollments {
		var rules []calendar.ScheduleRule
		for _, day := range e.days {
			rules = append(rules, calendar.ScheduleRule{
				Weekday: day, TimeSlotID: e.slot, GroupID: group.ID,
			})
		}
		if _, err := h.Service.CreateSchedule(ctx, e.child, start, nil, rules); err != nil {
			return err
		}
	}

	if withClosure {
		closureStart := today.AddDays(14)
		_, err := h.Service.AddClosure(ctx,
			calendar.DateRange{Start: closureStart, End: closureStart.AddDays(6)},
			"Winter break")
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadTurningFour(ctx context.Context) error {
	tenant, err := calendar.TenantFromContext(ctx)
	if err != nil {
		return err
	}

	if err := h.loadSmallDaycare(ctx, false); err != nil {
		return err
	}

	// Birthday in one week, so the next few daily scans demonstrate the
	// age-triggered automation end to end.
	child := calendar.Child{
		ID:        "child-mia",
		TenantID:  tenant,
		Name:      "Mia",
		BirthDate: calendar.Today().AddDays(7).AddYears(-4),
	}
	if err := h.Seed.PutChild(ctx, child); err != nil {
		return err
	}

	configs := []workflow.RuleConfig{
		{ID: "cfg-01-endmark", TenantID: tenant, Age: 4, Action: workflow.ActionAddEndMark},
		{ID: "cfg-02-reassign", TenantID: tenant, Age: 4, Action: workflow.ActionReassignGroup},
	}
	for _, config := range configs {
		if err := h.Seed.PutConfig(ctx, config); err != nil {
			return err
		}
	}
	return nil
}
