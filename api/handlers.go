/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes the calendar cache and the command service via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Calendar:
    GET    /api/groups/{id}/calendar   Resolved rows for a range
    GET    /api/groups/{id}/report     Attendance aggregates for a range

  Commands:
    POST   /api/absences               Report an absence
    DELETE /api/absences/{id}          Remove an absence
    POST   /api/closures               Add an organization-wide closure
    DELETE /api/closures/{id}          Remove a closure
    POST   /api/schedules              Enroll a child
    GET    /api/schedules/{id}         Get one schedule
    PUT    /api/schedules/{id}/rules   Replace a schedule's rule set
    POST   /api/endmarks               Record an attendance cutoff
    DELETE /api/endmarks/{id}          Remove a cutoff
    POST   /api/timeslots              Define a daily window
    DELETE /api/timeslots/{id}         Remove an unreferenced window

TENANCY:
  Every route requires the tenant header (see tenant.go). Handlers never
  see raw tenant strings; the middleware stores the tenant in the request
  context and domain code resolves it from there.

ERROR HANDLING:
  Domain errors map onto HTTP status by taxonomy:
  - 400: Validation errors (with field list), malformed input
  - 404: Resource not found
  - 409: Conflict, concurrent modification
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - tenant.go: Tenant header middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Cache    *calendar.RowCache
	Service  *calendar.Service
	Reporter *calendar.Reporter
	Seed     ScenarioStore
	Logger   *zap.Logger
}

// NewHandler creates a new handler. Seed may be nil; scenario loading is
// then disabled.
func NewHandler(cache *calendar.RowCache, service *calendar.Service, reporter *calendar.Reporter, seed ScenarioStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Cache:    cache,
		Service:  service,
		Reporter: reporter,
		Seed:     seed,
		Logger:   logger,
	}
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// GetGroupCalendar returns resolved calendar rows for a group and range,
// rebuilding stale partitions on the way.
func (h *Handler) GetGroupCalendar(w http.ResponseWriter, r *http.Request) {
	group := calendar.GroupID(chi.URLParam(r, "id"))

	dateRange, verr := parseRangeQuery(r)
	if verr != nil {
		writeDomainError(w, verr)
		return
	}

	rows, err := h.Cache.GetRows(r.Context(), group, *dateRange)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CalendarRowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toCalendarRowDTO(row))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroupReport returns per-child attendance aggregates for a group.
func (h *Handler) GetGroupReport(w http.ResponseWriter, r *http.Request) {
	group := calendar.GroupID(chi.URLParam(r, "id"))

	dateRange, verr := parseRangeQuery(r)
	if verr != nil {
		writeDomainError(w, verr)
		return
	}

	report, err := h.Reporter.Report(r.Context(), group, *dateRange)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := AttendanceReportDTO{
		GroupID:    string(report.GroupID),
		From:       report.Range.Start.String(),
		To:         report.Range.End.String(),
		ClosedDays: report.ClosedDays,
		Children:   make([]ChildAttendanceDTO, 0, len(report.Children)),
	}
	for _, child := range report.Children {
		dto.Children = append(dto.Children, ChildAttendanceDTO{
			ChildID:        string(child.ChildID),
			PresentDays:    child.PresentDays,
			AbsentDays:     child.AbsentDays,
			ScheduledHours: child.ScheduledHours.String(),
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

// CreateAbsence reports a child absent over an inclusive range.
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	var req CreateAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	verr := &calendar.ValidationError{}
	from := parseDateField(req.From, "from", verr)
	to := parseDateField(req.To, "to", verr)
	if err := verr.OrNil(); err != nil {
		writeDomainError(w, err)
		return
	}

	absence, err := h.Service.AddAbsence(r.Context(), calendar.ChildID(req.ChildID),
		calendar.DateRange{Start: from, End: to}, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AbsenceDTO{
		ID:      string(absence.ID),
		ChildID: string(absence.ChildID),
		From:    absence.StartDate.String(),
		To:      absence.EndDate.String(),
		Reason:  absence.Reason,
	})
}

// DeleteAbsence removes an absence.
func (h *Handler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	id := calendar.AbsenceID(chi.URLParam(r, "id"))
	if err := h.Service.RemoveAbsence(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// CLOSURE HANDLERS
// =============================================================================

// CreateClosure adds an organization-wide closure period.
func (h *Handler) CreateClosure(w http.ResponseWriter, r *http.Request) {
	var req CreateClosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	verr := &calendar.ValidationError{}
	from := parseDateField(req.From, "from", verr)
	to := parseDateField(req.To, "to", verr)
	if err := verr.OrNil(); err != nil {
		writeDomainError(w, err)
		return
	}

	closure, err := h.Service.AddClosure(r.Context(),
		calendar.DateRange{Start: from, End: to}, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ClosureDTO{
		ID:     string(closure.ID),
		From:   closure.StartDate.String(),
		To:     closure.EndDate.String(),
		Reason: closure.Reason,
	})
}

// DeleteClosure removes a closure period.
func (h *Handler) DeleteClosure(w http.ResponseWriter, r *http.Request) {
	id := calendar.ClosureID(chi.URLParam(r, "id"))
	if err := h.Service.RemoveClosure(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// CreateSchedule enrolls a child with weekly rules.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	verr := &calendar.ValidationError{}
	from := parseDateField(req.From, "from", verr)
	var to *calendar.Date
	if req.To != "" {
		end := parseDateField(req.To, "to", verr)
		to = &end
	}
	if err := verr.OrNil(); err != nil {
		writeDomainError(w, err)
		return
	}

	schedule, err := h.Service.CreateSchedule(r.Context(), calendar.ChildID(req.ChildID),
		from, to, toScheduleRules(req.Rules))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(schedule))
}

// GetSchedule returns one schedule with its rules.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	tenant, err := calendar.TenantFromContext(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id := calendar.ScheduleID(chi.URLParam(r, "id"))
	schedule, err := h.Service.Rules.GetSchedule(r.Context(), tenant, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

// ReplaceScheduleRules swaps the rule set of a schedule. A stale
// expected_version is rejected with 409.
func (h *Handler) ReplaceScheduleRules(w http.ResponseWriter, r *http.Request) {
	id := calendar.ScheduleID(chi.URLParam(r, "id"))

	var req ReplaceScheduleRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	schedule, err := h.Service.ReplaceScheduleRules(r.Context(), id,
		req.ExpectedVersion, toScheduleRules(req.Rules))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

func toScheduleRules(dtos []ScheduleRuleDTO) []calendar.ScheduleRule {
	rules := make([]calendar.ScheduleRule, 0, len(dtos))
	for _, dto := range dtos {
		rules = append(rules, calendar.ScheduleRule{
			Weekday:    time.Weekday(dto.Weekday),
			TimeSlotID: calendar.TimeSlotID(dto.TimeSlotID),
			GroupID:    calendar.GroupID(dto.GroupID),
		})
	}
	return rules
}

// =============================================================================
// END MARK HANDLERS
// =============================================================================

// CreateEndMark records an attendance cutoff. Re-posting the same
// (child, end_date) returns the existing mark with 200.
func (h *Handler) CreateEndMark(w http.ResponseWriter, r *http.Request) {
	var req CreateEndMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	verr := &calendar.ValidationError{}
	endDate := parseDateField(req.EndDate, "end_date", verr)
	if err := verr.OrNil(); err != nil {
		writeDomainError(w, err)
		return
	}

	mark, err := h.Service.AddEndMark(r.Context(), calendar.ChildID(req.ChildID),
		endDate, req.Reason, false)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, EndMarkDTO{
		ID:              string(mark.ID),
		ChildID:         string(mark.ChildID),
		EndDate:         mark.EndDate.String(),
		Reason:          mark.Reason,
		SystemGenerated: mark.SystemGenerated,
	})
}

// DeleteEndMark removes a cutoff.
func (h *Handler) DeleteEndMark(w http.ResponseWriter, r *http.Request) {
	id := calendar.EndMarkID(chi.URLParam(r, "id"))
	if err := h.Service.RemoveEndMark(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// TIME SLOT HANDLERS
// =============================================================================

// CreateTimeSlot defines a named daily attendance window.
func (h *Handler) CreateTimeSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateTimeSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	verr := &calendar.ValidationError{}
	start := parseTimeField(req.Start, "start_time", verr)
	end := parseTimeField(req.End, "end_time", verr)
	if err := verr.OrNil(); err != nil {
		writeDomainError(w, err)
		return
	}

	slot, err := h.Service.CreateTimeSlot(r.Context(), req.Name, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TimeSlotDTO{
		ID:    string(slot.ID),
		Name:  slot.Name,
		Start: slot.Start.String(),
		End:   slot.End.String(),
	})
}

// DeleteTimeSlot removes a window; 409 while any schedule references it.
func (h *Handler) DeleteTimeSlot(w http.ResponseWriter, r *http.Request) {
	id := calendar.TimeSlotID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteTimeSlot(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRangeQuery(r *http.Request) (*calendar.DateRange, error) {
	verr := &calendar.ValidationError{}
	from := parseDateField(r.URL.Query().Get("from"), "from", verr)
	to := parseDateField(r.URL.Query().Get("to"), "to", verr)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if to.Before(from) {
		verr.Add("to", "range", "must not be before from")
		return nil, verr.OrNil()
	}
	return &calendar.DateRange{Start: from, End: to}, nil
}

func parseDateField(value, field string, verr *calendar.ValidationError) calendar.Date {
	if value == "" {
		verr.Add(field, "required", "is required")
		return calendar.Date{}
	}
	d, err := calendar.ParseDate(value)
	if err != nil {
		verr.Add(field, "format", "must be a YYYY-MM-DD date")
		return calendar.Date{}
	}
	return d
}

func parseTimeField(value, field string, verr *calendar.ValidationError) calendar.TimeOfDay {
	if value == "" {
		verr.Add(field, "required", "is required")
		return calendar.TimeOfDay{}
	}
	t, err := calendar.ParseTimeOfDay(value)
	if err != nil {
		verr.Add(field, "format", "must be an HH:MM time")
		return calendar.TimeOfDay{}
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	if verr, ok := calendar.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Fields: verr.Fields,
		})
		return
	}

	switch {
	case calendar.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case calendar.IsConcurrency(err):
		writeError(w, http.StatusConflict, "Concurrent modification", err)
	case calendar.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, calendar.ErrNoTenant):
		writeError(w, http.StatusBadRequest, "Missing tenant", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
