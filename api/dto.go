/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATE FORMAT:
  All dates travel as "YYYY-MM-DD" strings, all times of day as "HH:MM".
  Parsing happens in handlers; parse failures come back as validation
  errors naming the offending field.

ERROR CONTRACT:
  ErrorResponse carries a machine-readable field list for validation
  failures so clients can annotate the exact inputs that were rejected.

SEE ALSO:
  - handlers.go: Uses these types
  - calendar/errors.go: The domain error taxonomy the contract mirrors
*/
package api

import (
	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// CALENDAR RESPONSES
// =============================================================================

// CalendarRowDTO is one materialized calendar row.
type CalendarRowDTO struct {
	ID       string `json:"id"`
	GroupID  string `json:"group_id"`
	Date     string `json:"date"`
	ChildID  string `json:"child_id,omitempty"`
	Status   string `json:"status"`
	SlotName string `json:"slot_name,omitempty"`
	Start    string `json:"start_time,omitempty"`
	End      string `json:"end_time,omitempty"`
	Birthday string `json:"birthday,omitempty"`
	Age      int    `json:"age,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func toCalendarRowDTO(row calendar.CalendarRow) CalendarRowDTO {
	dto := CalendarRowDTO{
		ID:      row.ID,
		GroupID: string(row.GroupID),
		Date:    row.Date.String(),
		ChildID: string(row.ChildID),
		Status:  string(row.Status),
		Reason:  row.Reason,
	}
	if row.Status == calendar.StatusPresent {
		dto.SlotName = row.SlotName
		dto.Start = row.StartTime.String()
		dto.End = row.EndTime.String()
	}
	if !row.Birthday.IsZero() {
		dto.Birthday = row.Birthday.String()
		dto.Age = row.Age
	}
	return dto
}

// AttendanceReportDTO aggregates one group over one range.
type AttendanceReportDTO struct {
	GroupID    string               `json:"group_id"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	ClosedDays int                  `json:"closed_days"`
	Children   []ChildAttendanceDTO `json:"children"`
}

type ChildAttendanceDTO struct {
	ChildID        string `json:"child_id"`
	PresentDays    int    `json:"present_days"`
	AbsentDays     int    `json:"absent_days"`
	ScheduledHours string `json:"scheduled_hours"`
}

// =============================================================================
// COMMAND REQUESTS AND RESPONSES
// =============================================================================

// CreateAbsenceRequest reports a child absent over an inclusive range.
type CreateAbsenceRequest struct {
	ChildID string `json:"child_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

type AbsenceDTO struct {
	ID      string `json:"id"`
	ChildID string `json:"child_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

// CreateClosureRequest closes the whole organization over a range.
type CreateClosureRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type ClosureDTO struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// ScheduleRuleDTO is one weekly recurrence line.
type ScheduleRuleDTO struct {
	Weekday    int    `json:"weekday"`
	TimeSlotID string `json:"time_slot_id"`
	GroupID    string `json:"group_id"`
}

// CreateScheduleRequest enrolls a child. An empty "to" means open-ended.
type CreateScheduleRequest struct {
	ChildID string            `json:"child_id"`
	From    string            `json:"from"`
	To      string            `json:"to,omitempty"`
	Rules   []ScheduleRuleDTO `json:"rules"`
}

// ReplaceScheduleRulesRequest swaps a schedule's rule set under an
// optimistic version check.
type ReplaceScheduleRulesRequest struct {
	ExpectedVersion int64             `json:"expected_version"`
	Rules           []ScheduleRuleDTO `json:"rules"`
}

type ScheduleDTO struct {
	ID      string            `json:"id"`
	ChildID string            `json:"child_id"`
	From    string            `json:"from"`
	To      string            `json:"to,omitempty"`
	Rules   []ScheduleRuleDTO `json:"rules"`
	Version int64             `json:"version"`
}

func toScheduleDTO(s *calendar.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:      string(s.ID),
		ChildID: string(s.ChildID),
		From:    s.StartDate.String(),
		Version: s.Version,
	}
	if s.EndDate != nil {
		dto.To = s.EndDate.String()
	}
	for _, rule := range s.Rules {
		dto.Rules = append(dto.Rules, ScheduleRuleDTO{
			Weekday:    int(rule.Weekday),
			TimeSlotID: string(rule.TimeSlotID),
			GroupID:    string(rule.GroupID),
		})
	}
	return dto
}

// CreateEndMarkRequest records an attendance cutoff for a child.
type CreateEndMarkRequest struct {
	ChildID string `json:"child_id"`
	EndDate string `json:"end_date"`
	Reason  string `json:"reason,omitempty"`
}

type EndMarkDTO struct {
	ID              string `json:"id"`
	ChildID         string `json:"child_id"`
	EndDate         string `json:"end_date"`
	Reason          string `json:"reason,omitempty"`
	SystemGenerated bool   `json:"system_generated"`
}

// CreateTimeSlotRequest defines a named daily attendance window.
type CreateTimeSlotRequest struct {
	Name  string `json:"name"`
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

type TimeSlotDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error body. Fields is populated only for
// validation failures.
type ErrorResponse struct {
	Error   string                `json:"error"`
	Details string                `json:"details,omitempty"`
	Fields  []calendar.FieldError `json:"fields,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
