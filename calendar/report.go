/*
report.go - Attendance reporting over cached rows

PURPOSE:
  Per-child attendance aggregates for a (group, range): counts of present
  and absent days, closed days for the group, and total scheduled hours.
  Reads exclusively through the row cache - reporting never queries the
  rule store directly.

PRECISION:
  Hour totals use decimal arithmetic so a month of 8h45m slots sums
  exactly instead of accumulating float drift.
*/
package calendar

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// ChildAttendance is one child's aggregate over the reported range.
type ChildAttendance struct {
	ChildID        ChildID
	PresentDays    int
	AbsentDays     int
	ScheduledHours decimal.Decimal
}

// AttendanceReport aggregates one group over one range.
type AttendanceReport struct {
	GroupID    GroupID
	Range      DateRange
	ClosedDays int
	Children   []ChildAttendance
}

// =============================================================================
// REPORTER
// =============================================================================

// Reporter is a sanctioned cache reader; it owns no rows and performs no
// writes.
type Reporter struct {
	Cache *RowCache
}

func NewReporter(cache *RowCache) *Reporter {
	return &Reporter{Cache: cache}
}

var minutesPerHour = decimal.NewFromInt(60)

// Report aggregates the group's resolved calendar over [r.Start, r.End].
// Children come back ordered by ID for deterministic output.
func (rep *Reporter) Report(ctx context.Context, group GroupID, r DateRange) (*AttendanceReport, error) {
	rows, err := rep.Cache.GetRows(ctx, group, r)
	if err != nil {
		return nil, err
	}

	report := &AttendanceReport{GroupID: group, Range: r}
	perChild := make(map[ChildID]*ChildAttendance)

	for _, row := range rows {
		switch row.Status {
		case StatusClosed:
			report.ClosedDays++
		case StatusPresent:
			agg := childAgg(perChild, row.ChildID)
			agg.PresentDays++
			minutes := int64(row.EndTime.Minutes() - row.StartTime.Minutes())
			agg.ScheduledHours = agg.ScheduledHours.Add(
				decimal.NewFromInt(minutes).Div(minutesPerHour))
		case StatusAbsent:
			childAgg(perChild, row.ChildID).AbsentDays++
		}
	}

	for _, agg := range perChild {
		report.Children = append(report.Children, *agg)
	}
	sort.Slice(report.Children, func(i, j int) bool {
		return report.Children[i].ChildID < report.Children[j].ChildID
	})
	return report, nil
}

func childAgg(m map[ChildID]*ChildAttendance, id ChildID) *ChildAttendance {
	agg, ok := m[id]
	if !ok {
		agg = &ChildAttendance{ChildID: id, ScheduledHours: decimal.Zero}
		m[id] = agg
	}
	return agg
}
