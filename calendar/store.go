/*
store.go - Persistence interfaces for the rule store and the row cache

PURPOSE:
  Defines the boundary between the engine and storage. The rule store
  persists the source-of-truth records (schedules, absences, closures,
  end marks, time slots, the child/group directory slices the engine
  denormalizes from). The cache store persists materialized calendar rows
  plus per-(group, date) freshness marks.

STALENESS MODEL:
  A (group, date) partition is either materialized-and-fresh or absent.
  Invalidation deletes both the rows and the freshness marks for a range;
  the next read finds the dates missing from FreshDates and rebuilds them.
  The cache storage itself is the source of truth for "is this rebuilt" -
  no in-process bookkeeping survives it.

TENANCY:
  Every method takes the tenant explicitly. Callers resolve it once from
  the context (TenantFromContext) at the operation boundary.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - calendar/store: in-memory store for tests and development

SEE ALSO:
  - cache.go: The only writer of cache rows
  - service.go: The only writer of rule records
*/
package calendar

import "context"

// =============================================================================
// RULE STORE - Source-of-truth records
// =============================================================================

// RuleReader covers the reads the resolution engine and the row cache need.
type RuleReader interface {
	// SchedulesOverlapping returns schedules whose window overlaps the range
	// and that contain at least one rule referencing one of the groups.
	// A nil group slice disables the group filter.
	SchedulesOverlapping(ctx context.Context, tenant TenantID, groups []GroupID, r DateRange) ([]Schedule, error)

	// ClosuresOverlapping returns closure periods overlapping the range.
	// Closures are organization-wide, never group-scoped.
	ClosuresOverlapping(ctx context.Context, tenant TenantID, r DateRange) ([]ClosurePeriod, error)

	// AbsencesForChildren returns absences for the given children
	// overlapping the range.
	AbsencesForChildren(ctx context.Context, tenant TenantID, children []ChildID, r DateRange) ([]Absence, error)

	// TimeSlots resolves slot records by ID for denormalization.
	TimeSlots(ctx context.Context, tenant TenantID, ids []TimeSlotID) (map[TimeSlotID]TimeSlot, error)

	// Children resolves directory records by ID for denormalization.
	Children(ctx context.Context, tenant TenantID, ids []ChildID) (map[ChildID]Child, error)

	// Groups lists all known groups for the tenant.
	Groups(ctx context.Context, tenant TenantID) ([]Group, error)
}

// ScheduleStore owns schedule records.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, tenant TenantID, id ScheduleID) (*Schedule, error)
	SchedulesByChild(ctx context.Context, tenant TenantID, child ChildID) ([]Schedule, error)
	CreateSchedule(ctx context.Context, s *Schedule) error
	DeleteSchedule(ctx context.Context, tenant TenantID, id ScheduleID) error

	// UpdateScheduleRules replaces the rule set of a schedule. The write
	// succeeds only if the stored version matches expectedVersion; on
	// mismatch it returns an error wrapping ErrConcurrency. On success the
	// stored version is incremented.
	UpdateScheduleRules(ctx context.Context, tenant TenantID, id ScheduleID, expectedVersion int64, rules []ScheduleRule) error
}

// AbsenceStore owns absence records.
type AbsenceStore interface {
	GetAbsence(ctx context.Context, tenant TenantID, id AbsenceID) (*Absence, error)
	CreateAbsence(ctx context.Context, a *Absence) error
	DeleteAbsence(ctx context.Context, tenant TenantID, id AbsenceID) error
}

// ClosureStore owns closure period records.
type ClosureStore interface {
	GetClosure(ctx context.Context, tenant TenantID, id ClosureID) (*ClosurePeriod, error)
	CreateClosure(ctx context.Context, c *ClosurePeriod) error
	DeleteClosure(ctx context.Context, tenant TenantID, id ClosureID) error
}

// EndMarkStore owns end mark records.
type EndMarkStore interface {
	EndMarksByChild(ctx context.Context, tenant TenantID, child ChildID) ([]EndMark, error)
	CreateEndMark(ctx context.Context, m *EndMark) error
	DeleteEndMark(ctx context.Context, tenant TenantID, id EndMarkID) (*EndMark, error)
}

// TimeSlotStore owns time slot records.
type TimeSlotStore interface {
	CreateTimeSlot(ctx context.Context, t *TimeSlot) error

	// DeleteTimeSlot removes a slot. It returns an error wrapping
	// ErrConflict while any schedule rule references the slot.
	DeleteTimeSlot(ctx context.Context, tenant TenantID, id TimeSlotID) error
}

// RuleStore is the full rule store surface.
type RuleStore interface {
	RuleReader
	ScheduleStore
	AbsenceStore
	ClosureStore
	EndMarkStore
	TimeSlotStore
}

// =============================================================================
// CACHE STORE - Materialized calendar rows
// =============================================================================

// CacheStore persists calendar rows and their freshness marks. Only the
// row cache writes through it; commands reach it indirectly via the
// invalidator's DeleteRange.
type CacheStore interface {
	// Rows returns materialized rows for the group intersecting the range,
	// ordered by (date, child).
	Rows(ctx context.Context, tenant TenantID, group GroupID, r DateRange) ([]CalendarRow, error)

	// FreshDates reports which dates in the range are materialized and
	// fresh for the group.
	FreshDates(ctx context.Context, tenant TenantID, group GroupID, r DateRange) (map[Date]bool, error)

	// ReplaceDates atomically replaces all rows for the given (group, date)
	// partitions and marks those dates fresh. Dates with no rows in the
	// slice still become fresh (an empty day is a valid verdict).
	ReplaceDates(ctx context.Context, tenant TenantID, group GroupID, dates []Date, rows []CalendarRow) error

	// DeleteRange removes rows and freshness marks for the group
	// intersecting the range. A zero r.End means "unbounded forward".
	DeleteRange(ctx context.Context, tenant TenantID, group GroupID, r DateRange) error
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// ScheduleTimelineService recomputes and persists a child's effective
// schedule end boundaries after end mark changes. The engine calls it,
// never implements it.
type ScheduleTimelineService interface {
	Recalculate(ctx context.Context, tenant TenantID, child ChildID) error
}
