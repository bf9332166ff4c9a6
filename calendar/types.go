/*
Package calendar is the scheduling resolution and calendar cache engine.

PURPOSE:
  Merges independent, time-ranged, precedence-ordered data sources
  (recurring weekly schedule rules, absences, organization-wide closures,
  child-specific end marks) into a per-child, per-day attendance verdict,
  and maintains a materialized cache of that verdict for fast range reads.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: TenantID, ChildID, GroupID, ... prevent mixing IDs
  - CalendarEvent: One piece of resolution evidence (tagged variant)
  - CalendarRow: One collapsed, cached per-(group, date, child) verdict
  - RowStatus: The terminal per-day status (present / absent / closed)

PRECEDENCE:
  Closure overrides Absence overrides ScheduleRule. The resolution engine
  emits the full event log; collapsing to one status per (child, date) is
  the row cache's job.

TENANCY:
  Every read and write is scoped to a tenant. The tenant travels on the
  context (WithTenant / TenantFromContext) and is passed explicitly to
  store implementations.

SEE ALSO:
  - resolve.go: Event log production
  - cache.go: Collapsing and materialization
  - entities.go: Rule store records and their invariants
*/
package calendar

import "context"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type ChildID string
type GroupID string
type ScheduleID string
type TimeSlotID string
type AbsenceID string
type ClosureID string
type EndMarkID string

// =============================================================================
// TENANCY - Current tenant travels on the context
// =============================================================================

type tenantKey struct{}

// WithTenant returns a context scoped to the given tenant.
func WithTenant(ctx context.Context, tenant TenantID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext extracts the current tenant.
// Returns ErrNoTenant if the context carries none.
func TenantFromContext(ctx context.Context) (TenantID, error) {
	tenant, ok := ctx.Value(tenantKey{}).(TenantID)
	if !ok || tenant == "" {
		return "", ErrNoTenant
	}
	return tenant, nil
}

// =============================================================================
// CALENDAR EVENT - One piece of resolution evidence (tagged variant)
// =============================================================================

type EventKind string

const (
	EventClosure      EventKind = "closure"
	EventAbsence      EventKind = "absence"
	EventScheduleRule EventKind = "schedule_rule"
)

// CalendarEvent is one dated piece of evidence emitted by the resolution
// engine. Which fields are populated depends on Kind:
//
//	EventClosure:      Date, Reason (no child, no group - closures are global)
//	EventAbsence:      Date, ChildID, GroupID, Reason
//	EventScheduleRule: Date, ChildID, GroupID, SlotID, SlotName, SlotStart, SlotEnd
type CalendarEvent struct {
	Kind EventKind
	Date Date

	ChildID ChildID
	GroupID GroupID

	SlotID    TimeSlotID
	SlotName  string
	SlotStart TimeOfDay
	SlotEnd   TimeOfDay

	Reason string
}

// =============================================================================
// ROW STATUS - The collapsed per-day verdict
// =============================================================================

type RowStatus string

const (
	StatusPresent RowStatus = "present"
	StatusAbsent  RowStatus = "absent"
	StatusClosed  RowStatus = "closed"
)

// =============================================================================
// CALENDAR ROW - Cached, denormalized attendance verdict
// =============================================================================

// CalendarRow is one materialized verdict for a (group, date, child) triple.
// Rows are rebuilt from the rule store, never hand-edited, and are owned
// exclusively by the row cache. They hold copied scalars only - no live
// references back into rule store entities.
//
// A closed day materializes as a single group-wide row with an empty ChildID.
type CalendarRow struct {
	ID       string
	TenantID TenantID
	GroupID  GroupID
	Date     Date
	ChildID  ChildID

	Status    RowStatus
	SlotName  string
	StartTime TimeOfDay
	EndTime   TimeOfDay

	Birthday Date
	Age      int

	// Reason is populated when Status is absent or closed.
	Reason string
}

// =============================================================================
// CHILD - Directory record used for denormalizing rows
// =============================================================================

// Child is the slice of the people directory this engine needs: identity
// and birth date. Person CRUD lives elsewhere.
type Child struct {
	ID        ChildID
	TenantID  TenantID
	Name      string
	BirthDate Date
}

// Group is the lookup record used for denormalization and the group
// reassignment heuristic.
type Group struct {
	ID       GroupID
	TenantID TenantID
	Name     string
}
