/*
Package workflow reacts to children growing older.

PURPOSE:
  A daily scan finds children whose birthday is observed today and
  publishes one ChildTurnedAgeEvent per match. The engine dispatches each
  event to the rule implementations configured for that (tenant, age):
  add an automatic end mark, reassign the child's group. Rules write back
  into the rule store through the calendar command service, which performs
  the cache invalidation.

DISPATCH:
  Rules are keyed by an explicit ActionType and selected from a registry,
  one concrete implementation per action. Multiple configurations for the
  same age apply sequentially in ascending configuration ID order; that
  order is part of the contract and covered by tests.

KEY TYPES IN THIS FILE:
  ActionType, RuleConfig:   What is configured per tenant and age
  ChildTurnedAgeEvent:      The domain event the scan publishes
  EvaluationContext:        Per-dispatch context handed to rules
  Rule:                     One pluggable action implementation

SEE ALSO:
  - engine.go: Registry and dispatch
  - scan.go: The daily producer
*/
package workflow

import (
	"context"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// ACTION TYPES AND CONFIGURATION
// =============================================================================

type ActionType string

const (
	ActionAddEndMark    ActionType = "add_end_mark"
	ActionReassignGroup ActionType = "reassign_group"
)

// RuleConfig names one action to run when a child of the tenant reaches
// the configured age.
type RuleConfig struct {
	ID       string
	TenantID calendar.TenantID
	Age      int
	Action   ActionType
}

// =============================================================================
// EVENTS
// =============================================================================

// ChildTurnedAgeEvent is published once per child per observed birthday.
type ChildTurnedAgeEvent struct {
	TenantID     calendar.TenantID
	ChildID      calendar.ChildID
	Age          int
	BirthdayDate calendar.Date
}

// EvaluationContext is handed to every rule dispatch.
type EvaluationContext struct {
	TenantID calendar.TenantID
	Today    calendar.Date
}

// =============================================================================
// RULE - One pluggable action implementation
// =============================================================================

type Rule interface {
	// Action identifies which configurations select this rule.
	Action() ActionType

	// Evaluate applies the rule for one child. Implementations must be
	// safe to re-run for the same event (converge, not duplicate).
	Evaluate(ctx context.Context, ec EvaluationContext, event ChildTurnedAgeEvent) error
}

// =============================================================================
// STORES AND DIRECTORIES
// =============================================================================

// ConfigStore loads rule configurations.
type ConfigStore interface {
	// ConfigsForAge returns the tenant's configurations for the given age,
	// ordered by ascending configuration ID.
	ConfigsForAge(ctx context.Context, tenant calendar.TenantID, age int) ([]RuleConfig, error)
}

// CheckpointStore persists the per-tenant "last scanned date" so a
// restarted process does not re-publish the same day's events.
type CheckpointStore interface {
	LastScan(ctx context.Context, tenant calendar.TenantID) (calendar.Date, error)
	SetLastScan(ctx context.Context, tenant calendar.TenantID, day calendar.Date) error
}

// ChildDirectory lists the children the scan walks.
type ChildDirectory interface {
	ListChildren(ctx context.Context, tenant calendar.TenantID) ([]calendar.Child, error)
}

// TenantDirectory lists the tenants the scan covers.
type TenantDirectory interface {
	ListTenants(ctx context.Context) ([]calendar.TenantID, error)
}
