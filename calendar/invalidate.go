/*
invalidate.go - Write-side cache invalidation

PURPOSE:
  Narrow write-side API that marks cache ranges stale whenever a rule
  store record changes. Called synchronously inside the command handlers
  in service.go, before the command returns; an invalidation failure fails
  the enclosing write (stale cache is worse than a rejected write).

WHAT INVALIDATES WHAT:
  Absence add/remove:       the absence range, for every group the child
                            is scheduled into during that range
  Closure add/remove:       every group, for the closure range (addition
                            invalidates too, deliberately)
  Schedule rule change:     the affected groups, for the schedule window

SEE ALSO:
  - cache.go: The read side that rebuilds what this marks stale
  - service.go: Callers
*/
package calendar

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// INVALIDATOR
// =============================================================================

type Invalidator struct {
	Rules  RuleReader
	Store  CacheStore
	Logger *zap.Logger
}

func NewInvalidator(rules RuleReader, store CacheStore, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{Rules: rules, Store: store, Logger: logger}
}

// InvalidateGroupRange removes cached rows for one group intersecting the
// range. A zero r.End invalidates unbounded forward.
func (inv *Invalidator) InvalidateGroupRange(ctx context.Context, tenant TenantID, group GroupID, r DateRange) error {
	if err := inv.Store.DeleteRange(ctx, tenant, group, r); err != nil {
		return fmt.Errorf("invalidate group %s range %s: %w", group, r, err)
	}
	inv.Logger.Debug("calendar cache invalidated",
		zap.String("tenant", string(tenant)),
		zap.String("group", string(group)),
		zap.String("range", r.String()))
	return nil
}

// InvalidateForChild invalidates a date range for every group the child is
// scheduled into during that range. Used for absence changes.
func (inv *Invalidator) InvalidateForChild(ctx context.Context, tenant TenantID, child ChildID, r DateRange) error {
	schedules, err := inv.Rules.SchedulesOverlapping(ctx, tenant, nil, r)
	if err != nil {
		return fmt.Errorf("load schedules for invalidation: %w", err)
	}

	seen := make(map[GroupID]bool)
	for i := range schedules {
		if schedules[i].ChildID != child {
			continue
		}
		for _, group := range schedules[i].GroupIDs() {
			if seen[group] {
				continue
			}
			seen[group] = true
			if err := inv.InvalidateGroupRange(ctx, tenant, group, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// InvalidateAllGroups invalidates a date range for every group. Used for
// closure changes, which are organization-wide.
func (inv *Invalidator) InvalidateAllGroups(ctx context.Context, tenant TenantID, r DateRange) error {
	groups, err := inv.Rules.Groups(ctx, tenant)
	if err != nil {
		return fmt.Errorf("list groups for invalidation: %w", err)
	}
	for _, group := range groups {
		if err := inv.InvalidateGroupRange(ctx, tenant, group.ID, r); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateSchedule invalidates the schedule's active window for the
// given groups (pass the union of old and new groups on rule changes).
// An open-ended schedule invalidates unbounded forward.
func (inv *Invalidator) InvalidateSchedule(ctx context.Context, tenant TenantID, s *Schedule, groups []GroupID) error {
	r := DateRange{Start: s.StartDate}
	if s.EndDate != nil {
		r.End = *s.EndDate
	}
	for _, group := range groups {
		if err := inv.InvalidateGroupRange(ctx, tenant, group, r); err != nil {
			return err
		}
	}
	return nil
}
