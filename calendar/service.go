/*
service.go - Command handlers owning the rule store records

PURPOSE:
  Validated write operations for absences, closures, schedules, end marks
  and time slots. Each command validates before any mutation (no partial
  writes on rejection), performs its write, then invalidates the affected
  cache ranges synchronously before returning.

ORDERING:
  Write first, invalidate second. Invalidating first would let a
  concurrent read re-materialize the pre-write state as fresh, hiding the
  write forever. If invalidation fails, the mutation is compensated (best
  effort) before the command fails: adds are removed again, removals
  re-created, rule replacements restored. The consistency model is
  sequential calls within one logical operation, not cross-store
  transactions.

END MARKS:
  Adding a mark for a (child, date) that already has one is an idempotent
  no-op success, never an error. Add and remove both trigger a schedule
  timeline recalculation for the child via the external
  ScheduleTimelineService collaborator.

SEE ALSO:
  - invalidate.go: Range computation per record kind
  - entities.go: Validation invariants
*/
package calendar

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Rules       RuleStore
	Invalidator *Invalidator
	Timeline    ScheduleTimelineService
	Logger      *zap.Logger
}

func NewService(rules RuleStore, inv *Invalidator, timeline ScheduleTimelineService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Rules: rules, Invalidator: inv, Timeline: timeline, Logger: logger}
}

// =============================================================================
// ABSENCES
// =============================================================================

// AddAbsence records an absence and invalidates the covered range for
// every group the child is scheduled into.
func (s *Service) AddAbsence(ctx context.Context, child ChildID, r DateRange, reason string) (*Absence, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	absence := &Absence{
		ID:        AbsenceID(uuid.NewString()),
		TenantID:  tenant,
		ChildID:   child,
		StartDate: r.Start,
		EndDate:   r.End,
		Reason:    reason,
	}
	if err := absence.Validate(); err != nil {
		return nil, err
	}

	if err := s.Rules.CreateAbsence(ctx, absence); err != nil {
		return nil, fmt.Errorf("create absence: %w", err)
	}

	if err := s.Invalidator.InvalidateForChild(ctx, tenant, child, r); err != nil {
		// Roll the record back so a failed invalidation fails the whole
		// write instead of leaving a stale cache behind it.
		if delErr := s.Rules.DeleteAbsence(ctx, tenant, absence.ID); delErr != nil {
			s.Logger.Error("absence rollback failed",
				zap.String("absence", string(absence.ID)), zap.Error(delErr))
		}
		return nil, err
	}
	return absence, nil
}

// RemoveAbsence deletes an absence and re-invalidates the range it covered.
func (s *Service) RemoveAbsence(ctx context.Context, id AbsenceID) error {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}

	absence, err := s.Rules.GetAbsence(ctx, tenant, id)
	if err != nil {
		return err
	}

	if err := s.Rules.DeleteAbsence(ctx, tenant, id); err != nil {
		return fmt.Errorf("delete absence: %w", err)
	}

	if err := s.Invalidator.InvalidateForChild(ctx, tenant, absence.ChildID, absence.Range()); err != nil {
		// Restore the record so the cache never outlives its evidence.
		if addErr := s.Rules.CreateAbsence(ctx, absence); addErr != nil {
			s.Logger.Error("absence restore failed",
				zap.String("absence", string(absence.ID)), zap.Error(addErr))
		}
		return err
	}
	return nil
}

// =============================================================================
// CLOSURE PERIODS
// =============================================================================

// AddClosure records an organization-wide closure. Addition invalidates
// every group's calendar for the closure range, same as deletion.
func (s *Service) AddClosure(ctx context.Context, r DateRange, reason string) (*ClosurePeriod, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	closure := &ClosurePeriod{
		ID:        ClosureID(uuid.NewString()),
		TenantID:  tenant,
		StartDate: r.Start,
		EndDate:   r.End,
		Reason:    reason,
	}
	if err := closure.Validate(); err != nil {
		return nil, err
	}

	if err := s.Rules.CreateClosure(ctx, closure); err != nil {
		return nil, fmt.Errorf("create closure: %w", err)
	}

	if err := s.Invalidator.InvalidateAllGroups(ctx, tenant, r); err != nil {
		if delErr := s.Rules.DeleteClosure(ctx, tenant, closure.ID); delErr != nil {
			s.Logger.Error("closure rollback failed",
				zap.String("closure", string(closure.ID)), zap.Error(delErr))
		}
		return nil, err
	}
	return closure, nil
}

// RemoveClosure deletes a closure period and invalidates every group's
// calendar for its range.
func (s *Service) RemoveClosure(ctx context.Context, id ClosureID) error {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}

	closure, err := s.Rules.GetClosure(ctx, tenant, id)
	if err != nil {
		return err
	}

	if err := s.Rules.DeleteClosure(ctx, tenant, id); err != nil {
		return fmt.Errorf("delete closure: %w", err)
	}

	if err := s.Invalidator.InvalidateAllGroups(ctx, tenant, closure.Range()); err != nil {
		if addErr := s.Rules.CreateClosure(ctx, closure); addErr != nil {
			s.Logger.Error("closure restore failed",
				zap.String("closure", string(closure.ID)), zap.Error(addErr))
		}
		return err
	}
	return nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

// CreateSchedule enrolls a child with its weekly rules and invalidates the
// referenced groups over the schedule window.
func (s *Service) CreateSchedule(ctx context.Context, child ChildID, start Date, end *Date, rules []ScheduleRule) (*Schedule, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	schedule := &Schedule{
		ID:        ScheduleID(uuid.NewString()),
		TenantID:  tenant,
		ChildID:   child,
		StartDate: start,
		EndDate:   end,
		Rules:     rules,
		Version:   1,
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkSlotsExist(ctx, tenant, rules); err != nil {
		return nil, err
	}

	if err := s.Rules.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	if err := s.Invalidator.InvalidateSchedule(ctx, tenant, schedule, schedule.GroupIDs()); err != nil {
		if delErr := s.Rules.DeleteSchedule(ctx, tenant, schedule.ID); delErr != nil {
			s.Logger.Error("schedule rollback failed",
				zap.String("schedule", string(schedule.ID)), zap.Error(delErr))
		}
		return nil, err
	}
	return schedule, nil
}

// ReplaceScheduleRules swaps a schedule's rule set under an optimistic
// version check and invalidates the union of old and new groups over the
// schedule window.
func (s *Service) ReplaceScheduleRules(ctx context.Context, id ScheduleID, expectedVersion int64, rules []ScheduleRule) (*Schedule, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.Rules.GetSchedule(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	candidate := *current
	candidate.Rules = rules
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkSlotsExist(ctx, tenant, rules); err != nil {
		return nil, err
	}

	if err := s.Rules.UpdateScheduleRules(ctx, tenant, id, expectedVersion, rules); err != nil {
		return nil, err
	}

	groups := unionGroups(current.GroupIDs(), candidate.GroupIDs())
	if err := s.Invalidator.InvalidateSchedule(ctx, tenant, &candidate, groups); err != nil {
		// Put the previous rule set back; the version advances again but
		// the store and cache stay in agreement.
		if restoreErr := s.Rules.UpdateScheduleRules(ctx, tenant, id, current.Version+1, current.Rules); restoreErr != nil {
			s.Logger.Error("schedule rules restore failed",
				zap.String("schedule", string(id)), zap.Error(restoreErr))
		}
		return nil, err
	}

	candidate.Version = current.Version + 1
	return &candidate, nil
}

func (s *Service) checkSlotsExist(ctx context.Context, tenant TenantID, rules []ScheduleRule) error {
	ids := make([]TimeSlotID, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.TimeSlotID)
	}
	slots, err := s.Rules.TimeSlots(ctx, tenant, ids)
	if err != nil {
		return fmt.Errorf("load time slots: %w", err)
	}
	for _, rule := range rules {
		if _, ok := slots[rule.TimeSlotID]; !ok {
			return &NotFoundError{Kind: "time slot", ID: string(rule.TimeSlotID)}
		}
	}
	return nil
}

func unionGroups(a, b []GroupID) []GroupID {
	seen := make(map[GroupID]bool, len(a)+len(b))
	var union []GroupID
	for _, g := range append(append([]GroupID{}, a...), b...) {
		if !seen[g] {
			seen[g] = true
			union = append(union, g)
		}
	}
	return union
}

// =============================================================================
// END MARKS
// =============================================================================

// AddEndMark records an attendance cutoff for a child. If a mark already
// exists for the same (child, endDate) the call is an idempotent no-op
// success returning the existing mark. Otherwise the mark is written and
// the child's schedule timeline recalculated.
func (s *Service) AddEndMark(ctx context.Context, child ChildID, endDate Date, reason string, systemGenerated bool) (*EndMark, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	mark := &EndMark{
		ID:              EndMarkID(uuid.NewString()),
		TenantID:        tenant,
		ChildID:         child,
		EndDate:         endDate,
		Reason:          reason,
		SystemGenerated: systemGenerated,
	}
	if err := mark.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.Rules.EndMarksByChild(ctx, tenant, child)
	if err != nil {
		return nil, fmt.Errorf("load end marks: %w", err)
	}
	for i := range existing {
		if existing[i].EndDate.Equal(endDate) {
			return &existing[i], nil
		}
	}

	if err := s.Rules.CreateEndMark(ctx, mark); err != nil {
		return nil, fmt.Errorf("create end mark: %w", err)
	}

	if err := s.Timeline.Recalculate(ctx, tenant, child); err != nil {
		return nil, fmt.Errorf("recalculate schedule timeline: %w", err)
	}
	return mark, nil
}

// RemoveEndMark deletes a mark and recalculates the child's schedule
// timeline.
func (s *Service) RemoveEndMark(ctx context.Context, id EndMarkID) error {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}

	mark, err := s.Rules.DeleteEndMark(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.Timeline.Recalculate(ctx, tenant, mark.ChildID); err != nil {
		return fmt.Errorf("recalculate schedule timeline: %w", err)
	}
	return nil
}

// =============================================================================
// TIME SLOTS
// =============================================================================

func (s *Service) CreateTimeSlot(ctx context.Context, name string, start, end TimeOfDay) (*TimeSlot, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	slot := &TimeSlot{
		ID:       TimeSlotID(uuid.NewString()),
		TenantID: tenant,
		Name:     name,
		Start:    start,
		End:      end,
	}
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	if err := s.Rules.CreateTimeSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create time slot: %w", err)
	}
	return slot, nil
}

// DeleteTimeSlot removes a slot; the store rejects the delete with a
// Conflict while any schedule rule still references it.
func (s *Service) DeleteTimeSlot(ctx context.Context, id TimeSlotID) error {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return s.Rules.DeleteTimeSlot(ctx, tenant, id)
}
