/*
rules.go - Concrete age rule implementations

PURPOSE:
  One implementation per ActionType. Both write back through the calendar
  command service so every mutation carries its cache invalidation and
  timeline recalculation with it.

  AddEndMarkRule:    On the fourth birthday, create one system-generated
                     end mark dated on the birthday. Re-running the same
                     scan is a no-op because the command service treats a
                     duplicate (child, endDate) mark as idempotent success.

  ReassignGroupRule: Move every schedule rule of the child to the target
                     group. Target selection is the lexicographically
                     first known group by name; a placeholder heuristic
                     until reassignment targets become configurable.
                     TODO: make the target group part of RuleConfig.

SEE ALSO:
  - calendar/service.go: AddEndMark idempotency, ReplaceScheduleRules
*/
package workflow

import (
	"context"
	"fmt"

	"github.com/warp/attendance-engine/calendar"
	"go.uber.org/zap"
)

// AutoEndMarkReason is the reason recorded on system-generated end marks.
const AutoEndMarkReason = "Auto: Child turned 4"

// endMarkAge is the only age AddEndMarkRule acts on.
const endMarkAge = 4

// =============================================================================
// ADD END MARK
// =============================================================================

type AddEndMarkRule struct {
	Service *calendar.Service
	Logger  *zap.Logger
}

func NewAddEndMarkRule(service *calendar.Service, logger *zap.Logger) *AddEndMarkRule {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AddEndMarkRule{Service: service, Logger: logger}
}

func (r *AddEndMarkRule) Action() ActionType { return ActionAddEndMark }

func (r *AddEndMarkRule) Evaluate(ctx context.Context, ec EvaluationContext, event ChildTurnedAgeEvent) error {
	if event.Age != endMarkAge {
		return nil
	}

	ctx = calendar.WithTenant(ctx, ec.TenantID)
	mark, err := r.Service.AddEndMark(ctx, event.ChildID, event.BirthdayDate, AutoEndMarkReason, true)
	if err != nil {
		return fmt.Errorf("add end mark for %s: %w", event.ChildID, err)
	}

	r.Logger.Info("end mark ensured for fourth birthday",
		zap.String("child", string(event.ChildID)),
		zap.String("endDate", mark.EndDate.String()),
		zap.Bool("systemGenerated", mark.SystemGenerated))
	return nil
}

// =============================================================================
// REASSIGN GROUP
// =============================================================================

type ReassignGroupRule struct {
	Service *calendar.Service
	Rules   calendar.RuleStore
	Logger  *zap.Logger
}

func NewReassignGroupRule(service *calendar.Service, rules calendar.RuleStore, logger *zap.Logger) *ReassignGroupRule {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReassignGroupRule{Service: service, Rules: rules, Logger: logger}
}

func (r *ReassignGroupRule) Action() ActionType { return ActionReassignGroup }

func (r *ReassignGroupRule) Evaluate(ctx context.Context, ec EvaluationContext, event ChildTurnedAgeEvent) error {
	ctx = calendar.WithTenant(ctx, ec.TenantID)

	schedules, err := r.Rules.SchedulesByChild(ctx, ec.TenantID, event.ChildID)
	if err != nil {
		return fmt.Errorf("load schedules for %s: %w", event.ChildID, err)
	}
	if len(schedules) == 0 {
		return nil
	}

	target, err := r.targetGroup(ctx, ec.TenantID)
	if err != nil {
		return err
	}

	for i := range schedules {
		schedule := &schedules[i]
		changed := false
		rules := append([]calendar.ScheduleRule{}, schedule.Rules...)
		for j := range rules {
			if rules[j].GroupID != target {
				rules[j].GroupID = target
				changed = true
			}
		}
		if !changed {
			continue
		}
		if _, err := r.Service.ReplaceScheduleRules(ctx, schedule.ID, schedule.Version, rules); err != nil {
			return fmt.Errorf("reassign schedule %s: %w", schedule.ID, err)
		}
		r.Logger.Info("schedule reassigned",
			zap.String("child", string(event.ChildID)),
			zap.String("schedule", string(schedule.ID)),
			zap.String("group", string(target)))
	}
	return nil
}

// targetGroup picks the lexicographically first known group by name,
// falling back to ID order on ties.
func (r *ReassignGroupRule) targetGroup(ctx context.Context, tenant calendar.TenantID) (calendar.GroupID, error) {
	groups, err := r.Rules.Groups(ctx, tenant)
	if err != nil {
		return "", fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return "", &calendar.NotFoundError{Kind: "group", ID: "(any)"}
	}
	best := groups[0]
	for _, g := range groups[1:] {
		if g.Name < best.Name || (g.Name == best.Name && g.ID < best.ID) {
			best = g
		}
	}
	return best.ID, nil
}
