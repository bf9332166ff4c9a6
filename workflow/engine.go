/*
engine.go - Age event dispatch

PURPOSE:
  Publish receives one ChildTurnedAgeEvent, loads the (tenant, age)
  configurations, and invokes the registered rule for each configured
  ActionType. Dispatch is an explicit registry lookup, never a type-based
  service scan, so add-end-mark and reassign-group configurations stay
  distinguishable at runtime.

FAILURE MODEL:
  A failing rule does not stop the remaining configurations for the same
  event; failures are joined and returned so the caller (the scan loop)
  can log them at per-child granularity without aborting the scan.

SEE ALSO:
  - rules.go: The concrete rule implementations
  - scan.go: The only in-core publisher
*/
package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Configs ConfigStore
	Logger  *zap.Logger

	rules map[ActionType]Rule
}

func NewEngine(configs ConfigStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Configs: configs,
		Logger:  logger,
		rules:   make(map[ActionType]Rule),
	}
}

// Register adds a rule implementation to the dispatch registry. The last
// registration per ActionType wins.
func (e *Engine) Register(rule Rule) {
	e.rules[rule.Action()] = rule
}

// Publish dispatches one age event to every configured rule for the
// event's (tenant, age). Configurations apply sequentially in ascending
// configuration ID order. Rule failures do not short-circuit remaining
// configurations; all failures come back joined.
func (e *Engine) Publish(ctx context.Context, event ChildTurnedAgeEvent) error {
	configs, err := e.Configs.ConfigsForAge(ctx, event.TenantID, event.Age)
	if err != nil {
		return fmt.Errorf("load rule configs: %w", err)
	}

	ec := EvaluationContext{TenantID: event.TenantID, Today: event.BirthdayDate}

	var failures []error
	for _, config := range configs {
		rule, ok := e.rules[config.Action]
		if !ok {
			e.Logger.Warn("no rule registered for configured action",
				zap.String("config", config.ID),
				zap.String("action", string(config.Action)))
			continue
		}
		if err := rule.Evaluate(ctx, ec, event); err != nil {
			e.Logger.Error("workflow rule failed",
				zap.String("config", config.ID),
				zap.String("action", string(config.Action)),
				zap.String("child", string(event.ChildID)),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("config %s (%s): %w", config.ID, config.Action, err))
		}
	}
	return errors.Join(failures...)
}
