/*
cache.go - Calendar row cache with lazy rebuild

PURPOSE:
  The only sanctioned read path for calendars. GetRows returns cached rows
  for a (group, range), transparently rebuilding any stale or missing
  (group, date) partitions: resolve, collapse, persist, then read back.

COLLAPSING:
  The resolution engine emits an event log; this cache collapses it to at
  most one terminal status per (child, date) with strict precedence
  Closure > Absence > ScheduleRule. A closed day collapses to a single
  group-wide row with no child.

CONSISTENCY:
  After GetRows returns, every row reflects the rule store state as of the
  most recent completed write that invalidated an overlapping range before
  this call. Read-your-writes within one process; the cache storage itself
  is the source of truth for "is this rebuilt".

SEE ALSO:
  - resolve.go: Event log production
  - invalidate.go: The write-side staleness marking
*/
package calendar

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// ROW CACHE
// =============================================================================

// RowCache owns CalendarRow records. No other component constructs them.
type RowCache struct {
	Engine *Engine
	Rules  RuleReader
	Store  CacheStore
	Logger *zap.Logger
}

func NewRowCache(engine *Engine, rules RuleReader, store CacheStore, logger *zap.Logger) *RowCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RowCache{Engine: engine, Rules: rules, Store: store, Logger: logger}
}

// GetRows returns the resolved rows for the group over [r.Start, r.End],
// rebuilding stale or missing dates first. Rows come back ordered by
// (date, child).
func (c *RowCache) GetRows(ctx context.Context, group GroupID, r DateRange) ([]CalendarRow, error) {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if r.End.Before(r.Start) {
		return nil, (&ValidationError{}).Add("to", "invalid_window", "range end must not be before range start")
	}

	fresh, err := c.Store.FreshDates(ctx, tenant, group, r)
	if err != nil {
		return nil, fmt.Errorf("check cache freshness: %w", err)
	}

	var stale []Date
	for _, day := range r.Days() {
		if !fresh[day] {
			stale = append(stale, day)
		}
	}

	if len(stale) > 0 {
		if err := c.rebuild(ctx, tenant, group, stale); err != nil {
			return nil, err
		}
	}

	rows, err := c.Store.Rows(ctx, tenant, group, r)
	if err != nil {
		return nil, fmt.Errorf("read cache rows: %w", err)
	}
	return rows, nil
}

// rebuild materializes the given dates for one group. The dates need not
// be contiguous; resolution runs once over their hull and rows outside the
// stale set are discarded.
func (c *RowCache) rebuild(ctx context.Context, tenant TenantID, group GroupID, stale []Date) error {
	hull := DateRange{Start: stale[0], End: stale[len(stale)-1]}

	events, err := c.Engine.Resolve(ctx, tenant, []GroupID{group}, hull)
	if err != nil {
		return fmt.Errorf("resolve %s %s: %w", group, hull, err)
	}

	staleSet := make(map[Date]bool, len(stale))
	for _, d := range stale {
		staleSet[d] = true
	}

	rows, err := c.collapse(ctx, tenant, group, events, staleSet)
	if err != nil {
		return err
	}

	if err := c.Store.ReplaceDates(ctx, tenant, group, stale, rows); err != nil {
		return fmt.Errorf("persist cache rows: %w", err)
	}

	c.Logger.Debug("calendar cache rebuilt",
		zap.String("tenant", string(tenant)),
		zap.String("group", string(group)),
		zap.Int("dates", len(stale)),
		zap.Int("rows", len(rows)))
	return nil
}

// collapse reduces the event log to at most one row per (child, date),
// keeping only dates in the stale set.
func (c *RowCache) collapse(ctx context.Context, tenant TenantID, group GroupID, events []CalendarEvent, keep map[Date]bool) ([]CalendarRow, error) {
	childIDs := make([]ChildID, 0, len(events))
	seen := make(map[ChildID]bool)
	for _, ev := range events {
		if ev.ChildID != "" && !seen[ev.ChildID] {
			seen[ev.ChildID] = true
			childIDs = append(childIDs, ev.ChildID)
		}
	}
	children, err := c.Rules.Children(ctx, tenant, childIDs)
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}

	var rows []CalendarRow
	closedDates := make(map[Date]bool)
	byChildDate := make(map[string]int)

	for _, ev := range events {
		if !keep[ev.Date] {
			continue
		}
		switch ev.Kind {
		case EventClosure:
			if closedDates[ev.Date] {
				continue
			}
			closedDates[ev.Date] = true
			rows = append(rows, CalendarRow{
				ID:       uuid.NewString(),
				TenantID: tenant,
				GroupID:  group,
				Date:     ev.Date,
				Status:   StatusClosed,
				Reason:   ev.Reason,
			})
		case EventAbsence, EventScheduleRule:
			// Overlapping schedules can emit duplicate evidence for one
			// (child, date); at most one row survives, absence outranking
			// presence.
			key := string(ev.ChildID) + "|" + ev.Date.String()
			if i, ok := byChildDate[key]; ok {
				if ev.Kind == EventAbsence && rows[i].Status == StatusPresent {
					rows[i].Status = StatusAbsent
					rows[i].Reason = ev.Reason
					rows[i].SlotName = ""
					rows[i].StartTime = TimeOfDay{}
					rows[i].EndTime = TimeOfDay{}
				}
				continue
			}

			row := CalendarRow{
				ID:       uuid.NewString(),
				TenantID: tenant,
				GroupID:  group,
				Date:     ev.Date,
				ChildID:  ev.ChildID,
			}
			if child, ok := children[ev.ChildID]; ok {
				row.Birthday = child.BirthDate
				row.Age = AgeOn(child.BirthDate, ev.Date)
			}
			if ev.Kind == EventAbsence {
				row.Status = StatusAbsent
				row.Reason = ev.Reason
			} else {
				row.Status = StatusPresent
				row.SlotName = ev.SlotName
				row.StartTime = ev.SlotStart
				row.EndTime = ev.SlotEnd
			}
			byChildDate[key] = len(rows)
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].ChildID < rows[j].ChildID
	})
	return rows, nil
}
