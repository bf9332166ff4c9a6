/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements calendar.RuleStore, calendar.CacheStore and the workflow
  stores (ConfigStore, CheckpointStore, ChildDirectory, TenantDirectory)
  on one database. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

KEY TABLES:
  schedules + schedule_rules: Weekly attendance definitions
  absences, closure_periods:  Date-ranged overrides
  end_marks:                  Hard cutoffs; UNIQUE(tenant, child, end_date)
  calendar_rows:              Materialized cache rows
  calendar_days:              Per-(group, date) freshness marks
  workflow_configs:           Age rule configuration
  scan_checkpoints:           Per-tenant last scan date
  children, groups:           Directory slices for denormalization

CACHE ATOMICITY:
  ReplaceDates runs delete + insert + freshness marking in one SQL
  transaction, so a reader never observes a half-rebuilt partition.

MIGRATION:
  Versioned goose migrations embedded in the binary, applied on New().

WAL MODE:
  The database is opened with WAL for better concurrency: multiple
  readers don't block, single writer at a time.

SEE ALSO:
  - calendar/store.go: Interface definitions
  - calendar/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/workflow"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies pending
// migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// DATE ENCODING - Dates persist as "YYYY-MM-DD" text
// =============================================================================

func encodeDate(d calendar.Date) string {
	return d.String()
}

func decodeDate(s string) (calendar.Date, error) {
	return calendar.ParseDate(s)
}

func encodeDatePtr(d *calendar.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// =============================================================================
// RULE READER
// =============================================================================

func (s *Store) SchedulesOverlapping(ctx context.Context, tenant calendar.TenantID, groups []calendar.GroupID, r calendar.DateRange) ([]calendar.Schedule, error) {
	query := `
		SELECT DISTINCT sc.id, sc.tenant_id, sc.child_id, sc.start_date, sc.end_date, sc.version
		FROM schedules sc
		JOIN schedule_rules sr ON sr.schedule_id = sc.id
		WHERE sc.tenant_id = ?
		  AND sc.start_date <= ?
		  AND (sc.end_date IS NULL OR sc.end_date >= ?)
	`
	args := []any{tenant, encodeDate(r.End), encodeDate(r.Start)}
	if len(groups) > 0 {
		query += " AND sr.group_id IN (" + placeholders(len(groups)) + ")"
		for _, g := range groups {
			args = append(args, g)
		}
	}
	query += " ORDER BY sc.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []calendar.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	if err := s.attachRules(ctx, schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func scanSchedule(rows *sql.Rows) (*calendar.Schedule, error) {
	var (
		schedule calendar.Schedule
		start    string
		end      sql.NullString
	)
	if err := rows.Scan(&schedule.ID, &schedule.TenantID, &schedule.ChildID, &start, &end, &schedule.Version); err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	var err error
	if schedule.StartDate, err = decodeDate(start); err != nil {
		return nil, err
	}
	if end.Valid {
		d, err := decodeDate(end.String)
		if err != nil {
			return nil, err
		}
		schedule.EndDate = &d
	}
	return &schedule, nil
}

// attachRules loads rule sets for the given schedules in one query.
func (s *Store) attachRules(ctx context.Context, schedules []calendar.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	ids := make([]any, 0, len(schedules))
	index := make(map[calendar.ScheduleID]*calendar.Schedule, len(schedules))
	for i := range schedules {
		ids = append(ids, schedules[i].ID)
		index[schedules[i].ID] = &schedules[i]
	}

	query := `
		SELECT schedule_id, weekday, time_slot_id, group_id
		FROM schedule_rules
		WHERE schedule_id IN (` + placeholders(len(ids)) + `)
		ORDER BY schedule_id, weekday
	`
	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("query schedule rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			scheduleID calendar.ScheduleID
			weekday    int
			rule       calendar.ScheduleRule
		)
		if err := rows.Scan(&scheduleID, &weekday, &rule.TimeSlotID, &rule.GroupID); err != nil {
			return fmt.Errorf("scan schedule rule: %w", err)
		}
		rule.Weekday = time.Weekday(weekday)
		if schedule, ok := index[scheduleID]; ok {
			schedule.Rules = append(schedule.Rules, rule)
		}
	}
	return rows.Err()
}

func (s *Store) ClosuresOverlapping(ctx context.Context, tenant calendar.TenantID, r calendar.DateRange) ([]calendar.ClosurePeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, start_date, end_date, reason
		FROM closure_periods
		WHERE tenant_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY id
	`, tenant, encodeDate(r.End), encodeDate(r.Start))
	if err != nil {
		return nil, fmt.Errorf("query closures: %w", err)
	}
	defer rows.Close()

	var closures []calendar.ClosurePeriod
	for rows.Next() {
		var (
			closure    calendar.ClosurePeriod
			start, end string
		)
		if err := rows.Scan(&closure.ID, &closure.TenantID, &start, &end, &closure.Reason); err != nil {
			return nil, fmt.Errorf("scan closure: %w", err)
		}
		if closure.StartDate, err = decodeDate(start); err != nil {
			return nil, err
		}
		if closure.EndDate, err = decodeDate(end); err != nil {
			return nil, err
		}
		closures = append(closures, closure)
	}
	return closures, rows.Err()
}

func (s *Store) AbsencesForChildren(ctx context.Context, tenant calendar.TenantID, children []calendar.ChildID, r calendar.DateRange) ([]calendar.Absence, error) {
	if len(children) == 0 {
		return nil, nil
	}
	args := []any{tenant, encodeDate(r.End), encodeDate(r.Start)}
	for _, c := range children {
		args = append(args, c)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, child_id, start_date, end_date, COALESCE(reason, '')
		FROM absences
		WHERE tenant_id = ? AND start_date <= ? AND end_date >= ?
		  AND child_id IN (`+placeholders(len(children))+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query absences: %w", err)
	}
	defer rows.Close()

	var absences []calendar.Absence
	for rows.Next() {
		var (
			absence    calendar.Absence
			start, end string
		)
		if err := rows.Scan(&absence.ID, &absence.TenantID, &absence.ChildID, &start, &end, &absence.Reason); err != nil {
			return nil, fmt.Errorf("scan absence: %w", err)
		}
		if absence.StartDate, err = decodeDate(start); err != nil {
			return nil, err
		}
		if absence.EndDate, err = decodeDate(end); err != nil {
			return nil, err
		}
		absences = append(absences, absence)
	}
	return absences, rows.Err()
}

func (s *Store) TimeSlots(ctx context.Context, tenant calendar.TenantID, ids []calendar.TimeSlotID) (map[calendar.TimeSlotID]calendar.TimeSlot, error) {
	out := make(map[calendar.TimeSlotID]calendar.TimeSlot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := []any{tenant}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, start_minutes, end_minutes
		FROM time_slots
		WHERE tenant_id = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query time slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slot                        calendar.TimeSlot
			startMinutes, endMinutes    int
		)
		if err := rows.Scan(&slot.ID, &slot.TenantID, &slot.Name, &startMinutes, &endMinutes); err != nil {
			return nil, fmt.Errorf("scan time slot: %w", err)
		}
		slot.Start = calendar.TimeOfDayFromMinutes(startMinutes)
		slot.End = calendar.TimeOfDayFromMinutes(endMinutes)
		out[slot.ID] = slot
	}
	return out, rows.Err()
}

func (s *Store) Children(ctx context.Context, tenant calendar.TenantID, ids []calendar.ChildID) (map[calendar.ChildID]calendar.Child, error) {
	out := make(map[calendar.ChildID]calendar.Child, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := []any{tenant}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, birth_date
		FROM children
		WHERE tenant_id = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			child calendar.Child
			birth string
		)
		if err := rows.Scan(&child.ID, &child.TenantID, &child.Name, &birth); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		if child.BirthDate, err = decodeDate(birth); err != nil {
			return nil, err
		}
		out[child.ID] = child
	}
	return out, rows.Err()
}

func (s *Store) Groups(ctx context.Context, tenant calendar.TenantID) ([]calendar.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name FROM groups WHERE tenant_id = ? ORDER BY id
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []calendar.Group
	for rows.Next() {
		var g calendar.Group
		if err := rows.Scan(&g.ID, &g.TenantID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *Store) GetSchedule(ctx context.Context, tenant calendar.TenantID, id calendar.ScheduleID) (*calendar.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, child_id, start_date, end_date, version
		FROM schedules WHERE tenant_id = ? AND id = ?
	`, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &calendar.NotFoundError{Kind: "schedule", ID: string(id)}
	}
	schedule, err := scanSchedule(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	list := []calendar.Schedule{*schedule}
	if err := s.attachRules(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) SchedulesByChild(ctx context.Context, tenant calendar.TenantID, child calendar.ChildID) ([]calendar.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, child_id, start_date, end_date, version
		FROM schedules WHERE tenant_id = ? AND child_id = ?
		ORDER BY id
	`, tenant, child)
	if err != nil {
		return nil, fmt.Errorf("query schedules by child: %w", err)
	}
	defer rows.Close()

	var schedules []calendar.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachRules(ctx, schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *Store) CreateSchedule(ctx context.Context, schedule *calendar.Schedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (id, tenant_id, child_id, start_date, end_date, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, schedule.ID, schedule.TenantID, schedule.ChildID,
		encodeDate(schedule.StartDate), encodeDatePtr(schedule.EndDate),
		schedule.Version, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	if err := insertRules(ctx, tx, schedule.ID, schedule.Rules); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRules(ctx context.Context, tx *sql.Tx, id calendar.ScheduleID, rules []calendar.ScheduleRule) error {
	for _, rule := range rules {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_rules (schedule_id, weekday, time_slot_id, group_id)
			VALUES (?, ?, ?, ?)
		`, id, int(rule.Weekday), rule.TimeSlotID, rule.GroupID)
		if err != nil {
			return fmt.Errorf("insert schedule rule: %w", err)
		}
	}
	return nil
}

// DeleteSchedule removes a schedule; its rules go with it via the
// schedule_rules cascade.
func (s *Store) DeleteSchedule(ctx context.Context, tenant calendar.TenantID, id calendar.ScheduleID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM schedules WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return &calendar.NotFoundError{Kind: "schedule", ID: string(id)}
	}
	return nil
}

func (s *Store) UpdateScheduleRules(ctx context.Context, tenant calendar.TenantID, id calendar.ScheduleID, expectedVersion int64, rules []calendar.ScheduleRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE schedules SET version = version + 1
		WHERE tenant_id = ? AND id = ? AND version = ?
	`, tenant, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("bump schedule version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing schedule from a version mismatch.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schedules WHERE tenant_id = ? AND id = ?)`,
			tenant, id).Scan(&exists); err != nil {
			return fmt.Errorf("check schedule exists: %w", err)
		}
		if !exists {
			return &calendar.NotFoundError{Kind: "schedule", ID: string(id)}
		}
		return calendar.ErrConcurrency
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_rules WHERE schedule_id = ?`, id); err != nil {
		return fmt.Errorf("clear schedule rules: %w", err)
	}
	if err := insertRules(ctx, tx, id, rules); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// ABSENCES
// =============================================================================

func (s *Store) GetAbsence(ctx context.Context, tenant calendar.TenantID, id calendar.AbsenceID) (*calendar.Absence, error) {
	var (
		absence    calendar.Absence
		start, end string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, child_id, start_date, end_date, COALESCE(reason, '')
		FROM absences WHERE tenant_id = ? AND id = ?
	`, tenant, id).Scan(&absence.ID, &absence.TenantID, &absence.ChildID, &start, &end, &absence.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "absence", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("query absence: %w", err)
	}
	if absence.StartDate, err = decodeDate(start); err != nil {
		return nil, err
	}
	if absence.EndDate, err = decodeDate(end); err != nil {
		return nil, err
	}
	return &absence, nil
}

func (s *Store) CreateAbsence(ctx context.Context, a *calendar.Absence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO absences (id, tenant_id, child_id, start_date, end_date, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.TenantID, a.ChildID, encodeDate(a.StartDate), encodeDate(a.EndDate), a.Reason)
	if err != nil {
		return fmt.Errorf("insert absence: %w", err)
	}
	return nil
}

func (s *Store) DeleteAbsence(ctx context.Context, tenant calendar.TenantID, id calendar.AbsenceID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM absences WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return fmt.Errorf("delete absence: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &calendar.NotFoundError{Kind: "absence", ID: string(id)}
	}
	return nil
}

// =============================================================================
// CLOSURES
// =============================================================================

func (s *Store) GetClosure(ctx context.Context, tenant calendar.TenantID, id calendar.ClosureID) (*calendar.ClosurePeriod, error) {
	var (
		closure    calendar.ClosurePeriod
		start, end string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, start_date, end_date, reason
		FROM closure_periods WHERE tenant_id = ? AND id = ?
	`, tenant, id).Scan(&closure.ID, &closure.TenantID, &start, &end, &closure.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "closure", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("query closure: %w", err)
	}
	if closure.StartDate, err = decodeDate(start); err != nil {
		return nil, err
	}
	if closure.EndDate, err = decodeDate(end); err != nil {
		return nil, err
	}
	return &closure, nil
}

func (s *Store) CreateClosure(ctx context.Context, c *calendar.ClosurePeriod) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closure_periods (id, tenant_id, start_date, end_date, reason)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, encodeDate(c.StartDate), encodeDate(c.EndDate), c.Reason)
	if err != nil {
		return fmt.Errorf("insert closure: %w", err)
	}
	return nil
}

func (s *Store) DeleteClosure(ctx context.Context, tenant calendar.TenantID, id calendar.ClosureID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM closure_periods WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return fmt.Errorf("delete closure: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &calendar.NotFoundError{Kind: "closure", ID: string(id)}
	}
	return nil
}

// =============================================================================
// END MARKS
// =============================================================================

func (s *Store) EndMarksByChild(ctx context.Context, tenant calendar.TenantID, child calendar.ChildID) ([]calendar.EndMark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, child_id, end_date, COALESCE(reason, ''), system_generated
		FROM end_marks WHERE tenant_id = ? AND child_id = ?
		ORDER BY end_date
	`, tenant, child)
	if err != nil {
		return nil, fmt.Errorf("query end marks: %w", err)
	}
	defer rows.Close()

	var marks []calendar.EndMark
	for rows.Next() {
		var (
			mark calendar.EndMark
			end  string
		)
		if err := rows.Scan(&mark.ID, &mark.TenantID, &mark.ChildID, &end, &mark.Reason, &mark.SystemGenerated); err != nil {
			return nil, fmt.Errorf("scan end mark: %w", err)
		}
		if mark.EndDate, err = decodeDate(end); err != nil {
			return nil, err
		}
		marks = append(marks, mark)
	}
	return marks, rows.Err()
}

func (s *Store) CreateEndMark(ctx context.Context, m *calendar.EndMark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO end_marks (id, tenant_id, child_id, end_date, reason, system_generated)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.TenantID, m.ChildID, encodeDate(m.EndDate), m.Reason, m.SystemGenerated)
	if isUniqueViolation(err) {
		return &calendar.ConflictError{
			Message: "end mark already exists for " + m.EndDate.String(),
		}
	}
	if err != nil {
		return fmt.Errorf("insert end mark: %w", err)
	}
	return nil
}

func (s *Store) DeleteEndMark(ctx context.Context, tenant calendar.TenantID, id calendar.EndMarkID) (*calendar.EndMark, error) {
	var (
		mark calendar.EndMark
		end  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, child_id, end_date, COALESCE(reason, ''), system_generated
		FROM end_marks WHERE tenant_id = ? AND id = ?
	`, tenant, id).Scan(&mark.ID, &mark.TenantID, &mark.ChildID, &end, &mark.Reason, &mark.SystemGenerated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "end mark", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("query end mark: %w", err)
	}
	if mark.EndDate, err = decodeDate(end); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM end_marks WHERE tenant_id = ? AND id = ?`, tenant, id); err != nil {
		return nil, fmt.Errorf("delete end mark: %w", err)
	}
	return &mark, nil
}

// =============================================================================
// TIME SLOTS
// =============================================================================

func (s *Store) CreateTimeSlot(ctx context.Context, t *calendar.TimeSlot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_slots (id, tenant_id, name, start_minutes, end_minutes)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.TenantID, t.Name, t.Start.Minutes(), t.End.Minutes())
	if err != nil {
		return fmt.Errorf("insert time slot: %w", err)
	}
	return nil
}

func (s *Store) DeleteTimeSlot(ctx context.Context, tenant calendar.TenantID, id calendar.TimeSlotID) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schedule_rules WHERE time_slot_id = ?)`, id).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("check slot references: %w", err)
	}
	if referenced {
		return &calendar.ConflictError{
			Message: "time slot " + string(id) + " is referenced by schedule rules",
		}
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM time_slots WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &calendar.NotFoundError{Kind: "time slot", ID: string(id)}
	}
	return nil
}

// =============================================================================
// CACHE STORE
// =============================================================================

func (s *Store) Rows(ctx context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) ([]calendar.CalendarRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, group_id, date, COALESCE(child_id, ''), status,
		       COALESCE(slot_name, ''), COALESCE(start_minutes, 0), COALESCE(end_minutes, 0),
		       COALESCE(birthday, ''), COALESCE(age, 0), COALESCE(reason, '')
		FROM calendar_rows
		WHERE tenant_id = ? AND group_id = ? AND date >= ? AND date <= ?
		ORDER BY date, child_id
	`, tenant, group, encodeDate(r.Start), encodeDate(r.End))
	if err != nil {
		return nil, fmt.Errorf("query calendar rows: %w", err)
	}
	defer rows.Close()

	var out []calendar.CalendarRow
	for rows.Next() {
		var (
			row                      calendar.CalendarRow
			date, birthday           string
			startMinutes, endMinutes int
		)
		if err := rows.Scan(&row.ID, &row.TenantID, &row.GroupID, &date, &row.ChildID, &row.Status,
			&row.SlotName, &startMinutes, &endMinutes, &birthday, &row.Age, &row.Reason); err != nil {
			return nil, fmt.Errorf("scan calendar row: %w", err)
		}
		if row.Date, err = decodeDate(date); err != nil {
			return nil, err
		}
		if birthday != "" {
			if row.Birthday, err = decodeDate(birthday); err != nil {
				return nil, err
			}
		}
		row.StartTime = calendar.TimeOfDayFromMinutes(startMinutes)
		row.EndTime = calendar.TimeOfDayFromMinutes(endMinutes)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) FreshDates(ctx context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) (map[calendar.Date]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date FROM calendar_days
		WHERE tenant_id = ? AND group_id = ? AND date >= ? AND date <= ?
	`, tenant, group, encodeDate(r.Start), encodeDate(r.End))
	if err != nil {
		return nil, fmt.Errorf("query cache freshness: %w", err)
	}
	defer rows.Close()

	out := make(map[calendar.Date]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan freshness mark: %w", err)
		}
		d, err := decodeDate(date)
		if err != nil {
			return nil, err
		}
		out[d] = true
	}
	return out, rows.Err()
}

func (s *Store) ReplaceDates(ctx context.Context, tenant calendar.TenantID, group calendar.GroupID, dates []calendar.Date, rows []calendar.CalendarRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, day := range dates {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM calendar_rows WHERE tenant_id = ? AND group_id = ? AND date = ?
		`, tenant, group, encodeDate(day)); err != nil {
			return fmt.Errorf("clear calendar rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO calendar_days (tenant_id, group_id, date) VALUES (?, ?, ?)
		`, tenant, group, encodeDate(day)); err != nil {
			return fmt.Errorf("mark date fresh: %w", err)
		}
	}

	for _, row := range rows {
		var childID any
		if row.ChildID != "" {
			childID = row.ChildID
		}
		var birthday any
		if !row.Birthday.IsZero() {
			birthday = encodeDate(row.Birthday)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO calendar_rows
				(id, tenant_id, group_id, date, child_id, status, slot_name,
				 start_minutes, end_minutes, birthday, age, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, row.ID, row.TenantID, row.GroupID, encodeDate(row.Date), childID, row.Status,
			row.SlotName, row.StartTime.Minutes(), row.EndTime.Minutes(),
			birthday, row.Age, row.Reason); err != nil {
			return fmt.Errorf("insert calendar row: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteRange(ctx context.Context, tenant calendar.TenantID, group calendar.GroupID, r calendar.DateRange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rowQuery := `DELETE FROM calendar_rows WHERE tenant_id = ? AND group_id = ? AND date >= ?`
	dayQuery := `DELETE FROM calendar_days WHERE tenant_id = ? AND group_id = ? AND date >= ?`
	args := []any{tenant, group, encodeDate(r.Start)}
	if !r.End.IsZero() {
		rowQuery += ` AND date <= ?`
		dayQuery += ` AND date <= ?`
		args = append(args, encodeDate(r.End))
	}

	if _, err := tx.ExecContext(ctx, rowQuery, args...); err != nil {
		return fmt.Errorf("delete calendar rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, dayQuery, args...); err != nil {
		return fmt.Errorf("delete freshness marks: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// DIRECTORY - Children, groups and tenants
// =============================================================================

// PutChild upserts a directory record. Person CRUD lives outside this
// engine; the seed exists for deployments and tests.
func (s *Store) PutChild(ctx context.Context, c calendar.Child) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO children (id, tenant_id, name, birth_date)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.TenantID, c.Name, encodeDate(c.BirthDate))
	if err != nil {
		return fmt.Errorf("upsert child: %w", err)
	}
	return nil
}

func (s *Store) PutGroup(ctx context.Context, g calendar.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO groups (id, tenant_id, name) VALUES (?, ?, ?)
	`, g.ID, g.TenantID, g.Name)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, tenant calendar.TenantID) ([]calendar.Child, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, birth_date FROM children
		WHERE tenant_id = ? ORDER BY id
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var children []calendar.Child
	for rows.Next() {
		var (
			child calendar.Child
			birth string
		)
		if err := rows.Scan(&child.ID, &child.TenantID, &child.Name, &birth); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		if child.BirthDate, err = decodeDate(birth); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

// ListTenants returns every tenant that has at least one child or group.
func (s *Store) ListTenants(ctx context.Context) ([]calendar.TenantID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id FROM children
		UNION
		SELECT tenant_id FROM groups
		ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []calendar.TenantID
	for rows.Next() {
		var t calendar.TenantID
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// =============================================================================
// WORKFLOW STORES
// =============================================================================

func (s *Store) ConfigsForAge(ctx context.Context, tenant calendar.TenantID, age int) ([]workflow.RuleConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, age, action FROM workflow_configs
		WHERE tenant_id = ? AND age = ?
		ORDER BY id
	`, tenant, age)
	if err != nil {
		return nil, fmt.Errorf("query workflow configs: %w", err)
	}
	defer rows.Close()

	var configs []workflow.RuleConfig
	for rows.Next() {
		var config workflow.RuleConfig
		if err := rows.Scan(&config.ID, &config.TenantID, &config.Age, &config.Action); err != nil {
			return nil, fmt.Errorf("scan workflow config: %w", err)
		}
		configs = append(configs, config)
	}
	return configs, rows.Err()
}

// PutConfig upserts one workflow rule configuration.
func (s *Store) PutConfig(ctx context.Context, config workflow.RuleConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO workflow_configs (id, tenant_id, age, action)
		VALUES (?, ?, ?, ?)
	`, config.ID, config.TenantID, config.Age, config.Action)
	if err != nil {
		return fmt.Errorf("upsert workflow config: %w", err)
	}
	return nil
}

func (s *Store) LastScan(ctx context.Context, tenant calendar.TenantID) (calendar.Date, error) {
	var date string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_scan_date FROM scan_checkpoints WHERE tenant_id = ?`, tenant).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Date{}, nil
	}
	if err != nil {
		return calendar.Date{}, fmt.Errorf("query scan checkpoint: %w", err)
	}
	return decodeDate(date)
}

func (s *Store) SetLastScan(ctx context.Context, tenant calendar.TenantID, day calendar.Date) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scan_checkpoints (tenant_id, last_scan_date) VALUES (?, ?)
	`, tenant, encodeDate(day))
	if err != nil {
		return fmt.Errorf("upsert scan checkpoint: %w", err)
	}
	return nil
}
