package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/calendar/store"
	"github.com/warp/attendance-engine/workflow"
)

const scanTenant = calendar.TenantID("tenant-a")

type noopTimeline struct{}

func (noopTimeline) Recalculate(context.Context, calendar.TenantID, calendar.ChildID) error {
	return nil
}

// eventCapture records every published age event.
type eventCapture struct {
	events []workflow.ChildTurnedAgeEvent
}

func (c *eventCapture) Action() workflow.ActionType { return "capture" }

func (c *eventCapture) Evaluate(_ context.Context, _ workflow.EvaluationContext, event workflow.ChildTurnedAgeEvent) error {
	c.events = append(c.events, event)
	return nil
}

// scanFixture wires a memory-backed scanner whose only config adds the
// automatic end mark at age four.
func scanFixture(t *testing.T, birthDate calendar.Date) (*store.Memory, *workflow.BirthdayScanner) {
	t.Helper()

	m := store.NewMemory()
	m.PutChild(calendar.Child{
		ID:        "child-emma",
		TenantID:  scanTenant,
		Name:      "Emma",
		BirthDate: birthDate,
	})

	service := calendar.NewService(m, calendar.NewInvalidator(m, m, nil), noopTimeline{}, nil)

	configs := workflow.NewMemoryConfigStore(workflow.RuleConfig{
		ID:       "cfg-endmark",
		TenantID: scanTenant,
		Age:      4,
		Action:   workflow.ActionAddEndMark,
	})
	engine := workflow.NewEngine(configs, nil)
	engine.Register(workflow.NewAddEndMarkRule(service, nil))

	scanner := workflow.NewBirthdayScanner(
		workflow.StaticTenants{scanTenant}, m, workflow.NewMemoryCheckpointStore(), engine, nil)
	return m, scanner
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 3, 0, 0, 0, time.UTC)
	}
}

func emmaMarks(t *testing.T, m *store.Memory) []calendar.EndMark {
	t.Helper()
	marks, err := m.EndMarksByChild(context.Background(), scanTenant, "child-emma")
	require.NoError(t, err)
	return marks
}

// =============================================================================
// FOURTH BIRTHDAY
// =============================================================================

func TestScan_FourthBirthdayAddsEndMark(t *testing.T) {
	// GIVEN: Emma born 2021-08-15 and a scan running on 2025-08-15
	// WHEN: The tenant is scanned
	// THEN: Exactly one system-generated end mark dated on the birthday

	m, scanner := scanFixture(t, calendar.NewDate(2021, time.August, 15))
	scanner.Now = fixedClock(2025, time.August, 15)

	scanner.ScanAll(context.Background())

	marks := emmaMarks(t, m)
	require.Len(t, marks, 1)
	assert.Equal(t, "2025-08-15", marks[0].EndDate.String())
	assert.Equal(t, "Auto: Child turned 4", marks[0].Reason)
	assert.True(t, marks[0].SystemGenerated)
}

func TestScan_NoEventOffBirthday(t *testing.T) {
	m, scanner := scanFixture(t, calendar.NewDate(2021, time.August, 15))
	scanner.Now = fixedClock(2025, time.August, 14)

	scanner.ScanAll(context.Background())
	assert.Empty(t, emmaMarks(t, m))
}

// =============================================================================
// CHECKPOINT AND IDEMPOTENCY
// =============================================================================

func TestScan_SameDayRerunIsSkippedByCheckpoint(t *testing.T) {
	m, scanner := scanFixture(t, calendar.NewDate(2021, time.August, 15))
	scanner.Now = fixedClock(2025, time.August, 15)

	scanner.ScanAll(context.Background())
	scanner.ScanAll(context.Background())

	assert.Len(t, emmaMarks(t, m), 1, "a restarted process must not double-publish")
}

func TestScan_RerunAfterCheckpointResetStaysIdempotent(t *testing.T) {
	// Even when the checkpoint gate is forced open again, the end mark
	// command itself is an idempotent no-op for an existing (child, date).
	m, scanner := scanFixture(t, calendar.NewDate(2021, time.August, 15))
	scanner.Now = fixedClock(2025, time.August, 15)

	scanner.ScanAll(context.Background())
	require.NoError(t, scanner.Checkpoints.SetLastScan(context.Background(), scanTenant,
		calendar.NewDate(2025, time.August, 14)))
	scanner.ScanAll(context.Background())

	assert.Len(t, emmaMarks(t, m), 1)
}

// =============================================================================
// LEAP-DAY BIRTHDAYS
// =============================================================================

func TestScan_LeapDayBirthdayObservedOnFeb28(t *testing.T) {
	m := store.NewMemory()
	m.PutChild(calendar.Child{
		ID:        "child-emma",
		TenantID:  scanTenant,
		Name:      "Emma",
		BirthDate: calendar.NewDate(2020, time.February, 29),
	})

	capture := &eventCapture{}
	configs := workflow.NewMemoryConfigStore(workflow.RuleConfig{
		ID: "cfg-capture", TenantID: scanTenant, Age: 4, Action: "capture"})
	configs.Add(workflow.RuleConfig{
		ID: "cfg-capture-5", TenantID: scanTenant, Age: 5, Action: "capture"})
	engine := workflow.NewEngine(configs, nil)
	engine.Register(capture)

	scanner := workflow.NewBirthdayScanner(
		workflow.StaticTenants{scanTenant}, m, workflow.NewMemoryCheckpointStore(), engine, nil)

	// Leap year: the real Feb 29 counts.
	scanner.Now = fixedClock(2024, time.February, 29)
	scanner.ScanAll(context.Background())
	require.Len(t, capture.events, 1)
	assert.Equal(t, 4, capture.events[0].Age)
	assert.Equal(t, "2024-02-29", capture.events[0].BirthdayDate.String())

	// Non-leap year: observed on Feb 28.
	scanner.Now = fixedClock(2025, time.February, 28)
	scanner.ScanAll(context.Background())
	require.Len(t, capture.events, 2)
	assert.Equal(t, 5, capture.events[1].Age)
	assert.Equal(t, "2025-02-28", capture.events[1].BirthdayDate.String())
}

// =============================================================================
// ERROR ISOLATION
// =============================================================================

func TestScan_FailedChildDoesNotBlockCheckpoint(t *testing.T) {
	// Two children share a birthday; dispatch fails for the first. The
	// second child must still be processed and the checkpoint advanced.
	m := store.NewMemory()
	m.PutChild(calendar.Child{
		ID: "child-alba", TenantID: scanTenant, Name: "Alba",
		BirthDate: calendar.NewDate(2021, time.August, 15)})
	m.PutChild(calendar.Child{
		ID: "child-emma", TenantID: scanTenant, Name: "Emma",
		BirthDate: calendar.NewDate(2021, time.August, 15)})

	capture := &eventCapture{}
	configs := workflow.NewMemoryConfigStore(
		workflow.RuleConfig{ID: "cfg-fail", TenantID: scanTenant, Age: 4, Action: "fail"},
		workflow.RuleConfig{ID: "cfg-capture", TenantID: scanTenant, Age: 4, Action: "capture"},
	)
	engine := workflow.NewEngine(configs, nil)
	engine.Register(capture)
	engine.Register(&failOnceRule{failFor: "child-alba"})

	checkpoints := workflow.NewMemoryCheckpointStore()
	scanner := workflow.NewBirthdayScanner(
		workflow.StaticTenants{scanTenant}, m, checkpoints, engine, nil)
	scanner.Now = fixedClock(2025, time.August, 15)

	scanner.ScanAll(context.Background())

	require.Len(t, capture.events, 2, "the failing child's remaining configs and siblings still run")
	last, err := checkpoints.LastScan(context.Background(), scanTenant)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-15", last.String())
}

type failOnceRule struct {
	failFor calendar.ChildID
}

func (r *failOnceRule) Action() workflow.ActionType { return "fail" }

func (r *failOnceRule) Evaluate(_ context.Context, _ workflow.EvaluationContext, event workflow.ChildTurnedAgeEvent) error {
	if event.ChildID == r.failFor {
		return assert.AnError
	}
	return nil
}
