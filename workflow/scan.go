/*
scan.go - Daily birthday scan

PURPOSE:
  One always-running background loop per process. It sleeps until the
  configured wall-clock wake time (02:00 by default), then walks every
  tenant's children sequentially and publishes one ChildTurnedAgeEvent for
  each child whose birthday is observed today. Feb-29 birthdays follow the
  calendar package's observed-on-Feb-28 policy.

EXACTLY ONCE PER DAY:
  A persisted per-tenant "last scanned date" checkpoint gates publishing:
  a tenant already scanned today is skipped, so process restarts (or a
  manually triggered re-run) do not double-publish. Horizontal scaling
  still requires single-leader assignment for the scanner; the checkpoint
  protects a single process, per the engine's consistency scope.

FAILURE MODEL:
  A failed dispatch is logged and skipped at per-child granularity; it
  never aborts the scan of the remaining children, and it does not block
  the checkpoint (the failed child converges on the next manual re-run
  because every rule is idempotent per event).

CANCELLATION:
  Cooperative, at the delay boundary between daily wakeups. Dispatch is
  sub-second per child; mid-dispatch cancellation is not supported.

SEE ALSO:
  - engine.go: Publish
  - calendar/date.go: ObservedBirthday, AgeOn
*/
package workflow

import (
	"context"
	"time"

	"github.com/warp/attendance-engine/calendar"
	"go.uber.org/zap"
)

// =============================================================================
// BIRTHDAY SCANNER
// =============================================================================

type BirthdayScanner struct {
	Tenants     TenantDirectory
	Children    ChildDirectory
	Checkpoints CheckpointStore
	Engine      *Engine
	Logger      *zap.Logger

	// WakeHour is the local wall-clock hour the daily scan runs at.
	WakeHour int

	// Now is the clock; tests override it.
	Now func() time.Time
}

func NewBirthdayScanner(tenants TenantDirectory, children ChildDirectory, checkpoints CheckpointStore, engine *Engine, logger *zap.Logger) *BirthdayScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BirthdayScanner{
		Tenants:     tenants,
		Children:    children,
		Checkpoints: checkpoints,
		Engine:      engine,
		Logger:      logger,
		WakeHour:    2,
		Now:         time.Now,
	}
}

// Run blocks until the context is canceled, scanning once per day at
// WakeHour. The first scan happens at the next wake time, not at startup;
// the checkpoint makes an immediate ScanAll safe if a caller wants one.
func (s *BirthdayScanner) Run(ctx context.Context) {
	s.Logger.Info("birthday scanner started", zap.Int("wakeHour", s.WakeHour))
	for {
		timer := time.NewTimer(s.untilNextWake())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Logger.Info("birthday scanner stopped")
			return
		case <-timer.C:
			s.ScanAll(ctx)
		}
	}
}

// untilNextWake returns the duration until the next WakeHour boundary.
func (s *BirthdayScanner) untilNextWake() time.Duration {
	now := s.Now()
	wake := time.Date(now.Year(), now.Month(), now.Day(), s.WakeHour, 0, 0, 0, now.Location())
	if !wake.After(now) {
		wake = wake.AddDate(0, 0, 1)
	}
	return wake.Sub(now)
}

// ScanAll runs one scan pass over every tenant. Tenants already scanned
// today are skipped via the checkpoint store.
func (s *BirthdayScanner) ScanAll(ctx context.Context) {
	tenants, err := s.Tenants.ListTenants(ctx)
	if err != nil {
		s.Logger.Error("list tenants failed", zap.Error(err))
		return
	}
	for _, tenant := range tenants {
		if err := s.ScanTenant(ctx, tenant); err != nil {
			s.Logger.Error("tenant scan failed",
				zap.String("tenant", string(tenant)), zap.Error(err))
		}
	}
}

// ScanTenant scans one tenant's children for today's observed birthdays.
// Children are walked sequentially; a failed dispatch is logged and
// skipped, never fatal to the pass. The checkpoint advances only after
// the full pass.
func (s *BirthdayScanner) ScanTenant(ctx context.Context, tenant calendar.TenantID) error {
	today := calendar.DateOf(s.Now())

	last, err := s.Checkpoints.LastScan(ctx, tenant)
	if err != nil {
		return err
	}
	if last.Equal(today) {
		s.Logger.Debug("tenant already scanned today", zap.String("tenant", string(tenant)))
		return nil
	}

	children, err := s.Children.ListChildren(ctx, tenant)
	if err != nil {
		return err
	}

	published := 0
	for _, child := range children {
		if !calendar.ObservedBirthday(child.BirthDate, today.Year()).Equal(today) {
			continue
		}
		event := ChildTurnedAgeEvent{
			TenantID:     tenant,
			ChildID:      child.ID,
			Age:          calendar.AgeOn(child.BirthDate, today),
			BirthdayDate: today,
		}
		if err := s.Engine.Publish(calendar.WithTenant(ctx, tenant), event); err != nil {
			s.Logger.Error("birthday dispatch failed",
				zap.String("tenant", string(tenant)),
				zap.String("child", string(child.ID)),
				zap.Int("age", event.Age),
				zap.Error(err))
			continue
		}
		published++
	}

	if err := s.Checkpoints.SetLastScan(ctx, tenant, today); err != nil {
		return err
	}
	s.Logger.Info("tenant scan completed",
		zap.String("tenant", string(tenant)),
		zap.Int("children", len(children)),
		zap.Int("published", published))
	return nil
}
