package attendance

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler fires the engine's ForceCloseAll once per day at the
// configured cutoff time.
//
// Each wait target is recomputed from the wall clock, never by
// accumulating sleep durations, so the trigger cannot drift. Because
// the sweep is idempotent, the startup catch-up and any retried trigger
// are always safe.
type Scheduler struct {
	log    *slog.Logger
	engine *Engine
	cfg    Config

	// onClosed receives the sessions closed by a sweep, for
	// notification and metrics fan-out. May be nil.
	onClosed func([]Session)

	// now is swapped in tests.
	now func() time.Time
}

// NewScheduler constructs a Scheduler for the given engine and policy.
func NewScheduler(log *slog.Logger, engine *Engine, cfg Config, onClosed func([]Session)) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		log:      log,
		engine:   engine,
		cfg:      cfg,
		onClosed: onClosed,
		now:      time.Now,
	}
}

// NextCutoff returns the next occurrence of the configured time of day:
// today if still in the future, otherwise tomorrow.
func (s *Scheduler) NextCutoff(now time.Time) time.Time {
	c := s.cfg.CutoffTime.On(now.In(s.cfg.Location), s.cfg.Location)
	if !c.After(now) {
		c = c.AddDate(0, 0, 1)
	}
	return c
}

// PreviousCutoff returns the most recent occurrence of the configured
// time of day at or before now.
func (s *Scheduler) PreviousCutoff(now time.Time) time.Time {
	c := s.cfg.CutoffTime.On(now.In(s.cfg.Location), s.cfg.Location)
	if c.After(now) {
		c = c.AddDate(0, 0, -1)
	}
	return c
}

// Run blocks until ctx is cancelled, sweeping at each cutoff.
//
// On startup it sweeps the most recent passed cutoff once, so a trigger
// missed while the process was down (restart after the cutoff) is never
// silently skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.CatchUp(ctx)

	for {
		now := s.now()
		next := s.NextCutoff(now)
		timer := time.NewTimer(next.Sub(now))

		s.log.Info("scheduler.wait", "next_cutoff", next)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler.stop")
			return nil
		case <-timer.C:
			s.sweep(ctx, next)
		}
	}
}

// CatchUp sweeps the most recent passed cutoff. It is invoked by Run on
// startup and is safe to call repeatedly.
func (s *Scheduler) CatchUp(ctx context.Context) {
	prev := s.PreviousCutoff(s.now())
	s.log.Info("scheduler.catchup", "cutoff", prev)
	s.sweep(ctx, prev)
}

func (s *Scheduler) sweep(ctx context.Context, cutoff time.Time) {
	closed, err := s.engine.ForceCloseAll(ctx, cutoff, s.cfg.DefaultAutoCloseDuration)
	if err != nil {
		// Persist failures are recoverable: the transitions are kept in
		// memory and reconciled from the store on the next restart.
		s.log.Error("scheduler.sweep.persist.fail", "cutoff", cutoff, "err", err)
	}

	s.log.Info("scheduler.sweep", "cutoff", cutoff, "closed", len(closed))

	if len(closed) > 0 && s.onClosed != nil {
		s.onClosed(closed)
	}
}
