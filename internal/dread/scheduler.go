package dread

import (
	"context"
	"log/slog"
	"time"
)

// Deriver is the pair of derivation passes the scheduler drives.
// *Engine is the production implementation.
type Deriver interface {
	DecayAll(ctx context.Context) error
	RecomputeLevels(ctx context.Context) error
}

// Scheduler drives the two derivation timers from a single goroutine, so at
// most one pass executes at any instant. Decay has priority: when the decay
// interval elapses, decay runs and then ranking is chained immediately, and
// both timers restart: ranking counts as freshly done even though its own
// timer did not fire.
type Scheduler struct {
	deriver Deriver

	decayInterval   time.Duration
	rankingInterval time.Duration
	pollInterval    time.Duration

	lastDecay   time.Time
	lastRanking time.Time

	now func() time.Time // injectable for deterministic tests
}

// NewScheduler creates a Scheduler. The poll interval bounds how late either
// timer can fire; it should be well below the ranking interval.
func NewScheduler(d Deriver, decayInterval, rankingInterval, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		deriver:         d,
		decayInterval:   decayInterval,
		rankingInterval: rankingInterval,
		pollInterval:    pollInterval,
		now:             time.Now,
	}
}

// Run executes one best-effort decay+ranking pass immediately, then polls
// both timers until ctx is cancelled. A failed pass is logged and retried on
// its next interval; the loop itself never exits on a derivation error.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler: starting",
		"decay_interval", s.decayInterval,
		"ranking_interval", s.rankingInterval,
		"poll_interval", s.pollInterval,
	)

	// Initial run so a fresh process serves derived state right away.
	// Failures here must never block startup.
	if err := s.deriver.DecayAll(ctx); err != nil {
		slog.Error("scheduler: initial decay failed", "err", err)
	}
	if err := s.deriver.RecomputeLevels(ctx); err != nil {
		slog.Error("scheduler: initial ranking failed", "err", err)
	}

	start := s.now()
	s.lastDecay = start
	s.lastRanking = start

	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopping")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

// tick runs at most one due pass chain. Timers advance only after the whole
// chain succeeds, so a failed pass is retried on the next poll rather than
// silently skipped until the following interval.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	switch {
	case now.Sub(s.lastDecay) >= s.decayInterval:
		slog.Info("scheduler: decay interval elapsed, running decay then ranking")
		if err := s.deriver.DecayAll(ctx); err != nil {
			slog.Error("scheduler: decay pass failed", "err", err)
			return
		}
		if err := s.deriver.RecomputeLevels(ctx); err != nil {
			slog.Error("scheduler: ranking pass after decay failed", "err", err)
			return
		}
		done := s.now()
		s.lastDecay = done
		s.lastRanking = done

	case now.Sub(s.lastRanking) >= s.rankingInterval:
		if err := s.deriver.RecomputeLevels(ctx); err != nil {
			slog.Error("scheduler: ranking pass failed", "err", err)
			return
		}
		s.lastRanking = s.now()
	}
}
