package dread

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Dread level values assigned by the ranking engine.
const (
	LevelNone   = 0
	LevelHigh   = 1
	LevelSevere = 2
)

// AreaDeathCount is one area's accumulated death counter.
type AreaDeathCount struct {
	AreaID      string
	DeathCount  float64
	LastUpdated time.Time
}

// DreadLevel is one area's current dread level.
type DreadLevel struct {
	AreaID      string
	Level       int
	LastUpdated time.Time
}

// CounterUpdate is one counter rewrite produced by a decay pass.
type CounterUpdate struct {
	AreaID     string
	DeathCount float64
}

// LevelAssignment is one non-zero level produced by a ranking pass.
type LevelAssignment struct {
	AreaID string
	Level  int
}

// CounterStore is the durable death-counter collaborator the engine reads
// from and writes back to. ApplyDecay must apply all updates and deletes in
// a single transaction, or none of them.
type CounterStore interface {
	ListDeathCounts(ctx context.Context) ([]AreaDeathCount, error)
	ApplyDecay(ctx context.Context, updates []CounterUpdate, deletes []string) error
}

// RankStore is the durable dread-level collaborator. ApplyRanking must, in a
// single transaction, reset every existing level to zero and then upsert the
// given assignments.
type RankStore interface {
	ApplyRanking(ctx context.Context, assignments []LevelAssignment) error
}

// Engine derives dread state from the death counters. It holds no
// authoritative state between passes: every pass re-reads the stores, fully
// recomputes, and writes back, so a pass is idempotent for a fixed snapshot.
type Engine struct {
	counters CounterStore
	ranks    RankStore

	decayFactor float64
	minDeaths   float64

	now func() time.Time // injectable for deterministic tests
}

// NewEngine creates an Engine over the given stores.
// decayFactor must be in (0, 1); minDeaths is the eligibility floor for any
// non-zero dread level.
func NewEngine(counters CounterStore, ranks RankStore, decayFactor, minDeaths float64) *Engine {
	return &Engine{
		counters:    counters,
		ranks:       ranks,
		decayFactor: decayFactor,
		minDeaths:   minDeaths,
		now:         time.Now,
	}
}

// DecayAll shrinks every death counter by the decay factor, rounding to the
// nearest integer value, and deletes counters that fall below 1, so an area
// with no recent deaths eventually heals out of the system entirely.
//
// Note the rounding floor: a counter at exactly 1 rounds back to 1
// (round(0.95) = 1), so it never decays to zero on its own. Kept as-is;
// changing it is a product decision, not a cleanup.
func (e *Engine) DecayAll(ctx context.Context) error {
	counts, err := e.counters.ListDeathCounts(ctx)
	if err != nil {
		return fmt.Errorf("decay: list death counts: %w", err)
	}
	if len(counts) == 0 {
		slog.Debug("decay: no death counts to decay")
		return nil
	}

	var updates []CounterUpdate
	var deletes []string
	for _, c := range counts {
		decayed := math.Round(c.DeathCount * e.decayFactor)
		if decayed < 1 {
			deletes = append(deletes, c.AreaID)
			continue
		}
		updates = append(updates, CounterUpdate{AreaID: c.AreaID, DeathCount: decayed})
	}

	if err := e.counters.ApplyDecay(ctx, updates, deletes); err != nil {
		return fmt.Errorf("decay: apply: %w", err)
	}

	slog.Info("decay: death counts decayed",
		"updated", len(updates),
		"removed", len(deletes),
	)
	return nil
}

// RecomputeLevels recomputes all dread levels from the current counter
// snapshot: the area with the most deaths gets level 2, the runner-up gets
// level 1, everyone else is reset to 0. Areas below the eligibility floor
// receive no level. Ties break on area_id ascending so the outcome never
// depends on storage iteration order.
func (e *Engine) RecomputeLevels(ctx context.Context) error {
	counts, err := e.counters.ListDeathCounts(ctx)
	if err != nil {
		return fmt.Errorf("ranking: list death counts: %w", err)
	}

	eligible := make([]AreaDeathCount, 0, len(counts))
	for _, c := range counts {
		if c.DeathCount >= e.minDeaths {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 {
		if err := e.ranks.ApplyRanking(ctx, nil); err != nil {
			return fmt.Errorf("ranking: reset levels: %w", err)
		}
		slog.Info("ranking: no eligible areas, all dread levels reset")
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].DeathCount != eligible[j].DeathCount {
			return eligible[i].DeathCount > eligible[j].DeathCount
		}
		return eligible[i].AreaID < eligible[j].AreaID
	})

	assignments := []LevelAssignment{
		{AreaID: eligible[0].AreaID, Level: LevelSevere},
	}
	if len(eligible) > 1 {
		assignments = append(assignments, LevelAssignment{
			AreaID: eligible[1].AreaID,
			Level:  LevelHigh,
		})
	}

	if err := e.ranks.ApplyRanking(ctx, assignments); err != nil {
		return fmt.Errorf("ranking: apply: %w", err)
	}

	attrs := []any{
		"severe", eligible[0].AreaID,
		"severe_deaths", eligible[0].DeathCount,
	}
	if len(eligible) > 1 {
		attrs = append(attrs, "high", eligible[1].AreaID, "high_deaths", eligible[1].DeathCount)
	}
	slog.Info("ranking: dread levels updated", attrs...)
	return nil
}
