package services

import (
	"errors"
	"time"

	"calorie-challenge-engine/store"

	"github.com/jonboulle/clockwork"
)

// Options tune an Engine. Zero values pick the defaults.
type Options struct {
	Clock               clockwork.Clock
	Defaults            Defaults
	MaxAttempts         int
	LeaderboardCacheTTL time.Duration
}

// Engine bundles the challenge services around one store, one clock and one
// set of per-participation locks.
type Engine struct {
	Store       store.Store
	Clock       clockwork.Clock
	Catalog     *CatalogService
	Enrollment  *EnrollmentService
	Adherence   *AdherenceService
	Cheats      *CheatQuotaService
	Streaks     *StreakService
	Leaderboard *LeaderboardService
	Badges      *BadgeService
	Meals       *MealService
}

func NewEngine(s store.Store, opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Defaults == (Defaults{}) {
		opts.Defaults = DefaultRules
	}

	runner := newTxRunner(s, opts.Clock, opts.MaxAttempts)
	catalog := NewCatalogService(s)
	badges := NewBadgeService(s)
	streaks := NewStreakService(runner, badges)

	leaderboard, err := NewLeaderboardService(s, catalog, opts.LeaderboardCacheTTL)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Store:       s,
		Clock:       opts.Clock,
		Catalog:     catalog,
		Enrollment:  NewEnrollmentService(runner, catalog, streaks, opts.Defaults),
		Adherence:   NewAdherenceService(runner, catalog, streaks),
		Cheats:      NewCheatQuotaService(runner, streaks),
		Streaks:     streaks,
		Leaderboard: leaderboard,
		Badges:      badges,
		Meals:       NewMealService(s),
	}

	e.Enrollment.finalizeDue = e.Adherence.FinalizeDue
	leaderboard.settle = e.Enrollment.settleExpired

	invalidate := leaderboard.Invalidate
	e.Enrollment.onCommit = invalidate
	e.Adherence.onCommit = invalidate
	e.Cheats.onCommit = invalidate
	e.Streaks.onCommit = invalidate
	return e, nil
}

func (e *Engine) Close() {
	e.Leaderboard.Close()
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
