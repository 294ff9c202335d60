package services

import (
	"sync"
	"testing"

	"calorie-challenge-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendedCalories(t *testing.T) {
	tests := []struct {
		name                   string
		height, weight, target float64
		want                   int
	}{
		{"losing more than 5kg", 165, 70, 60, 1559},
		{"within band", 165, 70, 68, 2059},
		{"exactly 5kg to lose", 165, 70, 65, 2059},
		{"gaining more than 2kg", 180, 60, 65, 2296},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendedCalories(tt.height, tt.weight, tt.target, DefaultAge))
		})
	}
}

func TestJoin(t *testing.T) {
	env := newTestEnv(t)

	p := env.join(t, "user-1")
	assert.Equal(t, models.StatusActive, p.Status)
	assert.Equal(t, "lean-1500", p.RoomID)
	assert.Equal(t, date("2025-01-06"), p.StartDate)
	assert.Zero(t, p.CurrentStreakDays)
	assert.Equal(t, 1, p.WeeklyCheatLimit)

	t.Run("second join anywhere is rejected", func(t *testing.T) {
		_, err := env.engine.Enrollment.Join(env.ctx, "user-1", joinRequest("bulk-2800"))
		assert.ErrorIs(t, err, ErrAlreadyEnrolled)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("join after leaving is allowed", func(t *testing.T) {
		_, err := env.engine.Enrollment.Leave(env.ctx, "user-1", p.ID)
		require.NoError(t, err)

		again, err := env.engine.Enrollment.Join(env.ctx, "user-1", joinRequest("bulk-2800"))
		require.NoError(t, err)
		assert.NotEqual(t, p.ID, again.ID)
	})
}

func TestJoin_StartsOnNextDayAfterCutoff(t *testing.T) {
	env := newTestEnv(t)
	env.setNow(t, at("2025-01-06 23:30"))

	p := env.join(t, "user-1")
	assert.Equal(t, date("2025-01-07"), p.StartDate)
}

func TestJoin_Defaults(t *testing.T) {
	env := newTestEnvWith(t, Options{Defaults: Defaults{
		Timezone: "Asia/Seoul", CutoffTime: "21:00", WeeklyCheatLimit: 2, MinDailyMeals: 3,
	}})

	req := joinRequest("lean-1500")
	req.WeeklyCheatLimit, req.MinDailyMeals, req.CutoffTime, req.Timezone = nil, nil, "", ""
	p, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", p.Timezone)
	assert.Equal(t, "21:00", p.CutoffTime)
	assert.Equal(t, 2, p.WeeklyCheatLimit)
	assert.Equal(t, 3, p.MinDailyMeals)

	t.Run("explicit zero cheat limit is kept", func(t *testing.T) {
		_, err := env.engine.Enrollment.Leave(env.ctx, "user-1", p.ID)
		require.NoError(t, err)
		req.WeeklyCheatLimit = intPtr(0)
		p, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
		require.NoError(t, err)
		assert.Equal(t, 0, p.WeeklyCheatLimit)
	})

	t.Run("large limits are accepted", func(t *testing.T) {
		req := joinRequest("lean-1500")
		req.WeeklyCheatLimit, req.MinDailyMeals = intPtr(10), intPtr(12)
		p, err := env.engine.Enrollment.Join(env.ctx, "user-2", req)
		require.NoError(t, err)
		assert.Equal(t, 10, p.WeeklyCheatLimit)
		assert.Equal(t, 12, p.MinDailyMeals)
	})
}

func TestJoin_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*JoinRequest)
		want   error
	}{
		{"height too low", func(r *JoinRequest) { r.HeightCm = 99 }, ErrInvalidInput},
		{"height too high", func(r *JoinRequest) { r.HeightCm = 251 }, ErrInvalidInput},
		{"weight too low", func(r *JoinRequest) { r.CurrentWeightKg = 29 }, ErrInvalidInput},
		{"target too high", func(r *JoinRequest) { r.TargetWeightKg = 301 }, ErrInvalidInput},
		{"duration too short", func(r *JoinRequest) { r.DurationDays = 6 }, ErrInvalidInput},
		{"duration too long", func(r *JoinRequest) { r.DurationDays = 366 }, ErrInvalidInput},
		{"negative cheat limit", func(r *JoinRequest) { r.WeeklyCheatLimit = intPtr(-1) }, ErrInvalidInput},
		{"zero meals", func(r *JoinRequest) { r.MinDailyMeals = intPtr(0) }, ErrInvalidInput},
		{"bad cutoff", func(r *JoinRequest) { r.CutoffTime = "7pm" }, ErrInvalidInput},
		{"bad timezone", func(r *JoinRequest) { r.Timezone = "Nowhere/Special" }, ErrInvalidInput},
		{"missing room", func(r *JoinRequest) { r.RoomID = "" }, ErrInvalidInput},
		{"unknown room", func(r *JoinRequest) { r.RoomID = "keto-9000" }, ErrRoomNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := joinRequest("lean-1500")
			tt.mutate(&req)
			_, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ps, err := env.store.ListParticipationsByUser(env.ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, ps, "rejected joins must not write")
}

func TestJoin_ConcurrentSingleActive(t *testing.T) {
	env := newTestEnv(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		enrolled  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := "lean-1500"
			if i%2 == 1 {
				room = "bulk-2800"
			}
			_, err := env.engine.Enrollment.Join(env.ctx, "user-1", joinRequest(room))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case KindOf(err) == KindConflict:
				enrolled++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, enrolled)

	ps, err := env.store.ListParticipationsByUser(env.ctx, "user-1")
	require.NoError(t, err)
	active := 0
	for _, p := range ps {
		if p.Status == models.StatusActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestLeave(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "user-1")

	_, err := env.engine.Enrollment.Leave(env.ctx, "user-2", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	left, err := env.engine.Enrollment.Leave(env.ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, left.Status)
	require.NotNil(t, left.AbandonedAt)

	_, err = env.engine.Enrollment.Leave(env.ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = env.engine.Enrollment.Leave(env.ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrParticipationNotFound)

	_, err = env.engine.Adherence.Evaluate(env.ctx, "user-1", p.ID, date("2025-01-06"))
	assert.ErrorIs(t, err, ErrNotActive, "abandoned participations take no verdicts")
}

func TestExtend(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "user-1")

	extended, err := env.engine.Enrollment.Extend(env.ctx, "user-1", p.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 40, extended.DurationDays)

	_, err = env.engine.Enrollment.Extend(env.ctx, "user-1", p.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.engine.Enrollment.Extend(env.ctx, "user-1", p.ID, 330)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.engine.Enrollment.Leave(env.ctx, "user-1", p.ID)
	require.NoError(t, err)
	_, err = env.engine.Enrollment.Extend(env.ctx, "user-1", p.ID, 5)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestStatsAndMyChallenges(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "user-1")

	stats, err := env.engine.Enrollment.Stats(env.ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.RemainingDays)

	env.setNow(t, at("2025-01-10 12:00"))
	stats, err = env.engine.Enrollment.Stats(env.ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 26, stats.RemainingDays)

	_, err = env.engine.Enrollment.Stats(env.ctx, "user-2", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := env.engine.Enrollment.MyChallenges(env.ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)

	none, err := env.engine.Enrollment.MyChallenges(env.ctx, "user-2", false)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExpiredParticipationIsSettledOnRead(t *testing.T) {
	env := newTestEnv(t)
	short := joinRequest("lean-1500")
	short.DurationDays = 7 // Jan 6 .. Jan 12
	p, err := env.engine.Enrollment.Join(env.ctx, "user-1", short)
	require.NoError(t, err)
	other, err := env.engine.Enrollment.Join(env.ctx, "user-2", joinRequest("lean-1500"))
	require.NoError(t, err)
	idle, err := env.engine.Enrollment.Join(env.ctx, "user-3", short)
	require.NoError(t, err)

	env.logMeals(t, "user-1", at("2025-01-12 08:00"), 750, 750)
	env.setNow(t, at("2025-01-14 10:00")) // no sweep has run

	page, err := env.engine.Leaderboard.Rank(env.ctx, "lean-1500", "user-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, userIDs(page.Entries))
	assert.Zero(t, page.MyRank)

	stats, err := env.engine.Enrollment.Stats(env.ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stats.Status)
	assert.Equal(t, 1, stats.TotalSuccessDays, "the last day is judged before closing")
	assert.Zero(t, stats.RemainingDays)

	again, err := env.engine.Enrollment.Join(env.ctx, "user-1", joinRequest("lean-1500"))
	require.NoError(t, err)
	assert.Equal(t, date("2025-01-14"), again.StartDate)

	mine, err := env.engine.Enrollment.MyChallenges(env.ctx, "user-3", false)
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.Equal(t, models.StatusCompleted, env.reload(t, idle.ID).Status)

	assert.Equal(t, models.StatusActive, env.reload(t, other.ID).Status)
}
