package services

import (
	"sync"
	"testing"

	"calorie-challenge-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekStart(t *testing.T) {
	tests := map[string]string{
		"2025-01-06": "2025-01-06", // Monday
		"2025-01-08": "2025-01-06", // Wednesday
		"2025-01-12": "2025-01-06", // Sunday belongs to the previous Monday
		"2025-01-13": "2025-01-13",
		"2025-01-01": "2024-12-30", // week spanning a year boundary
	}
	for in, want := range tests {
		assert.Equal(t, date(want), WeekStart(date(in)), in)
	}
}

func TestRequestCheat_WeeklyQuota(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "user-1") // weekly limit 1
	cheats := env.engine.Cheats

	res, err := cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Usage.UsedCount)
	assert.Equal(t, []string{"2025-01-06"}, res.Usage.UsedDates)
	assert.Equal(t, models.VerdictCheat, res.Verdict.VerdictType)
	require.NotNil(t, res.Verdict.FinalizedAt, "cheat finalizes immediately")

	got := env.reload(t, p.ID)
	assert.Equal(t, 0, got.CurrentStreakDays)
	assert.Equal(t, 0, got.TotalSuccessDays)
	assert.Equal(t, 0, got.TotalFailureDays)

	env.setNow(t, at("2025-01-08 10:00"))
	_, err = cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-08"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, KindQuota, KindOf(err))

	t.Run("next week starts fresh", func(t *testing.T) {
		env.setNow(t, at("2025-01-13 09:00"))
		res, err := cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-13"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Usage.UsedCount)
		assert.Equal(t, date("2025-01-13"), res.Usage.WeekStart)
	})
}

func TestRequestCheat_SameDateTwice(t *testing.T) {
	env := newTestEnv(t)
	req := joinRequest("lean-1500")
	req.WeeklyCheatLimit = intPtr(3)
	p, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
	require.NoError(t, err)

	_, err = env.engine.Cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)
	_, err = env.engine.Cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
	assert.ErrorIs(t, err, ErrAlreadyUsedToday)

	usage, err := env.store.GetCheatUsage(env.ctx, p.ID, date("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, usage.UsedCount)
}

func TestRequestCheat_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	req := joinRequest("lean-1500")
	req.WeeklyCheatLimit = intPtr(3)
	p, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyUsedToday)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	usage, err := env.store.GetCheatUsage(env.ctx, p.ID, date("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, usage.UsedCount)
}

func TestRequestCheat_Errors(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "user-1")
	cheats := env.engine.Cheats

	t.Run("future date", func(t *testing.T) {
		_, err := cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-07"))
		assert.ErrorIs(t, err, ErrDateInFuture)
	})
	t.Run("before start", func(t *testing.T) {
		_, err := cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-05"))
		assert.ErrorIs(t, err, ErrDateOutOfRange)
	})
	t.Run("other user", func(t *testing.T) {
		_, err := cheats.RequestCheat(env.ctx, "user-2", p.ID, date("2025-01-06"))
		assert.ErrorIs(t, err, ErrForbidden)
	})
	t.Run("exactly at cutoff", func(t *testing.T) {
		env.setNow(t, at("2025-01-06 23:00"))
		_, err := cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
		assert.ErrorIs(t, err, ErrCutoffPassed)
	})
	t.Run("day already judged", func(t *testing.T) {
		_, err := env.engine.Adherence.Evaluate(env.ctx, "user-1", p.ID, date("2025-01-06"))
		require.NoError(t, err)
		// After 23:00 the bucket is Jan 7, whose cutoff is still ahead.
		_, err = cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
		assert.ErrorIs(t, err, ErrCutoffPassed)
	})
	t.Run("late evening applies to tomorrow", func(t *testing.T) {
		res, err := cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-07"))
		require.NoError(t, err)
		assert.Equal(t, models.VerdictCheat, res.Verdict.VerdictType)
	})
	t.Run("zero limit", func(t *testing.T) {
		req := joinRequest("lean-1500")
		req.WeeklyCheatLimit = intPtr(0)
		other, err := env.engine.Enrollment.Join(env.ctx, "user-3", req)
		require.NoError(t, err)
		_, err = cheats.RequestCheat(env.ctx, "user-3", other.ID, other.StartDate)
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})
}

func TestRequestCheat_PreservesStreak(t *testing.T) {
	env := newTestEnv(t)
	req := joinRequest("lean-1500")
	req.WeeklyCheatLimit = intPtr(2)
	p, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
	require.NoError(t, err)

	env.logMeals(t, "user-1", at("2025-01-06 08:00"), 750, 750)
	env.setNow(t, at("2025-01-06 23:00"))
	_, err = env.engine.Adherence.Evaluate(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)

	_, err = env.engine.Cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-07"))
	require.NoError(t, err)

	env.logMeals(t, "user-1", at("2025-01-08 08:00"), 750, 750)
	env.setNow(t, at("2025-01-08 23:00"))
	_, err = env.engine.Adherence.Evaluate(env.ctx, "user-1", p.ID, date("2025-01-08"))
	require.NoError(t, err)

	got := env.reload(t, p.ID)
	assert.Equal(t, 2, got.CurrentStreakDays, "cheat day neither breaks nor extends the streak")
	assert.Equal(t, 2, got.TotalSuccessDays)
	assert.Equal(t, 2, got.MaxStreakDays)
}

func TestCheatStatus(t *testing.T) {
	env := newTestEnv(t)
	req := joinRequest("lean-1500")
	req.WeeklyCheatLimit = intPtr(2)
	p, err := env.engine.Enrollment.Join(env.ctx, "user-1", req)
	require.NoError(t, err)
	cheats := env.engine.Cheats

	st, err := cheats.Status(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 0, st.UsedCount)
	assert.Equal(t, 2, st.RemainingCount)
	assert.True(t, st.CanUseToday)
	assert.Empty(t, st.UsedDates)

	_, err = cheats.RequestCheat(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)

	st, err = cheats.Status(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, st.UsedCount)
	assert.Equal(t, 1, st.RemainingCount)
	assert.False(t, st.CanUseToday, "date already used")
	assert.Equal(t, []string{"2025-01-06"}, st.UsedDates)
	assert.Equal(t, "2025-01-06", st.WeekStart)

	env.setNow(t, at("2025-01-07 22:59"))
	st, err = cheats.Status(env.ctx, "user-1", p.ID, date("2025-01-07"))
	require.NoError(t, err)
	assert.True(t, st.CanUseToday)

	env.setNow(t, at("2025-01-07 23:00"))
	st, err = cheats.Status(env.ctx, "user-1", p.ID, date("2025-01-07"))
	require.NoError(t, err)
	assert.False(t, st.CanUseToday, "cutoff passed")
}
