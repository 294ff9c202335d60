package services

import (
	"math/rand"
	"testing"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeParticipation() *models.Participation {
	return &models.Participation{
		ID:           "p-1",
		UserID:       "user-1",
		StartDate:    date("2025-01-06"),
		DurationDays: 365,
		Status:       models.StatusActive,
	}
}

// expectedStreak counts SUCCESS days after the last FAILURE.
func expectedStreak(seq []models.VerdictType) int {
	n := 0
	for _, v := range seq {
		switch v {
		case models.VerdictSuccess:
			n++
		case models.VerdictFailure:
			n = 0
		}
	}
	return n
}

func TestStreak_Apply(t *testing.T) {
	s := &StreakService{}
	p := activeParticipation()

	seq := []models.VerdictType{
		models.VerdictSuccess, models.VerdictSuccess, models.VerdictCheat,
		models.VerdictSuccess, models.VerdictFailure, models.VerdictSuccess,
	}
	for i, v := range seq {
		require.NoError(t, s.Apply(p, v, utils.AddDays(p.StartDate, i)))
	}
	assert.Equal(t, 1, p.CurrentStreakDays)
	assert.Equal(t, 3, p.MaxStreakDays)
	assert.Equal(t, 4, p.TotalSuccessDays)
	assert.Equal(t, 1, p.TotalFailureDays)
	assert.Equal(t, date("2025-01-11"), *p.LastVerdictDate)

	assert.Error(t, s.Apply(p, models.VerdictPending, date("2025-01-12")))

	p.Status = models.StatusCompleted
	assert.ErrorIs(t, s.Apply(p, models.VerdictSuccess, date("2025-01-12")), ErrNotActive)
}

func TestStreak_ReplayMatchesIncremental(t *testing.T) {
	s := &StreakService{}
	rng := rand.New(rand.NewSource(42))
	types := []models.VerdictType{models.VerdictSuccess, models.VerdictSuccess, models.VerdictFailure, models.VerdictCheat}

	for run := 0; run < 200; run++ {
		incremental := activeParticipation()
		var (
			seq      []models.VerdictType
			verdicts []models.DailyVerdict
		)
		day := incremental.StartDate
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			day = utils.AddDays(day, 1+rng.Intn(2)) // occasional gaps
			v := types[rng.Intn(len(types))]
			seq = append(seq, v)
			verdicts = append(verdicts, models.DailyVerdict{Date: day, VerdictType: v})
			require.NoError(t, s.Apply(incremental, v, day))

			require.GreaterOrEqual(t, incremental.MaxStreakDays, incremental.CurrentStreakDays)
		}

		// Replay in shuffled order, with a pending row mixed in.
		shuffled := append([]models.DailyVerdict(nil), verdicts...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		shuffled = append(shuffled, models.DailyVerdict{Date: utils.AddDays(day, 1), VerdictType: models.VerdictPending})

		replayed := activeParticipation()
		s.Replay(replayed, shuffled)

		assert.Equal(t, expectedStreak(seq), incremental.CurrentStreakDays, "run %d", run)
		assert.Equal(t, incremental.CurrentStreakDays, replayed.CurrentStreakDays, "run %d", run)
		assert.Equal(t, incremental.MaxStreakDays, replayed.MaxStreakDays, "run %d", run)
		assert.Equal(t, incremental.TotalSuccessDays, replayed.TotalSuccessDays, "run %d", run)
		assert.Equal(t, incremental.TotalFailureDays, replayed.TotalFailureDays, "run %d", run)
		assert.Equal(t, incremental.LastVerdictDate, replayed.LastVerdictDate, "run %d", run)
	}
}

func TestStreak_Complete(t *testing.T) {
	s := &StreakService{}
	p := activeParticipation()
	p.DurationDays = 7 // Jan 6 .. Jan 12

	assert.False(t, s.Complete(p, at("2025-01-12 23:59")))
	assert.Equal(t, models.StatusActive, p.Status)

	assert.True(t, s.Complete(p, at("2025-01-13 00:00")))
	assert.Equal(t, models.StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)

	assert.False(t, s.Complete(p, at("2025-01-14 00:00")), "already completed")
}

func TestRecomputeAll(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "user-1")
	env.logMeals(t, "user-1", at("2025-01-06 08:00"), 750, 750)
	env.setNow(t, at("2025-01-06 23:00"))
	_, err := env.engine.Adherence.Evaluate(env.ctx, "user-1", p.ID, date("2025-01-06"))
	require.NoError(t, err)

	// Corrupt the counters behind the engine's back.
	broken := env.reload(t, p.ID)
	broken.CurrentStreakDays, broken.TotalSuccessDays = 9, 9
	require.NoError(t, env.store.SaveParticipation(env.ctx, broken))

	changed, err := env.engine.Streaks.RecomputeAll(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	fixed := env.reload(t, p.ID)
	assert.Equal(t, 1, fixed.CurrentStreakDays)
	assert.Equal(t, 1, fixed.TotalSuccessDays)

	changed, err = env.engine.Streaks.RecomputeAll(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
