package services

import (
	"context"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
	"calorie-challenge-engine/utils"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// Monday 2025-01-06 10:00 UTC.
var testStart = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

var testRooms = []models.ChallengeRoom{
	{ID: "lean-1500", Name: "Lean 1500", TargetCalorie: 1500, Tolerance: 50},
	{ID: "bulk-2800", Name: "Bulk 2800", TargetCalorie: 2800, Tolerance: 150},
}

type testEnv struct {
	engine *Engine
	store  store.Store
	clock  *clockwork.FakeClock
	ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, Options{})
}

func newTestEnvWith(t *testing.T, opts Options) *testEnv {
	t.Helper()
	s, err := store.OpenBadger(store.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := clockwork.NewFakeClockAt(testStart)
	opts.Clock = clock
	e, err := NewEngine(s, opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	ctx := context.Background()
	require.NoError(t, e.Catalog.Sync(ctx, testRooms))
	return &testEnv{engine: e, store: s, clock: clock, ctx: ctx}
}

func intPtr(i int) *int { return &i }

func joinRequest(roomID string) JoinRequest {
	return JoinRequest{
		RoomID:           roomID,
		HeightCm:         165,
		CurrentWeightKg:  70,
		TargetWeightKg:   60,
		DurationDays:     30,
		WeeklyCheatLimit: intPtr(1),
		MinDailyMeals:    intPtr(2),
		CutoffTime:       "23:00",
		Timezone:         "UTC",
	}
}

func (env *testEnv) join(t *testing.T, userID string) *models.Participation {
	t.Helper()
	p, err := env.engine.Enrollment.Join(env.ctx, userID, joinRequest("lean-1500"))
	require.NoError(t, err)
	return p
}

// setNow moves the fake clock to an absolute instant.
func (env *testEnv) setNow(t *testing.T, at time.Time) {
	t.Helper()
	d := at.Sub(env.clock.Now())
	require.GreaterOrEqual(t, d, time.Duration(0), "fake clock cannot go backwards")
	env.clock.Advance(d)
}

var mealSeq int

func (env *testEnv) logMeals(t *testing.T, userID string, at time.Time, calories ...int) {
	t.Helper()
	meals := make([]models.MealLog, len(calories))
	for i, c := range calories {
		mealSeq++
		meals[i] = models.MealLog{
			ExternalID: fmt.Sprintf("%s-meal-%d", userID, mealSeq),
			UserID:     userID,
			MealType:   "snack",
			Calories:   c,
			EatenAt:    at.Add(time.Duration(i) * time.Hour),
		}
	}
	_, err := env.store.SaveMeals(env.ctx, meals)
	require.NoError(t, err)
}

func (env *testEnv) reload(t *testing.T, id string) *models.Participation {
	t.Helper()
	p, err := env.store.GetParticipation(env.ctx, id)
	require.NoError(t, err)
	return p
}

func date(s string) time.Time {
	d, err := utils.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}
