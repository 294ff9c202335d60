package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"calorie-challenge-engine/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conflictingStore fails the first n transactions with store.ErrConflict.
type conflictingStore struct {
	store.Store
	n     int32
	calls atomic.Int32
}

func (c *conflictingStore) Transaction(ctx context.Context, fn func(tx store.Repository) error) error {
	if c.calls.Add(1) <= c.n {
		return store.ErrConflict
	}
	return c.Store.Transaction(ctx, fn)
}

func newConflictRunner(t *testing.T, conflicts int32, attempts int) (*txRunner, *conflictingStore, *clockwork.FakeClock) {
	t.Helper()
	s, err := store.OpenBadger(store.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cs := &conflictingStore{Store: s, n: conflicts}
	clock := clockwork.NewFakeClockAt(testStart)
	r := newTxRunner(cs, clock, attempts)
	r.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return r, cs, clock
}

func TestTxRunner_RetriesConflicts(t *testing.T) {
	r, cs, _ := newConflictRunner(t, 2, 5)

	ran := 0
	err := r.run(context.Background(), "test", "k", func(tx store.Repository, now time.Time) error {
		ran++
		assert.True(t, testStart.Equal(now))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.EqualValues(t, 3, cs.calls.Load())
}

func TestTxRunner_ExhaustedIsTransient(t *testing.T) {
	r, cs, _ := newConflictRunner(t, 100, 3)

	err := r.run(context.Background(), "test", "k", func(store.Repository, time.Time) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.ErrorIs(t, err, store.ErrConflict, "cause is kept")
	assert.EqualValues(t, 3, cs.calls.Load())
}

func TestTxRunner_EngineErrorsAreNotRetried(t *testing.T) {
	r, cs, _ := newConflictRunner(t, 0, 5)

	calls := 0
	err := r.run(context.Background(), "test", "k", func(store.Repository, time.Time) error {
		calls++
		return newError(ErrNotActive, "participation is not active", nil)
	})
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, cs.calls.Load())

	boom := errors.New("disk on fire")
	err = r.run(context.Background(), "test", "k", func(store.Repository, time.Time) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestTxRunner_ReadsClockPerAttempt(t *testing.T) {
	r, _, clock := newConflictRunner(t, 0, 1)

	var seen []time.Time
	for i := 0; i < 2; i++ {
		require.NoError(t, r.run(context.Background(), "test", "k", func(_ store.Repository, now time.Time) error {
			seen = append(seen, now)
			return nil
		}))
		clock.Advance(time.Hour)
	}
	require.Len(t, seen, 2)
	assert.Equal(t, time.Hour, seen[1].Sub(seen[0]))
	assert.Zero(t, r.locks.size(), "locks are released")
}
