package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"calorie-challenge-engine/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

// txRunner runs write paths: per-key lock, then one store transaction retried
// on conflict with exponential backoff. Each attempt reads the clock once at
// its start and hands that instant to fn as the authoritative "now".
type txRunner struct {
	store       store.Store
	clock       clockwork.Clock
	locks       *keyedMutex
	maxAttempts uint
	backoff     func() backoff.BackOff
}

func newTxRunner(s store.Store, clock clockwork.Clock, maxAttempts int) *txRunner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &txRunner{
		store:       s,
		clock:       clock,
		locks:       newKeyedMutex(),
		maxAttempts: uint(maxAttempts),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
	}
}

// run executes fn under the lock for key. Engine errors and non-conflict store
// errors end the loop immediately; conflicts are retried and, once attempts run
// out, reported as TRANSIENT.
func (r *txRunner) run(ctx context.Context, op, key string, fn func(tx store.Repository, now time.Time) error) error {
	unlock := r.locks.Lock(key)
	defer unlock()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			txRetriesTotal.WithLabelValues(op).Inc()
		}
		now := r.clock.Now()
		err := r.store.Transaction(ctx, func(tx store.Repository) error {
			return fn(tx, now)
		})
		if err == nil || errors.Is(err, store.ErrConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(r.backoff()),
		backoff.WithMaxTries(r.maxAttempts),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if err != nil && errors.Is(err, store.ErrConflict) {
		txExhaustedTotal.WithLabelValues(op).Inc()
		log.Printf("[Tx] ⚠️ %s on %s gave up after %d attempt(s): %v", op, key, attempt, err)
		return newError(ErrTransient, fmt.Sprintf("%s: too many concurrent updates, retry later", op), err)
	}
	return err
}
