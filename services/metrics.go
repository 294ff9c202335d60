package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// verdictsTotal counts finalized and pending verdicts by type and trigger
	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_verdicts_total",
		Help: "Verdicts written by type and trigger (evaluate, sweep, cheat)",
	}, []string{"verdict", "trigger"})

	// cheatRequestsTotal counts cheat requests by outcome code
	cheatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_cheat_requests_total",
		Help: "Cheat day requests by outcome",
	}, []string{"outcome"})

	// txRetriesTotal counts store transactions retried after a conflict
	txRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_tx_retries_total",
		Help: "Store transactions retried after a conflict, by operation",
	}, []string{"operation"})

	// txExhaustedTotal counts operations surfaced as TRANSIENT
	txExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_tx_exhausted_total",
		Help: "Operations that ran out of retries",
	}, []string{"operation"})

	leaderboardCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_leaderboard_cache_total",
		Help: "Leaderboard cache lookups by result (hit, miss)",
	}, []string{"result"})

	participationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_participations_total",
		Help: "Participation lifecycle transitions by status",
	}, []string{"status"})

	badgesAwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_badges_awarded_total",
		Help: "Badges awarded by code",
	}, []string{"badge"})

	mealsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "challenge_meals_ingested_total",
		Help: "New meal events stored",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "challenge_sweep_duration_seconds",
		Help:    "Duration of one cutoff sweep",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
