// services/scheduler.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"calorie-challenge-engine/models"

	"github.com/go-co-op/gocron/v2"
)

// ReportSink stores the JSON report of a finished participation.
type ReportSink interface {
	PutReport(ctx context.Context, key string, body []byte) error
}

// CompletionReport is the archived record of a completed participation.
type CompletionReport struct {
	Participation models.Participation  `json:"participation"`
	Verdicts      []models.DailyVerdict `json:"verdicts"`
	Badges        []models.UserBadge    `json:"badges"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// SweepResult summarizes one pass of the sweep.
type SweepResult struct {
	Scanned   int
	Finalized int
	Completed int
	Archived  int
	Failed    int
}

// Sweeper fires the cutoff judgment for every ACTIVE participation and closes
// expired ones.
type Sweeper struct {
	engine *Engine
	sink   ReportSink
	sched  gocron.Scheduler
}

func NewSweeper(e *Engine, sink ReportSink) *Sweeper {
	return &Sweeper{engine: e, sink: sink}
}

// RunOnce sweeps every ACTIVE participation. Per-participation failures are
// logged and counted; only a failure to list participations is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	var res SweepResult
	ps, err := s.engine.Store.ListActiveParticipations(ctx)
	if err != nil {
		return res, fmt.Errorf("list active participations: %w", err)
	}

	for i := range ps {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		p := &ps[i]
		res.Scanned++

		v, err := s.engine.Adherence.FinalizeDue(ctx, p, s.engine.Clock.Now())
		if err != nil {
			res.Failed++
			log.Printf("[Sweep] ❌ Finalize %s failed: %v", p.ID, err)
			continue
		}
		if v != nil {
			res.Finalized++
		}

		completed, done, err := s.engine.Enrollment.CompleteIfExpired(ctx, p.ID)
		if err != nil {
			res.Failed++
			log.Printf("[Sweep] ❌ Complete %s failed: %v", p.ID, err)
			continue
		}
		if !completed {
			continue
		}
		res.Completed++
		if s.sink == nil {
			continue
		}
		if err := s.archive(ctx, done); err != nil {
			log.Printf("[Sweep] ⚠️ Report for %s not archived: %v", done.ID, err)
			continue
		}
		res.Archived++
	}

	if res.Finalized > 0 || res.Completed > 0 || res.Failed > 0 {
		log.Printf("[Sweep] ✅ Scanned %d, finalized %d, completed %d, archived %d, failed %d",
			res.Scanned, res.Finalized, res.Completed, res.Archived, res.Failed)
	}
	return res, nil
}

func (s *Sweeper) archive(ctx context.Context, p *models.Participation) error {
	verdicts, err := s.engine.Store.ListVerdicts(ctx, p.ID)
	if err != nil {
		return err
	}
	badges, err := s.engine.Store.ListBadges(ctx, p.UserID)
	if err != nil {
		return err
	}
	mine := badges[:0]
	for _, b := range badges {
		if b.ParticipationID == p.ID {
			mine = append(mine, b)
		}
	}

	body, err := json.Marshal(CompletionReport{
		Participation: *p,
		Verdicts:      verdicts,
		Badges:        mine,
		GeneratedAt:   s.engine.Clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.sink.PutReport(ctx, ReportKey(p), body)
}

// ReportKey is the object key a participation's report is stored under.
func ReportKey(p *models.Participation) string {
	return fmt.Sprintf("reports/%s/%s.json", p.UserID, p.ID)
}

// Start runs the sweep every interval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.engine.Clock))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("[Sweep] DB error: %v", err)
			}
		}),
		gocron.WithName("cutoff-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.sched = sched
	sched.Start()
	log.Printf("[Sweep] ⏱️ Cutoff sweep scheduled every %s", interval)
	return nil
}

func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
