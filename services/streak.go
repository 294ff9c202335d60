package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
	"calorie-challenge-engine/utils"
)

// StreakService owns the running statistics of a participation:
// current/max streak and cumulative success/failure days.
//
// Verdicts are applied in date order. SUCCESS extends the streak, FAILURE
// resets it, CHEAT leaves it untouched. Dates nobody evaluated are gaps and
// count for nothing.
type StreakService struct {
	runner   *txRunner
	badges   *BadgeService
	onCommit func(roomID string)
}

func NewStreakService(runner *txRunner, badges *BadgeService) *StreakService {
	return &StreakService{runner: runner, badges: badges}
}

// Apply folds one finalized verdict into p's statistics.
func (s *StreakService) Apply(p *models.Participation, verdict models.VerdictType, date time.Time) error {
	if p.Status.Terminal() {
		return newError(ErrNotActive, fmt.Sprintf("participation %s is %s", p.ID, p.Status), nil)
	}
	if !verdict.Final() {
		return fmt.Errorf("streak: cannot apply %s verdict for %s", verdict, utils.FormatDate(date))
	}
	applyVerdict(p, verdict)
	d := utils.Day(date)
	p.LastVerdictDate = &d
	return nil
}

func applyVerdict(p *models.Participation, verdict models.VerdictType) {
	switch verdict {
	case models.VerdictSuccess:
		p.CurrentStreakDays++
		p.TotalSuccessDays++
		if p.CurrentStreakDays > p.MaxStreakDays {
			p.MaxStreakDays = p.CurrentStreakDays
		}
	case models.VerdictFailure:
		p.CurrentStreakDays = 0
		p.TotalFailureDays++
	case models.VerdictCheat, models.VerdictPending:
	}
}

// Replay recomputes p's statistics from scratch over verdicts. Pending and
// out-of-range verdicts are ignored; order of the input does not matter.
func (s *StreakService) Replay(p *models.Participation, verdicts []models.DailyVerdict) {
	final := make([]models.DailyVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.VerdictType.Final() && !v.Date.Before(p.StartDate) {
			final = append(final, v)
		}
	}
	sort.Slice(final, func(i, j int) bool { return final[i].Date.Before(final[j].Date) })

	p.CurrentStreakDays = 0
	p.MaxStreakDays = 0
	p.TotalSuccessDays = 0
	p.TotalFailureDays = 0
	p.LastVerdictDate = nil
	for _, v := range final {
		applyVerdict(p, v.VerdictType)
		d := utils.Day(v.Date)
		p.LastVerdictDate = &d
	}
}

// Complete moves an expired ACTIVE participation to COMPLETED. It reports
// whether the status changed.
func (s *StreakService) Complete(p *models.Participation, now time.Time) bool {
	if p.Status != models.StatusActive || !p.Expired(utils.LocalDay(now, p.Location())) {
		return false
	}
	p.Status = models.StatusCompleted
	at := now.UTC()
	p.CompletedAt = &at
	return true
}

// record persists v and folds it into p inside tx. A verdict dated on or
// before the last applied one forces a full replay.
func (s *StreakService) record(ctx context.Context, tx store.Repository, p *models.Participation, v *models.DailyVerdict, now time.Time) error {
	if err := tx.SaveVerdict(ctx, v); err != nil {
		return err
	}
	if p.LastVerdictDate != nil && !v.Date.After(*p.LastVerdictDate) {
		verdicts, err := tx.ListVerdicts(ctx, p.ID)
		if err != nil {
			return err
		}
		log.Printf("[Streak] 🔁 Out-of-order verdict %s for %s (last %s), replaying %d verdict(s)",
			utils.FormatDate(v.Date), p.ID, utils.FormatDate(*p.LastVerdictDate), len(verdicts))
		s.Replay(p, verdicts)
	} else if err := s.Apply(p, v.VerdictType, v.Date); err != nil {
		return err
	}

	if s.badges != nil {
		if _, err := s.badges.Award(ctx, tx, p, now); err != nil {
			return err
		}
	}
	return tx.SaveParticipation(ctx, p)
}

// Recompute replays one participation's statistics from its stored verdicts.
func (s *StreakService) Recompute(ctx context.Context, participationID string) (*models.Participation, error) {
	var out *models.Participation
	err := s.runner.run(ctx, "recompute", participationKey(participationID), func(tx store.Repository, now time.Time) error {
		p, err := loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		verdicts, err := tx.ListVerdicts(ctx, p.ID)
		if err != nil {
			return err
		}
		s.Replay(p, verdicts)
		if err := tx.SaveParticipation(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.onCommit != nil {
		s.onCommit(out.RoomID)
	}
	return out, nil
}

// RecomputeAll replays every participation and returns how many changed.
func (s *StreakService) RecomputeAll(ctx context.Context) (int, error) {
	ps, err := s.runner.store.ListParticipations(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, before := range ps {
		after, err := s.Recompute(ctx, before.ID)
		if err != nil {
			return changed, fmt.Errorf("recompute %s: %w", before.ID, err)
		}
		if after.CurrentStreakDays != before.CurrentStreakDays ||
			after.MaxStreakDays != before.MaxStreakDays ||
			after.TotalSuccessDays != before.TotalSuccessDays ||
			after.TotalFailureDays != before.TotalFailureDays {
			changed++
			log.Printf("[Streak] ✏️ %s: streak %d→%d, max %d→%d, success %d→%d, failure %d→%d",
				before.ID, before.CurrentStreakDays, after.CurrentStreakDays,
				before.MaxStreakDays, after.MaxStreakDays,
				before.TotalSuccessDays, after.TotalSuccessDays,
				before.TotalFailureDays, after.TotalFailureDays)
		}
	}
	return changed, nil
}

func participationKey(id string) string { return "participation:" + id }

func userKey(id string) string { return "user:" + id }

// loadParticipation reads (and, in a transaction, locks) a participation.
func loadParticipation(ctx context.Context, tx store.Repository, id string) (*models.Participation, error) {
	p, err := tx.GetParticipation(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(ErrParticipationNotFound, fmt.Sprintf("participation %q not found", id), nil)
		}
		return nil, err
	}
	return p, nil
}
