package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
	"calorie-challenge-engine/utils"

	"github.com/google/uuid"
)

// CheatStatus is the weekly quota snapshot for one date.
type CheatStatus struct {
	ParticipationID string   `json:"participation_id"`
	Date            string   `json:"date"`
	WeekStart       string   `json:"week_start"`
	UsedCount       int      `json:"used_count"`
	WeeklyLimit     int      `json:"weekly_limit"`
	RemainingCount  int      `json:"remaining_count"`
	CanUseToday     bool     `json:"can_use_today"`
	UsedDates       []string `json:"used_dates"`
}

// CheatResult is what an accepted cheat request produced.
type CheatResult struct {
	Usage   *models.CheatUsage   `json:"usage"`
	Verdict *models.DailyVerdict `json:"verdict"`
}

// CheatQuotaService manages cheat days. Usage is keyed by ISO week (Monday
// start), so a new week starts from zero without any reset job.
type CheatQuotaService struct {
	runner   *txRunner
	streaks  *StreakService
	onCommit func(roomID string)
}

func NewCheatQuotaService(runner *txRunner, streaks *StreakService) *CheatQuotaService {
	return &CheatQuotaService{runner: runner, streaks: streaks}
}

// WeekStart is the Monday of the ISO week containing date.
func WeekStart(date time.Time) time.Time {
	return utils.WeekStart(date)
}

// CurrentDate is the date a cheat request without an explicit date applies
// to: the participant's current bucket.
func (s *CheatQuotaService) CurrentDate(p *models.Participation) time.Time {
	return utils.BucketDate(s.runner.clock.Now(), p.CutoffTime, p.Location())
}

// RequestCheat spends one cheat day on date. Quota check, usage update, CHEAT
// verdict and streak update commit together. The request is judged against a
// single clock read taken when the transaction starts.
func (s *CheatQuotaService) RequestCheat(ctx context.Context, userID, participationID string, date time.Time) (*CheatResult, error) {
	date = utils.Day(date)
	var (
		out    *CheatResult
		roomID string
	)
	err := s.runner.run(ctx, "cheat", participationKey(participationID), func(tx store.Repository, now time.Time) error {
		p, err := ownedParticipation(ctx, tx, userID, participationID)
		if err != nil {
			return err
		}
		if p.Status != models.StatusActive {
			return newError(ErrNotActive, fmt.Sprintf("participation is %s", p.Status), nil)
		}
		if !p.InRange(date) {
			return newError(ErrDateOutOfRange, fmt.Sprintf("%s is outside the challenge period", utils.FormatDate(date)), nil)
		}

		loc := p.Location()
		if date.After(utils.BucketDate(now, p.CutoffTime, loc)) {
			return newError(ErrDateInFuture, fmt.Sprintf("cheat days can only be requested for the current day, not %s", utils.FormatDate(date)), nil)
		}
		from, to := utils.BucketWindow(date, p.CutoffTime, loc)
		if !now.Before(to) {
			return newError(ErrCutoffPassed, fmt.Sprintf("cutoff %s for %s has passed", p.CutoffTime, utils.FormatDate(date)), nil)
		}

		existing, err := tx.GetVerdict(ctx, p.ID, date)
		switch {
		case err == nil && existing.VerdictType == models.VerdictCheat:
			return ErrAlreadyUsedToday
		case err == nil && existing.VerdictType.Final():
			return newError(ErrAlreadyFinalized, fmt.Sprintf("%s is already %s", utils.FormatDate(date), existing.VerdictType), nil)
		case err != nil && !isNotFound(err):
			return err
		}

		week := utils.WeekStart(date)
		usage, err := tx.GetCheatUsage(ctx, p.ID, week)
		switch {
		case isNotFound(err):
			usage = &models.CheatUsage{ID: uuid.NewString(), ParticipationID: p.ID, WeekStart: week, UsedDates: []string{}}
		case err != nil:
			return err
		}
		if usage.HasDate(date) {
			return ErrAlreadyUsedToday
		}
		if usage.UsedCount >= p.WeeklyCheatLimit {
			return newError(ErrQuotaExceeded, fmt.Sprintf("used %d of %d cheat day(s) in the week of %s",
				usage.UsedCount, p.WeeklyCheatLimit, utils.FormatDate(week)), nil)
		}

		usage.UsedCount++
		usage.AddDate(date)
		if err := tx.SaveCheatUsage(ctx, usage); err != nil {
			return err
		}

		totals, err := tx.SumMeals(ctx, p.UserID, from, to)
		if err != nil {
			return err
		}
		at := now.UTC()
		v := &models.DailyVerdict{
			ParticipationID:     p.ID,
			Date:                date,
			VerdictType:         models.VerdictCheat,
			TotalCaloriesLogged: totals.Calories,
			MealCount:           totals.MealCount,
			FinalizedAt:         &at,
		}
		if existing != nil {
			v.ID = existing.ID
		}
		if err := s.streaks.record(ctx, tx, p, v, now); err != nil {
			return err
		}
		out, roomID = &CheatResult{Usage: usage, Verdict: v}, p.RoomID
		return nil
	})
	if err != nil {
		cheatRequestsTotal.WithLabelValues(CodeOf(err)).Inc()
		return nil, err
	}

	cheatRequestsTotal.WithLabelValues("ACCEPTED").Inc()
	verdictsTotal.WithLabelValues(string(models.VerdictCheat), triggerCheat).Inc()
	log.Printf("[Cheat] 🍰 %s used a cheat day on %s (%d this week)",
		participationID, utils.FormatDate(date), out.Usage.UsedCount)
	if s.onCommit != nil {
		s.onCommit(roomID)
	}
	return out, nil
}

// Status reports the quota for the week containing date.
func (s *CheatQuotaService) Status(ctx context.Context, userID, participationID string, date time.Time) (*CheatStatus, error) {
	date = utils.Day(date)
	r := s.runner.store
	p, err := ownedParticipation(ctx, r, userID, participationID)
	if err != nil {
		return nil, err
	}

	week := utils.WeekStart(date)
	st := &CheatStatus{
		ParticipationID: p.ID,
		Date:            utils.FormatDate(date),
		WeekStart:       utils.FormatDate(week),
		WeeklyLimit:     p.WeeklyCheatLimit,
		UsedDates:       []string{},
	}
	usage, err := r.GetCheatUsage(ctx, p.ID, week)
	switch {
	case err == nil:
		st.UsedCount = usage.UsedCount
		st.UsedDates = append(st.UsedDates, usage.UsedDates...)
	case !isNotFound(err):
		return nil, err
	}
	st.RemainingCount = p.WeeklyCheatLimit - st.UsedCount
	if st.RemainingCount < 0 {
		st.RemainingCount = 0
	}

	now := s.runner.clock.Now()
	loc := p.Location()
	_, cutoff := utils.BucketWindow(date, p.CutoffTime, loc)
	st.CanUseToday = p.Status == models.StatusActive &&
		p.InRange(date) &&
		!date.After(utils.BucketDate(now, p.CutoffTime, loc)) &&
		now.Before(cutoff) &&
		st.RemainingCount > 0 &&
		(usage == nil || !usage.HasDate(date))
	if st.CanUseToday {
		if v, err := r.GetVerdict(ctx, p.ID, date); err == nil && v.VerdictType.Final() {
			st.CanUseToday = false
		}
	}
	return st, nil
}
