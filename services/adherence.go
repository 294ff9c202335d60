package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
	"calorie-challenge-engine/utils"
)

// Verdict triggers, used for logging and metrics.
const (
	triggerEvaluate = "evaluate"
	triggerSweep    = "sweep"
	triggerCheat    = "cheat"
)

// Decide applies the adherence rule for one finalized day:
//  1. an accepted cheat day is CHEAT regardless of calories
//  2. fewer meals than required is FAILURE
//  3. a total within the room's band is SUCCESS
//  4. anything else is FAILURE
func Decide(cheatAccepted bool, totals models.MealTotals, minDailyMeals int, room models.ChallengeRoom) models.VerdictType {
	switch {
	case cheatAccepted:
		return models.VerdictCheat
	case totals.MealCount < minDailyMeals:
		return models.VerdictFailure
	case room.WithinTolerance(totals.Calories):
		return models.VerdictSuccess
	default:
		return models.VerdictFailure
	}
}

// Preview is the read-only view of a day: the stored verdict when final,
// otherwise what the rule would decide from the meals logged so far.
type Preview struct {
	ParticipationID     string             `json:"participation_id"`
	Date                string             `json:"date"`
	VerdictType         models.VerdictType `json:"verdict_type"`
	Final               bool               `json:"final"`
	TotalCaloriesLogged int                `json:"total_calories_logged"`
	MealCount           int                `json:"meal_count"`
	TargetCalorie       int                `json:"target_calorie"`
	Tolerance           int                `json:"tolerance"`
	MinDailyMeals       int                `json:"min_daily_meals"`
	WindowStart         time.Time          `json:"window_start"`
	CutoffAt            time.Time          `json:"cutoff_at"`
}

type AdherenceService struct {
	runner   *txRunner
	catalog  *CatalogService
	streaks  *StreakService
	onCommit func(roomID string)
}

func NewAdherenceService(runner *txRunner, catalog *CatalogService, streaks *StreakService) *AdherenceService {
	return &AdherenceService{runner: runner, catalog: catalog, streaks: streaks}
}

// Evaluate runs the day's state machine for one participation. Before the
// cutoff it refreshes a PENDING verdict; at or after the cutoff it finalizes
// the verdict and applies it to the streak in the same transaction. A final
// verdict is never rewritten.
func (s *AdherenceService) Evaluate(ctx context.Context, userID, participationID string, date time.Time) (*models.DailyVerdict, error) {
	return s.evaluate(ctx, userID, participationID, utils.Day(date), triggerEvaluate)
}

func (s *AdherenceService) evaluate(ctx context.Context, userID, participationID string, date time.Time, trigger string) (*models.DailyVerdict, error) {
	var (
		out    *models.DailyVerdict
		roomID string
	)
	err := s.runner.run(ctx, "evaluate", participationKey(participationID), func(tx store.Repository, now time.Time) error {
		p, err := ownedParticipation(ctx, tx, userID, participationID)
		if err != nil {
			return err
		}
		if p.Status != models.StatusActive {
			return newError(ErrNotActive, fmt.Sprintf("participation is %s", p.Status), nil)
		}
		if !p.InRange(date) {
			return newError(ErrDateOutOfRange, fmt.Sprintf("%s is outside %s..%s",
				utils.FormatDate(date), utils.FormatDate(p.StartDate), utils.FormatDate(utils.AddDays(p.EndDate(), -1))), nil)
		}
		loc := p.Location()
		if date.After(utils.BucketDate(now, p.CutoffTime, loc)) {
			return newError(ErrDateInFuture, fmt.Sprintf("%s has not started yet", utils.FormatDate(date)), nil)
		}

		existing, err := tx.GetVerdict(ctx, p.ID, date)
		switch {
		case err == nil && existing.VerdictType.Final():
			return newError(ErrAlreadyFinalized, fmt.Sprintf("%s is already %s", utils.FormatDate(date), existing.VerdictType), nil)
		case err != nil && !isNotFound(err):
			return err
		}

		room, err := s.catalog.Get(p.RoomID)
		if err != nil {
			return err
		}
		from, to := utils.BucketWindow(date, p.CutoffTime, loc)
		totals, err := tx.SumMeals(ctx, p.UserID, from, to)
		if err != nil {
			return err
		}

		v := &models.DailyVerdict{
			ParticipationID:     p.ID,
			Date:                date,
			VerdictType:         models.VerdictPending,
			TotalCaloriesLogged: totals.Calories,
			MealCount:           totals.MealCount,
		}
		if existing != nil {
			v.ID = existing.ID
		}

		if now.Before(to) {
			if err := tx.SaveVerdict(ctx, v); err != nil {
				return err
			}
			out = v
			return nil
		}

		cheat, err := cheatAccepted(ctx, tx, p.ID, date)
		if err != nil {
			return err
		}
		v.VerdictType = Decide(cheat, totals, p.MinDailyMeals, room)
		at := now.UTC()
		v.FinalizedAt = &at
		if err := s.streaks.record(ctx, tx, p, v, now); err != nil {
			return err
		}
		out, roomID = v, p.RoomID
		return nil
	})
	if err != nil {
		return nil, err
	}

	verdictsTotal.WithLabelValues(string(out.VerdictType), trigger).Inc()
	if out.VerdictType.Final() {
		log.Printf("[Adherence] ⚖️ %s %s → %s (%d kcal, %d meal(s), %s)",
			participationID, utils.FormatDate(date), out.VerdictType, out.TotalCaloriesLogged, out.MealCount, trigger)
		if s.onCommit != nil {
			s.onCommit(roomID)
		}
	}
	return out, nil
}

// Preview reports the day's totals and the verdict they would produce, without writing.
func (s *AdherenceService) Preview(ctx context.Context, userID, participationID string, date time.Time) (*Preview, error) {
	date = utils.Day(date)
	r := s.runner.store
	p, err := ownedParticipation(ctx, r, userID, participationID)
	if err != nil {
		return nil, err
	}
	if !p.InRange(date) {
		return nil, newError(ErrDateOutOfRange, fmt.Sprintf("%s is outside the challenge period", utils.FormatDate(date)), nil)
	}
	room, err := s.catalog.Get(p.RoomID)
	if err != nil {
		return nil, err
	}

	loc := p.Location()
	from, to := utils.BucketWindow(date, p.CutoffTime, loc)
	out := &Preview{
		ParticipationID: p.ID,
		Date:            utils.FormatDate(date),
		TargetCalorie:   room.TargetCalorie,
		Tolerance:       room.Tolerance,
		MinDailyMeals:   p.MinDailyMeals,
		WindowStart:     from,
		CutoffAt:        to,
	}

	if v, err := r.GetVerdict(ctx, p.ID, date); err == nil && v.VerdictType.Final() {
		out.VerdictType, out.Final = v.VerdictType, true
		out.TotalCaloriesLogged, out.MealCount = v.TotalCaloriesLogged, v.MealCount
		return out, nil
	} else if err != nil && !isNotFound(err) {
		return nil, err
	}

	totals, err := r.SumMeals(ctx, p.UserID, from, to)
	if err != nil {
		return nil, err
	}
	cheat, err := cheatAccepted(ctx, r, p.ID, date)
	if err != nil {
		return nil, err
	}
	out.TotalCaloriesLogged, out.MealCount = totals.Calories, totals.MealCount
	out.VerdictType = Decide(cheat, totals, p.MinDailyMeals, room)
	return out, nil
}

// FinalizeDue finalizes the most recent date whose cutoff has passed for one
// ACTIVE participation, if that date is in range and still open. Older open
// dates are left as gaps. It returns nil when there was nothing to do.
func (s *AdherenceService) FinalizeDue(ctx context.Context, p *models.Participation, now time.Time) (*models.DailyVerdict, error) {
	due := utils.LatestDueDate(now, p.CutoffTime, p.Location())
	if !p.InRange(due) {
		return nil, nil
	}
	if v, err := s.runner.store.GetVerdict(ctx, p.ID, due); err == nil && v.VerdictType.Final() {
		return nil, nil
	} else if err != nil && !isNotFound(err) {
		return nil, err
	}
	v, err := s.evaluate(ctx, "", p.ID, due, triggerSweep)
	if err != nil {
		if KindOf(err) == KindConflict {
			// Finalized or closed by a concurrent request after our read.
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// cheatAccepted reports whether a cheat day was granted for date.
func cheatAccepted(ctx context.Context, r store.Repository, participationID string, date time.Time) (bool, error) {
	usage, err := r.GetCheatUsage(ctx, participationID, utils.WeekStart(date))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return usage.HasDate(date), nil
}
