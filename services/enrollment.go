package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
	"calorie-challenge-engine/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultAge is the age RecommendedCalories assumes; the inputs carry no age.
const DefaultAge = 25

// JoinRequest is the profile and rule set a user joins a room with. Pointer
// rules fall back to the service defaults when nil.
type JoinRequest struct {
	RoomID           string  `json:"room_id" validate:"required"`
	HeightCm         float64 `json:"height_cm" validate:"gte=100,lte=250"`
	CurrentWeightKg  float64 `json:"current_weight_kg" validate:"gte=30,lte=300"`
	TargetWeightKg   float64 `json:"target_weight_kg" validate:"gte=30,lte=300"`
	DurationDays     int     `json:"duration_days" validate:"gte=7,lte=365"`
	WeeklyCheatLimit *int    `json:"weekly_cheat_limit,omitempty" validate:"omitempty,gte=0"`
	MinDailyMeals    *int    `json:"min_daily_meals,omitempty" validate:"omitempty,gte=1"`
	CutoffTime       string  `json:"cutoff_time,omitempty" validate:"omitempty,clock"`
	Timezone         string  `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// Defaults are the rules applied when a JoinRequest leaves them out.
type Defaults struct {
	Timezone         string
	CutoffTime       string
	WeeklyCheatLimit int
	MinDailyMeals    int
}

// DefaultRules is used when the engine is built without explicit defaults.
var DefaultRules = Defaults{Timezone: "UTC", CutoffTime: "23:00", WeeklyCheatLimit: 1, MinDailyMeals: 2}

// Stats is the per-participation summary shown to the participant.
type Stats struct {
	ParticipationID  string                     `json:"participation_id"`
	RoomID           string                     `json:"room_id"`
	Status           models.ParticipationStatus `json:"status"`
	CurrentStreak    int                        `json:"current_streak"`
	MaxStreak        int                        `json:"max_streak"`
	TotalSuccessDays int                        `json:"total_success_days"`
	TotalFailureDays int                        `json:"total_failure_days"`
	RemainingDays    int                        `json:"remaining_days"`
}

type EnrollmentService struct {
	runner   *txRunner
	catalog  *CatalogService
	streaks  *StreakService
	validate *validator.Validate
	defaults Defaults
	onCommit func(roomID string)

	// finalizeDue judges one due date before an expired participation is closed.
	finalizeDue func(ctx context.Context, p *models.Participation, now time.Time) (*models.DailyVerdict, error)
}

func NewEnrollmentService(runner *txRunner, catalog *CatalogService, streaks *StreakService, defaults Defaults) *EnrollmentService {
	return &EnrollmentService{
		runner:   runner,
		catalog:  catalog,
		streaks:  streaks,
		validate: newValidator(),
		defaults: defaults,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return utils.ValidClock(fl.Field().String())
	})
	return v
}

// validationError turns validator output into an INVALID_INPUT error naming
// each offending field.
func validationError(err error) *EngineError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidf("%v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is not a valid %s", fe.Field(), fe.Tag()))
		}
	}
	return newError(ErrInvalidInput, strings.Join(parts, "; "), err)
}

// RecommendedCalories estimates a daily intake target from the Harris-Benedict
// (female) BMR at a light activity factor, shifted toward the weight goal.
// Advisory only.
func RecommendedCalories(heightCm, weightKg, targetWeightKg float64, age int) int {
	bmr := 447.593 + 9.247*weightKg + 3.098*heightCm - 4.330*float64(age)
	tdee := bmr * 1.375
	switch diff := weightKg - targetWeightKg; {
	case diff > 5:
		return int(math.Round(tdee - 500))
	case diff < -2:
		return int(math.Round(tdee + 300))
	default:
		return int(math.Round(tdee))
	}
}

// Join enrolls userID in a room. A user may hold one ACTIVE participation at a
// time across all rooms.
func (s *EnrollmentService) Join(ctx context.Context, userID string, req JoinRequest) (*models.Participation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidf("user id is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	room, err := s.catalog.Get(req.RoomID)
	if err != nil {
		return nil, err
	}

	// An expired challenge the sweep has not reached yet must not block a new one.
	if existing, err := s.runner.store.FindActiveParticipation(ctx, userID); err == nil {
		if _, err := s.settleExpired(ctx, existing); err != nil {
			return nil, err
		}
	} else if !isNotFound(err) {
		return nil, err
	}

	p := &models.Participation{
		UserID:           userID,
		RoomID:           room.ID,
		HeightCm:         req.HeightCm,
		CurrentWeightKg:  req.CurrentWeightKg,
		TargetWeightKg:   req.TargetWeightKg,
		DurationDays:     req.DurationDays,
		WeeklyCheatLimit: s.defaults.WeeklyCheatLimit,
		MinDailyMeals:    s.defaults.MinDailyMeals,
		CutoffTime:       firstNonEmpty(req.CutoffTime, s.defaults.CutoffTime),
		Timezone:         firstNonEmpty(req.Timezone, s.defaults.Timezone, "UTC"),
		Status:           models.StatusActive,
	}
	if req.WeeklyCheatLimit != nil {
		p.WeeklyCheatLimit = *req.WeeklyCheatLimit
	}
	if req.MinDailyMeals != nil {
		p.MinDailyMeals = *req.MinDailyMeals
	}

	err = s.runner.run(ctx, "join", userKey(userID), func(tx store.Repository, now time.Time) error {
		existing, err := tx.FindActiveParticipation(ctx, userID)
		switch {
		case err == nil:
			return newError(ErrAlreadyEnrolled,
				fmt.Sprintf("user already has an active challenge in room %s", existing.RoomID), nil)
		case !isNotFound(err):
			return err
		}

		p.ID = uuid.NewString()
		// First day whose judgment has not fired yet in the participant's calendar.
		p.StartDate = utils.BucketDate(now, p.CutoffTime, p.Location())
		p.CurrentStreakDays, p.MaxStreakDays, p.TotalSuccessDays, p.TotalFailureDays = 0, 0, 0, 0
		p.LastVerdictDate = nil
		return tx.CreateParticipation(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	participationsTotal.WithLabelValues(string(models.StatusActive)).Inc()
	log.Printf("[Enrollment] ✅ %s joined %s (participation %s, %d days from %s)",
		userID, room.ID, p.ID, p.DurationDays, utils.FormatDate(p.StartDate))
	s.committed(p.RoomID)
	return p, nil
}

// Leave abandons an ACTIVE participation. History is kept.
func (s *EnrollmentService) Leave(ctx context.Context, userID, participationID string) (*models.Participation, error) {
	var out *models.Participation
	err := s.runner.run(ctx, "leave", participationKey(participationID), func(tx store.Repository, now time.Time) error {
		p, err := ownedParticipation(ctx, tx, userID, participationID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return newError(ErrNotActive, fmt.Sprintf("participation is already %s", p.Status), nil)
		}
		p.Status = models.StatusAbandoned
		at := now.UTC()
		p.AbandonedAt = &at
		if err := tx.SaveParticipation(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	participationsTotal.WithLabelValues(string(models.StatusAbandoned)).Inc()
	log.Printf("[Enrollment] 🚪 %s left participation %s", out.UserID, out.ID)
	s.committed(out.RoomID)
	return out, nil
}

// Extend lengthens an ACTIVE participation by extraDays.
func (s *EnrollmentService) Extend(ctx context.Context, userID, participationID string, extraDays int) (*models.Participation, error) {
	if extraDays < 1 {
		return nil, invalidf("extra_days must be >= 1")
	}
	var out *models.Participation
	err := s.runner.run(ctx, "extend", participationKey(participationID), func(tx store.Repository, now time.Time) error {
		p, err := ownedParticipation(ctx, tx, userID, participationID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return newError(ErrNotActive, fmt.Sprintf("cannot extend a %s participation", p.Status), nil)
		}
		if p.DurationDays+extraDays > 365 {
			return invalidf("duration would become %d days (max 365)", p.DurationDays+extraDays)
		}
		p.DurationDays += extraDays
		if err := tx.SaveParticipation(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Enrollment] ➕ Extended %s by %d day(s) to %d", out.ID, extraDays, out.DurationDays)
	s.committed(out.RoomID)
	return out, nil
}

// CompleteIfExpired closes an ACTIVE participation whose last day is behind
// it. It reports whether the status changed.
func (s *EnrollmentService) CompleteIfExpired(ctx context.Context, participationID string) (bool, *models.Participation, error) {
	var (
		out     *models.Participation
		changed bool
	)
	err := s.runner.run(ctx, "complete", participationKey(participationID), func(tx store.Repository, now time.Time) error {
		p, err := loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		out, changed = p, false
		if !s.streaks.Complete(p, now) {
			return nil
		}
		if s.streaks.badges != nil {
			if _, err := s.streaks.badges.Award(ctx, tx, p, now); err != nil {
				return err
			}
		}
		if err := tx.SaveParticipation(ctx, p); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	if changed {
		participationsTotal.WithLabelValues(string(models.StatusCompleted)).Inc()
		log.Printf("[Enrollment] 🏁 Completed participation %s (%d success / %d failure, max streak %d)",
			out.ID, out.TotalSuccessDays, out.TotalFailureDays, out.MaxStreakDays)
		s.committed(out.RoomID)
	}
	return changed, out, nil
}

// settleExpired closes p if its last day is behind it, judging that last day
// first when it is still open. Anything else is returned unchanged.
func (s *EnrollmentService) settleExpired(ctx context.Context, p *models.Participation) (*models.Participation, error) {
	now := s.runner.clock.Now()
	if p.Status != models.StatusActive || !p.Expired(utils.LocalDay(now, p.Location())) {
		return p, nil
	}
	if s.finalizeDue != nil {
		lastCutoff := utils.CutoffInstant(utils.AddDays(p.EndDate(), -1), p.CutoffTime, p.Location())
		if _, err := s.finalizeDue(ctx, p, lastCutoff); err != nil {
			return nil, err
		}
	}
	_, done, err := s.CompleteIfExpired(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return done, nil
}

// Get returns one of the caller's participations.
func (s *EnrollmentService) Get(ctx context.Context, userID, participationID string) (*models.Participation, error) {
	return ownedParticipation(ctx, s.runner.store, userID, participationID)
}

// MyChallenges lists the user's participations, newest first. With
// includeHistory false only the ACTIVE one (if any) is returned.
func (s *EnrollmentService) MyChallenges(ctx context.Context, userID string, includeHistory bool) ([]models.Participation, error) {
	if !includeHistory {
		p, err := s.runner.store.FindActiveParticipation(ctx, userID)
		if err != nil {
			if isNotFound(err) {
				return []models.Participation{}, nil
			}
			return nil, err
		}
		if p, err = s.settleExpired(ctx, p); err != nil {
			return nil, err
		}
		if p.Status != models.StatusActive {
			return []models.Participation{}, nil
		}
		return []models.Participation{*p}, nil
	}
	ps, err := s.runner.store.ListParticipationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range ps {
		settled, err := s.settleExpired(ctx, &ps[i])
		if err != nil {
			return nil, err
		}
		ps[i] = *settled
	}
	if ps == nil {
		ps = []models.Participation{}
	}
	return ps, nil
}

// Stats summarizes one of the caller's participations.
func (s *EnrollmentService) Stats(ctx context.Context, userID, participationID string) (*Stats, error) {
	p, err := s.Get(ctx, userID, participationID)
	if err != nil {
		return nil, err
	}
	if p, err = s.settleExpired(ctx, p); err != nil {
		return nil, err
	}
	remaining := 0
	if p.Status == models.StatusActive {
		now := s.runner.clock.Now()
		remaining = p.RemainingDays(utils.BucketDate(now, p.CutoffTime, p.Location()))
	}
	return &Stats{
		ParticipationID:  p.ID,
		RoomID:           p.RoomID,
		Status:           p.Status,
		CurrentStreak:    p.CurrentStreakDays,
		MaxStreak:        p.MaxStreakDays,
		TotalSuccessDays: p.TotalSuccessDays,
		TotalFailureDays: p.TotalFailureDays,
		RemainingDays:    remaining,
	}, nil
}

func (s *EnrollmentService) committed(roomID string) {
	if s.onCommit != nil {
		s.onCommit(roomID)
	}
}

// ownedParticipation loads a participation and checks it belongs to userID.
// An empty userID skips the check (internal callers).
func ownedParticipation(ctx context.Context, r store.Repository, userID, participationID string) (*models.Participation, error) {
	p, err := loadParticipation(ctx, r, participationID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, ErrForbidden
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
