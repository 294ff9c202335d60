package models

import (
	"time"

	"calorie-challenge-engine/utils"
)

// ParticipationStatus is the lifecycle state of a Participation.
type ParticipationStatus string

const (
	StatusActive    ParticipationStatus = "ACTIVE"
	StatusCompleted ParticipationStatus = "COMPLETED"
	StatusAbandoned ParticipationStatus = "ABANDONED"
)

func (s ParticipationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether no further verdicts may be recorded.
func (s ParticipationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusAbandoned:
		return true
	case StatusActive:
		return false
	}
	return true
}

// Participation = one user's run of one challenge room + running statistics
type Participation struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index;uniqueIndex:idx_participations_one_active,where:status = 'ACTIVE'" json:"user_id"`
	RoomID string `gorm:"not null;index" json:"room_id"`

	// Profile at join time
	HeightCm        float64 `json:"height_cm"`
	CurrentWeightKg float64 `json:"current_weight_kg"`
	TargetWeightKg  float64 `json:"target_weight_kg"`

	// Rules
	DurationDays     int       `gorm:"not null" json:"duration_days"` // 7–365
	WeeklyCheatLimit int       `gorm:"not null;default:0" json:"weekly_cheat_limit"`
	MinDailyMeals    int       `gorm:"not null;default:1" json:"min_daily_meals"`
	CutoffTime       string    `gorm:"type:varchar(5);not null" json:"cutoff_time"` // "HH:MM", participant-local
	Timezone         string    `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	StartDate        time.Time `gorm:"type:date;not null" json:"start_date"`

	// Status
	Status      ParticipationStatus `gorm:"type:varchar(16);not null;index" json:"status"` // ACTIVE → COMPLETED | ABANDONED
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	AbandonedAt *time.Time          `json:"abandoned_at,omitempty"`

	// Running statistics (owned by the streak tracker)
	CurrentStreakDays int        `gorm:"default:0" json:"current_streak_days"`
	MaxStreakDays     int        `gorm:"default:0" json:"max_streak_days"`
	TotalSuccessDays  int        `gorm:"default:0" json:"total_success_days"`
	TotalFailureDays  int        `gorm:"default:0" json:"total_failure_days"`
	LastVerdictDate   *time.Time `gorm:"type:date" json:"last_verdict_date,omitempty"`

	Timestamps
}

// Location resolves the participant's timezone, falling back to UTC.
func (p *Participation) Location() *time.Location {
	loc, err := utils.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EndDate is the first calendar day after the challenge.
func (p *Participation) EndDate() time.Time {
	return utils.AddDays(p.StartDate, p.DurationDays)
}

// InRange reports whether date is one of the challenge's judged days.
func (p *Participation) InRange(date time.Time) bool {
	return !date.Before(p.StartDate) && date.Before(p.EndDate())
}

// Expired reports whether the challenge is over as of the participant-local day today.
func (p *Participation) Expired(today time.Time) bool {
	return !today.Before(p.EndDate())
}

// RemainingDays counts judged days left, including today.
func (p *Participation) RemainingDays(today time.Time) int {
	n := utils.DaysBetween(today, p.EndDate())
	if n < 0 {
		return 0
	}
	if n > p.DurationDays {
		return p.DurationDays
	}
	return n
}
