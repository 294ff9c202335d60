package models

import "time"

// VerdictType is the judgment for one participant-day.
type VerdictType string

const (
	VerdictPending VerdictType = "PENDING"
	VerdictSuccess VerdictType = "SUCCESS"
	VerdictFailure VerdictType = "FAILURE"
	VerdictCheat   VerdictType = "CHEAT"
)

func (v VerdictType) Valid() bool {
	switch v {
	case VerdictPending, VerdictSuccess, VerdictFailure, VerdictCheat:
		return true
	}
	return false
}

// Final reports whether the verdict is immutable.
func (v VerdictType) Final() bool {
	switch v {
	case VerdictSuccess, VerdictFailure, VerdictCheat:
		return true
	case VerdictPending:
		return false
	}
	return false
}

// DailyVerdict is the adherence judgment of one participation for one calendar day.
type DailyVerdict struct {
	ID                  string      `gorm:"primaryKey;type:uuid" json:"id"`
	ParticipationID     string      `gorm:"not null;uniqueIndex:idx_verdict_participation_date" json:"participation_id"`
	Date                time.Time   `gorm:"type:date;not null;uniqueIndex:idx_verdict_participation_date" json:"date"`
	VerdictType         VerdictType `gorm:"type:varchar(16);not null" json:"verdict_type"`
	TotalCaloriesLogged int         `json:"total_calories_logged"`
	MealCount           int         `json:"meal_count"`
	FinalizedAt         *time.Time  `json:"finalized_at,omitempty"`

	Timestamps
}
