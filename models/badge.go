package models

import (
	"time"
)

// BadgeType: static config, compiled in
type BadgeType struct {
	Code        string           `json:"code"` // e.g., "FIRST_SUCCESS", "STREAK_7"
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Rarity      string           `json:"rarity"`    // common, rare, epic, legendary
	Threshold   map[string]int64 `json:"threshold"` // e.g., {"max_streak_days": 7}
}

// UserBadge: awarded instance, at most one per participation and badge code
type UserBadge struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string    `gorm:"index;not null" json:"user_id"`
	ParticipationID string    `gorm:"not null;uniqueIndex:idx_badge_participation_code" json:"participation_id"`
	BadgeCode       string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_badge_participation_code" json:"badge_code"`
	AwardedAt       time.Time `json:"awarded_at"`
}

// BadgeTriggers are checked after every committed statistics update.
var BadgeTriggers = []BadgeType{
	{
		Code:        "FIRST_SUCCESS",
		Name:        "On Target",
		Description: "First day within the calorie band",
		Rarity:      "common",
		Threshold:   map[string]int64{"total_success_days": 1},
	},
	{
		Code:        "STREAK_7",
		Name:        "Week Strong",
		Description: "Seven successful days in a row",
		Rarity:      "rare",
		Threshold:   map[string]int64{"max_streak_days": 7},
	},
	{
		Code:        "STREAK_30",
		Name:        "Iron Discipline",
		Description: "Thirty successful days in a row",
		Rarity:      "epic",
		Threshold:   map[string]int64{"max_streak_days": 30},
	},
	{
		Code:        "CHALLENGE_COMPLETE",
		Name:        "Finisher",
		Description: "Stayed in a challenge until its last day",
		Rarity:      "rare",
		Threshold:   map[string]int64{"completed": 1},
	},
}

// BadgeByCode looks up a trigger definition.
func BadgeByCode(code string) (BadgeType, bool) {
	for _, b := range BadgeTriggers {
		if b.Code == code {
			return b, true
		}
	}
	return BadgeType{}, false
}
