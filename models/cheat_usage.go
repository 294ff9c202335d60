package models

import (
	"sort"
	"time"

	"calorie-challenge-engine/utils"
)

// CheatUsage counts cheat days consumed by a participation in one ISO week.
// Rows are created lazily on the first accepted cheat of the week.
type CheatUsage struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	ParticipationID string    `gorm:"not null;uniqueIndex:idx_cheat_participation_week" json:"participation_id"`
	WeekStart       time.Time `gorm:"type:date;not null;uniqueIndex:idx_cheat_participation_week" json:"week_start"` // Monday
	UsedCount       int       `gorm:"not null;default:0" json:"used_count"`
	UsedDates       []string  `gorm:"serializer:json;type:jsonb" json:"used_dates"` // YYYY-MM-DD

	Timestamps
}

func (u *CheatUsage) HasDate(date time.Time) bool {
	key := utils.FormatDate(date)
	for _, d := range u.UsedDates {
		if d == key {
			return true
		}
	}
	return false
}

func (u *CheatUsage) AddDate(date time.Time) {
	if u.HasDate(date) {
		return
	}
	u.UsedDates = append(u.UsedDates, utils.FormatDate(date))
	sort.Strings(u.UsedDates)
}
