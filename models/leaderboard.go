package models

import "time"

// LeaderboardEntry is derived on read from ACTIVE participations; never stored.
type LeaderboardEntry struct {
	Rank              int       `json:"rank"`
	UserID            string    `json:"user_id"`
	ParticipationID   string    `json:"participation_id"`
	CurrentStreakDays int       `json:"current_streak_days"`
	TotalSuccessDays  int       `json:"total_success_days"`
	StartDate         time.Time `json:"start_date"`
}
