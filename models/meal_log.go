package models

import "time"

// MealLog is one meal event received from the meal-logging service.
type MealLog struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"external_id" validate:"required,max=128"` // id in the meal-logging service
	UserID     string    `gorm:"not null;index:idx_meal_user_eaten" json:"user_id" validate:"required"`
	MealType   string    `gorm:"type:varchar(16)" json:"meal_type" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	Calories   int       `json:"calories" validate:"gte=0,lte=20000"`
	EatenAt    time.Time `gorm:"not null;index:idx_meal_user_eaten" json:"eaten_at" validate:"required"`

	Timestamps
}

// MealTotals aggregates the meals of one participant-day bucket.
type MealTotals struct {
	Calories  int `json:"total_calories"`
	MealCount int `json:"meal_count"`
}
