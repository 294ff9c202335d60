package services

import (
	"context"
	"fmt"
	"log"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"

	"github.com/go-playground/validator/v10"
)

// MaxMealBatch bounds one ingestion call.
const MaxMealBatch = 1000

// MealService ingests meal events pushed or pulled from the meal-logging
// service. Meals are idempotent on ExternalID.
type MealService struct {
	store    store.Store
	validate *validator.Validate
}

func NewMealService(s store.Store) *MealService {
	return &MealService{store: s, validate: newValidator()}
}

// Ingest validates the whole batch, then upserts it on ExternalID so edited
// meals replace their earlier version. It returns how many were new.
func (s *MealService) Ingest(ctx context.Context, meals []models.MealLog) (int, error) {
	if len(meals) == 0 {
		return 0, nil
	}
	if len(meals) > MaxMealBatch {
		return 0, invalidf("at most %d meals per batch", MaxMealBatch)
	}
	for i := range meals {
		if err := s.validate.Struct(&meals[i]); err != nil {
			ve := validationError(err)
			ve.Message = fmt.Sprintf("meal %d: %s", i, ve.Message)
			return 0, ve
		}
		meals[i].EatenAt = meals[i].EatenAt.UTC()
	}
	meals = latestPerExternalID(meals)

	created, err := s.store.SaveMeals(ctx, meals)
	if err != nil {
		return 0, err
	}
	mealsIngestedTotal.Add(float64(created))
	if created > 0 {
		log.Printf("[Meals] 🍽️ Stored %d new meal(s), %d updated", created, len(meals)-created)
	}
	return created, nil
}

// latestPerExternalID keeps the last occurrence of each ExternalID, in batch order.
func latestPerExternalID(meals []models.MealLog) []models.MealLog {
	last := make(map[string]int, len(meals))
	for i := range meals {
		last[meals[i].ExternalID] = i
	}
	if len(last) == len(meals) {
		return meals
	}
	out := make([]models.MealLog, 0, len(last))
	for i := range meals {
		if last[meals[i].ExternalID] == i {
			out = append(out, meals[i])
		}
	}
	return out
}
