package services

import (
	"context"
	"log"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
)

type BadgeService struct {
	store store.Store
}

func NewBadgeService(s store.Store) *BadgeService {
	return &BadgeService{store: s}
}

// Award checks all badge triggers against p's statistics and stores the ones
// not yet held. It runs inside the transaction that changed p.
func (s *BadgeService) Award(ctx context.Context, tx store.Repository, p *models.Participation, now time.Time) ([]string, error) {
	var awarded []string
	for _, trigger := range models.BadgeTriggers {
		if !s.meetsThreshold(p, trigger.Threshold) {
			continue
		}
		created, err := tx.AwardBadge(ctx, &models.UserBadge{
			UserID:          p.UserID,
			ParticipationID: p.ID,
			BadgeCode:       trigger.Code,
			AwardedAt:       now.UTC(),
		})
		if err != nil {
			return awarded, err
		}
		if created {
			awarded = append(awarded, trigger.Code)
			badgesAwardedTotal.WithLabelValues(trigger.Code).Inc()
			log.Printf("🎖️ Badge awarded: %s → %s (participation %s)", trigger.Name, p.UserID, p.ID)
		}
	}
	return awarded, nil
}

// ListForUser returns the user's badges with their definitions.
func (s *BadgeService) ListForUser(ctx context.Context, userID string) ([]AwardedBadge, error) {
	rows, err := s.store.ListBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AwardedBadge, 0, len(rows))
	for _, b := range rows {
		def, _ := models.BadgeByCode(b.BadgeCode)
		out = append(out, AwardedBadge{UserBadge: b, Name: def.Name, Description: def.Description, Rarity: def.Rarity})
	}
	return out, nil
}

// AwardedBadge is a stored badge joined with its static definition.
type AwardedBadge struct {
	models.UserBadge
	Name        string `json:"name"`
	Description string `json:"description"`
	Rarity      string `json:"rarity"`
}

func (s *BadgeService) meetsThreshold(p *models.Participation, req map[string]int64) bool {
	for key, required := range req {
		switch key {
		case "total_success_days":
			if int64(p.TotalSuccessDays) < required {
				return false
			}
		case "max_streak_days":
			if int64(p.MaxStreakDays) < required {
				return false
			}
		case "current_streak_days":
			if int64(p.CurrentStreakDays) < required {
				return false
			}
		case "completed":
			if p.Status != models.StatusCompleted {
				return false
			}
		default:
			return false
		}
	}
	return true
}
