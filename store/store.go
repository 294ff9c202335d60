// Package store persists challenge rooms, participations, daily verdicts,
// cheat usage, meal logs and badges.
//
// Two backends implement Store: PostgreSQL through GORM for production and an
// embedded BadgerDB for single-node deployments and tests. Every write path of
// the engine runs inside Store.Transaction so a verdict, its cheat usage and the
// participation statistics commit together or not at all.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calorie-challenge-engine/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("store: record not found")

	// ErrConflict marks a transaction that lost a race (serialization failure,
	// deadlock, optimistic conflict, unique-index race). Callers may retry it.
	ErrConflict = errors.New("store: transaction conflict")

	// ErrInvalidRecord rejects a write carrying an unknown status or verdict type.
	ErrInvalidRecord = errors.New("store: invalid record")
)

func checkParticipation(p *models.Participation) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: participation status %q", ErrInvalidRecord, p.Status)
	}
	return nil
}

func checkVerdict(v *models.DailyVerdict) error {
	if !v.VerdictType.Valid() {
		return fmt.Errorf("%w: verdict type %q", ErrInvalidRecord, v.VerdictType)
	}
	return nil
}

// Repository is the set of reads and writes the engine performs. Inside
// Store.Transaction, GetParticipation locks the row for the rest of the
// transaction where the backend supports row locks.
type Repository interface {
	UpsertRoom(ctx context.Context, room *models.ChallengeRoom) error
	ListRooms(ctx context.Context) ([]models.ChallengeRoom, error)

	CreateParticipation(ctx context.Context, p *models.Participation) error
	GetParticipation(ctx context.Context, id string) (*models.Participation, error)
	SaveParticipation(ctx context.Context, p *models.Participation) error
	FindActiveParticipation(ctx context.Context, userID string) (*models.Participation, error)
	ListParticipationsByUser(ctx context.Context, userID string) ([]models.Participation, error)
	ListActiveParticipations(ctx context.Context) ([]models.Participation, error)
	ListActiveByRoom(ctx context.Context, roomID string) ([]models.Participation, error)
	ListParticipations(ctx context.Context) ([]models.Participation, error)

	GetVerdict(ctx context.Context, participationID string, date time.Time) (*models.DailyVerdict, error)
	SaveVerdict(ctx context.Context, v *models.DailyVerdict) error
	// ListVerdicts returns every verdict of the participation in ascending date order.
	ListVerdicts(ctx context.Context, participationID string) ([]models.DailyVerdict, error)

	GetCheatUsage(ctx context.Context, participationID string, weekStart time.Time) (*models.CheatUsage, error)
	SaveCheatUsage(ctx context.Context, u *models.CheatUsage) error

	// SaveMeals upserts meal events on ExternalID: a known meal takes the new
	// user, type, calories and eaten_at. It returns how many were new.
	SaveMeals(ctx context.Context, meals []models.MealLog) (int, error)
	// SumMeals aggregates the user's meals eaten in [from, to).
	SumMeals(ctx context.Context, userID string, from, to time.Time) (models.MealTotals, error)

	// AwardBadge stores the badge unless the participation already holds that
	// code; it reports whether a new row was written.
	AwardBadge(ctx context.Context, b *models.UserBadge) (bool, error)
	ListBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
}

// Store is a Repository that can open transactions.
type Store interface {
	Repository

	// Transaction runs fn against a transactional Repository. fn's error rolls
	// the transaction back and is returned unchanged; a commit that loses a
	// race returns an error wrapping ErrConflict.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	// Migrate prepares the schema.
	Migrate(ctx context.Context) error

	Close() error
}
