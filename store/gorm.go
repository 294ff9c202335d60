package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgreSQL error codes that mean "lost a race, try again".
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// GormStore is the PostgreSQL backend.
type GormStore struct {
	gormRepo
}

type gormRepo struct {
	db   *gorm.DB
	inTx bool
}

// OpenPostgres connects to PostgreSQL at dsn.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db), nil
}

// NewGormStore wraps an open GORM handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormRepo{db: db}}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepo{db: tx, inTx: true})
	})
	return translateGormError(err)
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&models.ChallengeRoom{},
		&models.Participation{},
		&models.DailyVerdict{},
		&models.CheatUsage{},
		&models.MealLog{},
		&models.UserBadge{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateGormError folds race-type failures into ErrConflict and leaves
// everything else untouched.
func translateGormError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && retryableSQLStates[pgErr.Code] {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r *gormRepo) q(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// --- Rooms ---

func (r *gormRepo) UpsertRoom(ctx context.Context, room *models.ChallengeRoom) error {
	err := r.q(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "target_calorie", "tolerance", "description", "updated_at"}),
	}).Create(room).Error
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", room.ID, translateGormError(err))
	}
	return nil
}

func (r *gormRepo) ListRooms(ctx context.Context) ([]models.ChallengeRoom, error) {
	var rooms []models.ChallengeRoom
	if err := r.q(ctx).Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// --- Participations ---

func (r *gormRepo) CreateParticipation(ctx context.Context, p *models.Participation) error {
	if err := checkParticipation(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := r.q(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create participation: %w", translateGormError(err))
	}
	return nil
}

func (r *gormRepo) GetParticipation(ctx context.Context, id string) (*models.Participation, error) {
	q := r.q(ctx)
	if r.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Participation
	if err := q.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get participation %s: %w", id, translateGormError(err))
	}
	return &p, nil
}

func (r *gormRepo) SaveParticipation(ctx context.Context, p *models.Participation) error {
	if err := checkParticipation(p); err != nil {
		return err
	}
	if err := r.q(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("save participation %s: %w", p.ID, translateGormError(err))
	}
	return nil
}

func (r *gormRepo) FindActiveParticipation(ctx context.Context, userID string) (*models.Participation, error) {
	q := r.q(ctx)
	if r.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Participation
	err := q.Where("user_id = ? AND status = ?", userID, models.StatusActive).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active participation for %s: %w", userID, translateGormError(err))
	}
	return &p, nil
}

func (r *gormRepo) ListParticipationsByUser(ctx context.Context, userID string) ([]models.Participation, error) {
	var ps []models.Participation
	err := r.q(ctx).Where("user_id = ?", userID).
		Order("start_date DESC").Order("created_at DESC").
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("list participations for %s: %w", userID, err)
	}
	return ps, nil
}

func (r *gormRepo) ListActiveParticipations(ctx context.Context) ([]models.Participation, error) {
	var ps []models.Participation
	if err := r.q(ctx).Where("status = ?", models.StatusActive).Order("id ASC").Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("list active participations: %w", err)
	}
	return ps, nil
}

func (r *gormRepo) ListActiveByRoom(ctx context.Context, roomID string) ([]models.Participation, error) {
	var ps []models.Participation
	err := r.q(ctx).Where("room_id = ? AND status = ?", roomID, models.StatusActive).
		Order("id ASC").
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("list active participations in room %s: %w", roomID, err)
	}
	return ps, nil
}

func (r *gormRepo) ListParticipations(ctx context.Context) ([]models.Participation, error) {
	var ps []models.Participation
	if err := r.q(ctx).Order("id ASC").Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	return ps, nil
}

// --- Verdicts ---

// Dates are bound as YYYY-MM-DD strings so the server compares them as the
// date column type instead of casting through the session timezone.
func (r *gormRepo) GetVerdict(ctx context.Context, participationID string, date time.Time) (*models.DailyVerdict, error) {
	var v models.DailyVerdict
	err := r.q(ctx).Where("participation_id = ? AND date = ?", participationID, utils.FormatDate(date)).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verdict %s/%s: %w", participationID, utils.FormatDate(date), err)
	}
	return &v, nil
}

func (r *gormRepo) SaveVerdict(ctx context.Context, v *models.DailyVerdict) error {
	if err := checkVerdict(v); err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	err := r.q(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "participation_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"verdict_type", "total_calories_logged", "meal_count", "finalized_at", "updated_at",
		}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("save verdict %s/%s: %w", v.ParticipationID, utils.FormatDate(v.Date), translateGormError(err))
	}
	return nil
}

func (r *gormRepo) ListVerdicts(ctx context.Context, participationID string) ([]models.DailyVerdict, error) {
	var vs []models.DailyVerdict
	if err := r.q(ctx).Where("participation_id = ?", participationID).Order("date ASC").Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("list verdicts for %s: %w", participationID, err)
	}
	return vs, nil
}

// --- Cheat usage ---

func (r *gormRepo) GetCheatUsage(ctx context.Context, participationID string, weekStart time.Time) (*models.CheatUsage, error) {
	var u models.CheatUsage
	err := r.q(ctx).Where("participation_id = ? AND week_start = ?", participationID, utils.FormatDate(weekStart)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cheat usage %s/%s: %w", participationID, utils.FormatDate(weekStart), err)
	}
	return &u, nil
}

func (r *gormRepo) SaveCheatUsage(ctx context.Context, u *models.CheatUsage) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.q(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participation_id"}, {Name: "week_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"used_count", "used_dates", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("save cheat usage %s: %w", u.ParticipationID, translateGormError(err))
	}
	return nil
}

// --- Meals ---

func (r *gormRepo) SaveMeals(ctx context.Context, meals []models.MealLog) (int, error) {
	if len(meals) == 0 {
		return 0, nil
	}
	externalIDs := make([]string, len(meals))
	for i := range meals {
		if meals[i].ID == "" {
			meals[i].ID = uuid.NewString()
		}
		externalIDs[i] = meals[i].ExternalID
	}

	var known []string
	if err := r.q(ctx).Model(&models.MealLog{}).
		Where("external_id IN ?", externalIDs).
		Pluck("external_id", &known).Error; err != nil {
		return 0, fmt.Errorf("look up %d meal(s): %w", len(meals), err)
	}
	seen := make(map[string]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}
	created := 0
	for _, id := range externalIDs {
		if !seen[id] {
			seen[id] = true
			created++
		}
	}

	err := r.q(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "meal_type", "calories", "eaten_at", "updated_at"}),
	}).Create(&meals).Error
	if err != nil {
		return 0, fmt.Errorf("save %d meal(s): %w", len(meals), translateGormError(err))
	}
	return created, nil
}

func (r *gormRepo) SumMeals(ctx context.Context, userID string, from, to time.Time) (models.MealTotals, error) {
	var totals models.MealTotals
	err := r.q(ctx).Model(&models.MealLog{}).
		Select("COALESCE(SUM(calories), 0) AS calories, COUNT(*) AS meal_count").
		Where("user_id = ? AND eaten_at >= ? AND eaten_at < ?", userID, from.UTC(), to.UTC()).
		Scan(&totals).Error
	if err != nil {
		return models.MealTotals{}, fmt.Errorf("sum meals for %s: %w", userID, err)
	}
	return totals, nil
}

// --- Badges ---

func (r *gormRepo) AwardBadge(ctx context.Context, b *models.UserBadge) (bool, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	res := r.q(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participation_id"}, {Name: "badge_code"}},
		DoNothing: true,
	}).Create(b)
	if res.Error != nil {
		return false, fmt.Errorf("award badge %s: %w", b.BadgeCode, translateGormError(res.Error))
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepo) ListBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	if err := r.q(ctx).Where("user_id = ?", userID).Order("awarded_at ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("list badges for %s: %w", userID, err)
	}
	return badges, nil
}
