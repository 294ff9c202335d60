package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/utils"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout:
//
//	room/<id>
//	participation/<id>
//	active-user/<userID>            -> participation id
//	verdict/<participationID>/<YYYY-MM-DD>
//	cheat/<participationID>/<YYYY-MM-DD weekStart>
//	meal/<userID>/<unix nanos, 20 digits>/<id>
//	meal-ext/<externalID>           -> meal key
//	badge/<participationID>/<code>
const (
	prefixRoom          = "room/"
	prefixParticipation = "participation/"
	prefixActiveUser    = "active-user/"
	prefixVerdict       = "verdict/"
	prefixCheat         = "cheat/"
	prefixMeal          = "meal/"
	prefixMealExt       = "meal-ext/"
	prefixBadge         = "badge/"
)

// BadgerConfig holds configuration for the embedded backend.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM; used by tests and throwaway runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *log.Logger

	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration
}

// InMemoryBadgerConfig returns configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts a stdlib logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Printf("[Badger] ❌ "+strings.TrimSuffix(format, "\n"), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Printf("[Badger] ⚠️ "+strings.TrimSuffix(format, "\n"), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {}

// BadgerStore is the embedded backend. BadgerDB transactions are serializable
// with optimistic conflict detection; a losing commit surfaces as ErrConflict.
type BadgerStore struct {
	badgerRepo

	stopGC chan struct{}
	wg     sync.WaitGroup
}

type badgerRepo struct {
	db  *badger.DB
	txn *badger.Txn // nil outside Transaction
}

// OpenBadger opens (or creates) a BadgerDB-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{badgerRepo: badgerRepo{db: db}, stopGC: make(chan struct{})}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		s.wg.Add(1)
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// Keep collecting until there is nothing left worth rewriting.
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func (s *BadgerStore) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerRepo{db: s.db, txn: txn})
	})
	return translateBadgerError(err)
}

// Migrate is a no-op: the key layout needs no schema.
func (s *BadgerStore) Migrate(ctx context.Context) error {
	return nil
}

func (s *BadgerStore) Close() error {
	close(s.stopGC)
	s.wg.Wait()
	return s.db.Close()
}

func translateBadgerError(err error) error {
	if err != nil && errors.Is(err, badger.ErrConflict) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r *badgerRepo) view(fn func(txn *badger.Txn) error) error {
	if r.txn != nil {
		return fn(r.txn)
	}
	return r.db.View(fn)
}

func (r *badgerRepo) update(fn func(txn *badger.Txn) error) error {
	if r.txn != nil {
		return fn(r.txn)
	}
	return translateBadgerError(r.db.Update(fn))
}

func getJSON(txn *badger.Txn, key string, dest any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

func setJSON(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan visits every key under prefix in key order, starting at seek (or the
// prefix itself when seek is empty). fn returns false to stop early.
func scan(txn *badger.Txn, prefix, seek string, fn func(key string, val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	start := prefix
	if seek != "" {
		start = seek
	}
	for it.Seek([]byte(start)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		more, err := fn(string(item.KeyCopy(nil)), val)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func touch(ts *models.Timestamps) {
	now := time.Now().UTC()
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = now
	}
	ts.UpdatedAt = now
}

// --- Rooms ---

func (r *badgerRepo) UpsertRoom(ctx context.Context, room *models.ChallengeRoom) error {
	return r.update(func(txn *badger.Txn) error {
		var existing models.ChallengeRoom
		err := getJSON(txn, prefixRoom+room.ID, &existing)
		switch {
		case err == nil:
			room.CreatedAt = existing.CreatedAt
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("upsert room %s: %w", room.ID, err)
		}
		touch(&room.Timestamps)
		return setJSON(txn, prefixRoom+room.ID, room)
	})
}

func (r *badgerRepo) ListRooms(ctx context.Context) ([]models.ChallengeRoom, error) {
	var rooms []models.ChallengeRoom
	err := r.view(func(txn *badger.Txn) error {
		return scan(txn, prefixRoom, "", func(_ string, val []byte) (bool, error) {
			var room models.ChallengeRoom
			if err := json.Unmarshal(val, &room); err != nil {
				return false, err
			}
			rooms = append(rooms, room)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// --- Participations ---

func (r *badgerRepo) CreateParticipation(ctx context.Context, p *models.Participation) error {
	if err := checkParticipation(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.update(func(txn *badger.Txn) error {
		found, err := exists(txn, prefixParticipation+p.ID)
		if err != nil {
			return fmt.Errorf("create participation: %w", err)
		}
		if found {
			return fmt.Errorf("create participation %s: %w", p.ID, ErrConflict)
		}
		return r.putParticipation(txn, p)
	})
}

// putParticipation writes p and keeps the one-active-per-user index in step.
func (r *badgerRepo) putParticipation(txn *badger.Txn, p *models.Participation) error {
	indexKey := prefixActiveUser + p.UserID
	var indexed string
	err := getJSON(txn, indexKey, &indexed)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if p.Status == models.StatusActive {
		if indexed != "" && indexed != p.ID {
			var other models.Participation
			if err := getJSON(txn, prefixParticipation+indexed, &other); err == nil && other.Status == models.StatusActive {
				return fmt.Errorf("user %s already has active participation %s: %w", p.UserID, indexed, ErrConflict)
			}
		}
		if err := setJSON(txn, indexKey, p.ID); err != nil {
			return err
		}
	} else if indexed == p.ID {
		if err := txn.Delete([]byte(indexKey)); err != nil {
			return err
		}
	}

	touch(&p.Timestamps)
	return setJSON(txn, prefixParticipation+p.ID, p)
}

func (r *badgerRepo) GetParticipation(ctx context.Context, id string) (*models.Participation, error) {
	var p models.Participation
	err := r.view(func(txn *badger.Txn) error {
		return getJSON(txn, prefixParticipation+id, &p)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get participation %s: %w", id, err)
	}
	return &p, nil
}

func (r *badgerRepo) SaveParticipation(ctx context.Context, p *models.Participation) error {
	if err := checkParticipation(p); err != nil {
		return err
	}
	return r.update(func(txn *badger.Txn) error {
		if err := r.putParticipation(txn, p); err != nil {
			return fmt.Errorf("save participation %s: %w", p.ID, err)
		}
		return nil
	})
}

func (r *badgerRepo) FindActiveParticipation(ctx context.Context, userID string) (*models.Participation, error) {
	var p models.Participation
	err := r.view(func(txn *badger.Txn) error {
		var id string
		if err := getJSON(txn, prefixActiveUser+userID, &id); err != nil {
			return err
		}
		if err := getJSON(txn, prefixParticipation+id, &p); err != nil {
			return err
		}
		if p.Status != models.StatusActive {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active participation for %s: %w", userID, err)
	}
	return &p, nil
}

func (r *badgerRepo) listParticipations(filter func(*models.Participation) bool) ([]models.Participation, error) {
	var ps []models.Participation
	err := r.view(func(txn *badger.Txn) error {
		return scan(txn, prefixParticipation, "", func(_ string, val []byte) (bool, error) {
			var p models.Participation
			if err := json.Unmarshal(val, &p); err != nil {
				return false, err
			}
			if filter(&p) {
				ps = append(ps, p)
			}
			return true, nil
		})
	})
	return ps, err
}

func (r *badgerRepo) ListParticipationsByUser(ctx context.Context, userID string) ([]models.Participation, error) {
	ps, err := r.listParticipations(func(p *models.Participation) bool { return p.UserID == userID })
	if err != nil {
		return nil, fmt.Errorf("list participations for %s: %w", userID, err)
	}
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].StartDate.Equal(ps[j].StartDate) {
			return ps[i].StartDate.After(ps[j].StartDate)
		}
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
	return ps, nil
}

func (r *badgerRepo) ListActiveParticipations(ctx context.Context) ([]models.Participation, error) {
	ps, err := r.listParticipations(func(p *models.Participation) bool { return p.Status == models.StatusActive })
	if err != nil {
		return nil, fmt.Errorf("list active participations: %w", err)
	}
	return ps, nil
}

func (r *badgerRepo) ListActiveByRoom(ctx context.Context, roomID string) ([]models.Participation, error) {
	ps, err := r.listParticipations(func(p *models.Participation) bool {
		return p.RoomID == roomID && p.Status == models.StatusActive
	})
	if err != nil {
		return nil, fmt.Errorf("list active participations in room %s: %w", roomID, err)
	}
	return ps, nil
}

func (r *badgerRepo) ListParticipations(ctx context.Context) ([]models.Participation, error) {
	ps, err := r.listParticipations(func(*models.Participation) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	return ps, nil
}

// --- Verdicts ---

func verdictKey(participationID string, date time.Time) string {
	return prefixVerdict + participationID + "/" + utils.FormatDate(date)
}

func (r *badgerRepo) GetVerdict(ctx context.Context, participationID string, date time.Time) (*models.DailyVerdict, error) {
	var v models.DailyVerdict
	err := r.view(func(txn *badger.Txn) error {
		return getJSON(txn, verdictKey(participationID, date), &v)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verdict %s/%s: %w", participationID, utils.FormatDate(date), err)
	}
	return &v, nil
}

func (r *badgerRepo) SaveVerdict(ctx context.Context, v *models.DailyVerdict) error {
	if err := checkVerdict(v); err != nil {
		return err
	}
	return r.update(func(txn *badger.Txn) error {
		key := verdictKey(v.ParticipationID, v.Date)
		var existing models.DailyVerdict
		err := getJSON(txn, key, &existing)
		switch {
		case err == nil:
			v.ID = existing.ID
			v.CreatedAt = existing.CreatedAt
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("save verdict: %w", err)
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		touch(&v.Timestamps)
		return setJSON(txn, key, v)
	})
}

func (r *badgerRepo) ListVerdicts(ctx context.Context, participationID string) ([]models.DailyVerdict, error) {
	var vs []models.DailyVerdict
	err := r.view(func(txn *badger.Txn) error {
		return scan(txn, prefixVerdict+participationID+"/", "", func(_ string, val []byte) (bool, error) {
			var v models.DailyVerdict
			if err := json.Unmarshal(val, &v); err != nil {
				return false, err
			}
			vs = append(vs, v)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list verdicts for %s: %w", participationID, err)
	}
	return vs, nil
}

// --- Cheat usage ---

func cheatKey(participationID string, weekStart time.Time) string {
	return prefixCheat + participationID + "/" + utils.FormatDate(weekStart)
}

func (r *badgerRepo) GetCheatUsage(ctx context.Context, participationID string, weekStart time.Time) (*models.CheatUsage, error) {
	var u models.CheatUsage
	err := r.view(func(txn *badger.Txn) error {
		return getJSON(txn, cheatKey(participationID, weekStart), &u)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cheat usage %s/%s: %w", participationID, utils.FormatDate(weekStart), err)
	}
	return &u, nil
}

func (r *badgerRepo) SaveCheatUsage(ctx context.Context, u *models.CheatUsage) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return r.update(func(txn *badger.Txn) error {
		touch(&u.Timestamps)
		return setJSON(txn, cheatKey(u.ParticipationID, u.WeekStart), u)
	})
}

// --- Meals ---

func mealTimeKey(t time.Time) string {
	n := t.UnixNano()
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%020d", n)
}

func (r *badgerRepo) SaveMeals(ctx context.Context, meals []models.MealLog) (int, error) {
	if len(meals) == 0 {
		return 0, nil
	}
	created := 0
	err := r.update(func(txn *badger.Txn) error {
		created = 0
		for i := range meals {
			m := &meals[i]
			extKey := prefixMealExt + m.ExternalID

			var oldKey string
			err := getJSON(txn, extKey, &oldKey)
			switch {
			case errors.Is(err, ErrNotFound):
				if m.ID == "" {
					m.ID = uuid.NewString()
				}
				m.CreatedAt = time.Time{}
				created++
			case err != nil:
				return err
			default:
				var existing models.MealLog
				if err := getJSON(txn, oldKey, &existing); err != nil {
					return fmt.Errorf("load meal %s: %w", m.ExternalID, err)
				}
				m.ID = existing.ID
				m.CreatedAt = existing.CreatedAt
				// The time index moves with eaten_at and user_id.
				if err := txn.Delete([]byte(oldKey)); err != nil {
					return err
				}
			}

			touch(&m.Timestamps)
			key := prefixMeal + m.UserID + "/" + mealTimeKey(m.EatenAt) + "/" + m.ID
			if err := setJSON(txn, key, m); err != nil {
				return err
			}
			if err := setJSON(txn, extKey, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save %d meal(s): %w", len(meals), err)
	}
	return created, nil
}

func (r *badgerRepo) SumMeals(ctx context.Context, userID string, from, to time.Time) (models.MealTotals, error) {
	var totals models.MealTotals
	prefix := prefixMeal + userID + "/"
	err := r.view(func(txn *badger.Txn) error {
		return scan(txn, prefix, prefix+mealTimeKey(from), func(_ string, val []byte) (bool, error) {
			var m models.MealLog
			if err := json.Unmarshal(val, &m); err != nil {
				return false, err
			}
			if !m.EatenAt.Before(to) {
				return false, nil
			}
			if m.EatenAt.Before(from) {
				return true, nil
			}
			totals.Calories += m.Calories
			totals.MealCount++
			return true, nil
		})
	})
	if err != nil {
		return models.MealTotals{}, fmt.Errorf("sum meals for %s: %w", userID, err)
	}
	return totals, nil
}

// --- Badges ---

func (r *badgerRepo) AwardBadge(ctx context.Context, b *models.UserBadge) (bool, error) {
	awarded := false
	err := r.update(func(txn *badger.Txn) error {
		key := prefixBadge + b.ParticipationID + "/" + b.BadgeCode
		found, err := exists(txn, key)
		if err != nil || found {
			return err
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		awarded = true
		return setJSON(txn, key, b)
	})
	if err != nil {
		return false, fmt.Errorf("award badge %s: %w", b.BadgeCode, err)
	}
	return awarded, nil
}

func (r *badgerRepo) ListBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	err := r.view(func(txn *badger.Txn) error {
		return scan(txn, prefixBadge, "", func(_ string, val []byte) (bool, error) {
			var b models.UserBadge
			if err := json.Unmarshal(val, &b); err != nil {
				return false, err
			}
			if b.UserID == userID {
				badges = append(badges, b)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list badges for %s: %w", userID, err)
	}
	sort.SliceStable(badges, func(i, j int) bool { return badges[i].AwardedAt.Before(badges[j].AwardedAt) })
	return badges, nil
}
