package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// LeaderboardPage is one window of a room's ranking.
type LeaderboardPage struct {
	RoomID            string                    `json:"room_id"`
	Entries           []models.LeaderboardEntry `json:"entries"`
	TotalParticipants int                       `json:"total_participants"`
	MyRank            int                       `json:"my_rank"` // 0 when the caller is not ranked
	Limit             int                       `json:"limit"`
	Offset            int                       `json:"offset"`
}

// LeaderboardService ranks the ACTIVE participations of a room. Full rankings
// are cached per room for a short TTL and dropped whenever a commit touches
// the room, so reads are near-real-time.
type LeaderboardService struct {
	store   store.Store
	catalog *CatalogService
	ttl     time.Duration
	cache   *ristretto.Cache[string, []models.LeaderboardEntry]
	group   singleflight.Group

	// settle closes an expired participation before it is ranked.
	settle func(ctx context.Context, p *models.Participation) (*models.Participation, error)
}

func NewLeaderboardService(s store.Store, catalog *CatalogService, ttl time.Duration) (*LeaderboardService, error) {
	l := &LeaderboardService{store: s, catalog: catalog, ttl: ttl}
	if ttl > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []models.LeaderboardEntry]{
			NumCounters: 10_000,
			MaxCost:     1 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create leaderboard cache: %w", err)
		}
		l.cache = cache
	}
	return l, nil
}

// LessParticipation is the ranking order: current streak desc, total success
// desc, start date asc, user id asc. It is a strict total order over
// participations with distinct user ids.
func LessParticipation(a, b *models.Participation) bool {
	if a.CurrentStreakDays != b.CurrentStreakDays {
		return a.CurrentStreakDays > b.CurrentStreakDays
	}
	if a.TotalSuccessDays != b.TotalSuccessDays {
		return a.TotalSuccessDays > b.TotalSuccessDays
	}
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.Before(b.StartDate)
	}
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.ID < b.ID
}

// RankParticipations sorts ps in ranking order and assigns positional ranks from 1.
func RankParticipations(ps []models.Participation) []models.LeaderboardEntry {
	sorted := make([]models.Participation, len(ps))
	copy(sorted, ps)
	sort.SliceStable(sorted, func(i, j int) bool { return LessParticipation(&sorted[i], &sorted[j]) })

	entries := make([]models.LeaderboardEntry, len(sorted))
	for i, p := range sorted {
		entries[i] = models.LeaderboardEntry{
			Rank:              i + 1,
			UserID:            p.UserID,
			ParticipationID:   p.ID,
			CurrentStreakDays: p.CurrentStreakDays,
			TotalSuccessDays:  p.TotalSuccessDays,
			StartDate:         p.StartDate,
		}
	}
	return entries
}

// Rank returns the window [offset, offset+limit) of the room's ranking and the
// caller's position in the full ranking.
func (l *LeaderboardService) Rank(ctx context.Context, roomID, callerUserID string, limit, offset int) (*LeaderboardPage, error) {
	if _, err := l.catalog.Get(roomID); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, invalidf("offset must be >= 0")
	}
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}

	all, err := l.ranking(ctx, roomID)
	if err != nil {
		return nil, err
	}

	page := &LeaderboardPage{
		RoomID:            roomID,
		Entries:           []models.LeaderboardEntry{},
		TotalParticipants: len(all),
		Limit:             limit,
		Offset:            offset,
	}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page.Entries = append(page.Entries, all[offset:end]...)
	}
	if callerUserID != "" {
		for _, e := range all {
			if e.UserID == callerUserID {
				page.MyRank = e.Rank
				break
			}
		}
	}
	return page, nil
}

func (l *LeaderboardService) ranking(ctx context.Context, roomID string) ([]models.LeaderboardEntry, error) {
	if l.cache != nil {
		if entries, ok := l.cache.Get(roomID); ok {
			leaderboardCacheTotal.WithLabelValues("hit").Inc()
			return entries, nil
		}
		leaderboardCacheTotal.WithLabelValues("miss").Inc()
	}

	v, err, _ := l.group.Do(roomID, func() (interface{}, error) {
		ps, err := l.store.ListActiveByRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if l.settle != nil {
			active := ps[:0]
			for i := range ps {
				p, err := l.settle(ctx, &ps[i])
				if err != nil {
					log.Printf("[Leaderboard] ⚠️ Could not settle %s: %v", ps[i].ID, err)
					p = &ps[i]
				}
				if p.Status == models.StatusActive {
					active = append(active, *p)
				}
			}
			ps = active
		}
		entries := RankParticipations(ps)
		if l.cache != nil {
			l.cache.SetWithTTL(roomID, entries, int64(len(entries)+1), l.ttl)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.LeaderboardEntry), nil
}

// Invalidate drops the cached ranking of a room.
func (l *LeaderboardService) Invalidate(roomID string) {
	if l.cache != nil && roomID != "" {
		l.cache.Del(roomID)
	}
}

func (l *LeaderboardService) Close() {
	if l.cache != nil {
		l.cache.Close()
	}
}
