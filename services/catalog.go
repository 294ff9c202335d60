package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/store"
)

// CatalogService is the read-mostly registry of challenge rooms. Rooms live in
// the store; the service keeps an in-memory copy for the hot paths.
type CatalogService struct {
	store store.Store

	mu    sync.RWMutex
	rooms map[string]models.ChallengeRoom
}

func NewCatalogService(s store.Store) *CatalogService {
	return &CatalogService{store: s, rooms: make(map[string]models.ChallengeRoom)}
}

// Sync writes the given rooms to the store and reloads the cache. Rooms already
// stored keep their targets: a room is immutable once participants reference it.
func (s *CatalogService) Sync(ctx context.Context, rooms []models.ChallengeRoom) error {
	existing, err := s.store.ListRooms(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]models.ChallengeRoom, len(existing))
	for _, r := range existing {
		known[r.ID] = r
	}

	for _, r := range rooms {
		if prev, ok := known[r.ID]; ok {
			if prev.TargetCalorie != r.TargetCalorie || prev.Tolerance != r.Tolerance {
				log.Printf("[Catalog] ⚠️ Room %s changed target/tolerance in config; keeping stored %d±%d",
					r.ID, prev.TargetCalorie, prev.Tolerance)
			}
			continue
		}
		room := r
		if err := s.store.UpsertRoom(ctx, &room); err != nil {
			return fmt.Errorf("sync room %s: %w", r.ID, err)
		}
		log.Printf("[Catalog] ✅ Registered room %s (%d±%d kcal)", room.ID, room.TargetCalorie, room.Tolerance)
	}
	return s.Reload(ctx)
}

// Reload replaces the cache with what the store holds.
func (s *CatalogService) Reload(ctx context.Context) error {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]models.ChallengeRoom, len(rooms))
	for _, r := range rooms {
		next[r.ID] = r
	}
	s.mu.Lock()
	s.rooms = next
	s.mu.Unlock()
	return nil
}

// Get returns the room or ROOM_NOT_FOUND.
func (s *CatalogService) Get(roomID string) (models.ChallengeRoom, error) {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return models.ChallengeRoom{}, newError(ErrRoomNotFound, fmt.Sprintf("challenge room %q not found", roomID), nil)
	}
	return r, nil
}

// List returns all rooms ordered by target calorie, then id.
func (s *CatalogService) List() []models.ChallengeRoom {
	s.mu.RLock()
	out := make([]models.ChallengeRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetCalorie != out[j].TargetCalorie {
			return out[i].TargetCalorie < out[j].TargetCalorie
		}
		return out[i].ID < out[j].ID
	})
	return out
}
