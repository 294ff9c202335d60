package config

import (
	"fmt"
	"os"

	"calorie-challenge-engine/models"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

type roomsFile struct {
	Rooms []models.ChallengeRoom `yaml:"rooms"`
}

// LoadRooms reads the challenge room catalog from a YAML file.
func LoadRooms(path string) ([]models.ChallengeRoom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms file %s: %w", path, err)
	}
	return ParseRooms(data)
}

// ParseRooms decodes and validates a room catalog. Rooms without an id get the
// slug of their name.
func ParseRooms(data []byte) ([]models.ChallengeRoom, error) {
	var f roomsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rooms: %w", err)
	}

	seen := make(map[string]bool, len(f.Rooms))
	for i := range f.Rooms {
		r := &f.Rooms[i]
		if r.ID == "" {
			r.ID = slug.Make(r.Name)
		}
		switch {
		case r.ID == "":
			return nil, fmt.Errorf("room #%d: id or name is required", i+1)
		case r.TargetCalorie <= 0:
			return nil, fmt.Errorf("room %s: target_calorie must be > 0", r.ID)
		case r.Tolerance < 0:
			return nil, fmt.Errorf("room %s: tolerance must be >= 0", r.ID)
		case seen[r.ID]:
			return nil, fmt.Errorf("room %s: duplicate id", r.ID)
		}
		if r.Name == "" {
			r.Name = r.ID
		}
		seen[r.ID] = true
	}
	return f.Rooms, nil
}
