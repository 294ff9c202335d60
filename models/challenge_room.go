package models

// ChallengeRoom is a catalog entry: a calorie target every participant in the
// room is judged against. Immutable once created.
type ChallengeRoom struct {
	ID            string `gorm:"primaryKey" json:"id" yaml:"id"`
	Name          string `gorm:"not null" json:"name" yaml:"name"`
	TargetCalorie int    `gorm:"not null" json:"target_calorie" yaml:"target_calorie"` // kcal, > 0
	Tolerance     int    `gorm:"not null;default:0" json:"tolerance" yaml:"tolerance"` // ± kcal, >= 0
	Description   string `gorm:"type:text" json:"description" yaml:"description"`

	Timestamps `yaml:"-"`
}

// WithinTolerance reports whether total is within the room's calorie band.
func (r ChallengeRoom) WithinTolerance(total int) bool {
	diff := total - r.TargetCalorie
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.Tolerance
}
