package utils

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketDate_CutoffBoundary(t *testing.T) {
	seoul, err := LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	tests := []struct {
		name string
		loc  *time.Location
	}{
		{"utc", time.UTC},
		{"seoul", seoul},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
			cutoff := CutoffInstant(day, "23:00", tt.loc)

			assert.Equal(t, day, BucketDate(cutoff.Add(-time.Nanosecond), "23:00", tt.loc))
			assert.Equal(t, AddDays(day, 1), BucketDate(cutoff, "23:00", tt.loc))

			from, to := BucketWindow(day, "23:00", tt.loc)
			assert.True(t, to.Equal(cutoff))
			assert.True(t, from.Equal(CutoffInstant(AddDays(day, -1), "23:00", tt.loc)))
		})
	}
}

func TestLatestDueDate(t *testing.T) {
	cutoff := time.Date(2025, 1, 6, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), LatestDueDate(cutoff.Add(-time.Nanosecond), "23:00", time.UTC))
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), LatestDueDate(cutoff, "23:00", time.UTC))
}
