package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"calorie-challenge-engine/config"
	"calorie-challenge-engine/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	rooms := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(rooms, []byte("rooms:\n  - name: Lean 1500\n    target_calorie: 1500\n    tolerance: 50\n"), 0o600))
	return &config.Config{
		DatabaseDriver:          config.DriverBadger,
		RoomsFile:               rooms,
		DefaultTimezone:         "UTC",
		DefaultCutoffTime:       "23:00",
		DefaultWeeklyCheatLimit: 1,
		DefaultMinDailyMeals:    2,
		RetryMaxAttempts:        3,
	}
}

func TestOpenEngine_Badger(t *testing.T) {
	c := testConfig(t)
	c.BadgerPath = filepath.Join(t.TempDir(), "db")

	engine, s, err := openEngine(context.Background(), c)
	require.NoError(t, err)
	defer s.Close()
	defer engine.Close()

	room, err := engine.Catalog.Get("lean-1500")
	require.NoError(t, err)
	assert.Equal(t, 1500, room.TargetCalorie)
}

func TestOpenEngine_MissingRooms(t *testing.T) {
	c := testConfig(t)
	c.RoomsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err := openEngine(context.Background(), c)
	assert.Error(t, err)
}

func TestReportSink(t *testing.T) {
	sink, err := reportSink(context.Background(), config.ReportConfig{})
	require.NoError(t, err)
	assert.Nil(t, sink)

	dir := t.TempDir()
	sink, err = reportSink(context.Background(), config.ReportConfig{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, utils.FileReportSink{Dir: dir}, sink)

	sink, err = reportSink(context.Background(), config.ReportConfig{
		Bucket: "reports", Endpoint: "http://127.0.0.1:9000", AccessKeyID: "k", AccessKeySecret: "s",
	})
	require.NoError(t, err)
	assert.IsType(t, &utils.ReportArchive{}, sink)
}
