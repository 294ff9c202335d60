// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"calorie-challenge-engine/utils"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is everything the service reads from the environment.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	BadgerPath     string

	Port           string
	ServiceToken   string
	AllowedOrigins []string

	RoomsFile string

	// Participation defaults applied when a join request omits the field.
	DefaultTimezone         string
	DefaultCutoffTime       string
	DefaultWeeklyCheatLimit int
	DefaultMinDailyMeals    int

	SweepInterval       time.Duration
	LeaderboardCacheTTL time.Duration
	RetryMaxAttempts    int

	MealSyncURL      string
	MealSyncPath     string
	MealSyncInterval time.Duration
	MealSyncToken    string

	Report ReportConfig
}

// ReportConfig points at the S3-compatible bucket completed challenges are
// archived to. Dir is a local fallback when no bucket is set.
type ReportConfig struct {
	Dir             string
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
}

// Enabled reports whether archiving is configured at all.
func (r ReportConfig) Enabled() bool {
	return r.Bucket != "" || r.Dir != ""
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseDriver:          strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		BadgerPath:              os.Getenv("BADGER_PATH"),
		Port:                    getEnv("PORT", "5200"),
		ServiceToken:            os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins:          splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RoomsFile:               getEnv("ROOMS_FILE", "rooms.yaml"),
		DefaultTimezone:         getEnv("DEFAULT_TIMEZONE", "UTC"),
		DefaultCutoffTime:       getEnv("DEFAULT_CUTOFF_TIME", "23:00"),
		DefaultWeeklyCheatLimit: 1,
		DefaultMinDailyMeals:    2,
		SweepInterval:           time.Minute,
		LeaderboardCacheTTL:     5 * time.Second,
		RetryMaxAttempts:        5,
		MealSyncURL:             os.Getenv("MEAL_SYNC_URL"),
		MealSyncPath:            getEnv("MEAL_SYNC_PATH", "/api/v1/internal/meals"),
		MealSyncInterval:        time.Minute,
		MealSyncToken:           os.Getenv("MEAL_SYNC_TOKEN"),
		Report: ReportConfig{
			Dir:             os.Getenv("REPORT_DIR"),
			Bucket:          os.Getenv("REPORT_BUCKET"),
			Endpoint:        os.Getenv("REPORT_ENDPOINT"),
			Region:          getEnv("REPORT_REGION", "auto"),
			AccessKeyID:     os.Getenv("REPORT_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("REPORT_ACCESS_KEY_SECRET"),
		},
	}

	var err error
	if cfg.DefaultWeeklyCheatLimit, err = getInt("DEFAULT_WEEKLY_CHEAT_LIMIT", cfg.DefaultWeeklyCheatLimit); err != nil {
		return nil, err
	}
	if cfg.DefaultMinDailyMeals, err = getInt("DEFAULT_MIN_DAILY_MEALS", cfg.DefaultMinDailyMeals); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts, err = getInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.LeaderboardCacheTTL, err = getDuration("LEADERBOARD_CACHE_TTL", cfg.LeaderboardCacheTTL); err != nil {
		return nil, err
	}
	if cfg.MealSyncInterval, err = getDuration("MEAL_SYNC_INTERVAL", cfg.MealSyncInterval); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at an awkward moment.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable not set")
		}
	case DriverBadger:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (use %s or %s)", c.DatabaseDriver, DriverPostgres, DriverBadger)
	}
	if _, err := utils.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	if !utils.ValidClock(c.DefaultCutoffTime) {
		return fmt.Errorf("invalid DEFAULT_CUTOFF_TIME %q (use HH:MM)", c.DefaultCutoffTime)
	}
	if c.DefaultWeeklyCheatLimit < 0 {
		return fmt.Errorf("DEFAULT_WEEKLY_CHEAT_LIMIT must be >= 0")
	}
	if c.DefaultMinDailyMeals < 1 {
		return fmt.Errorf("DEFAULT_MIN_DAILY_MEALS must be >= 1")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// ValidateServe adds the checks that only matter when serving HTTP.
func (c *Config) ValidateServe() error {
	if c.ServiceToken == "" {
		return fmt.Errorf("SERVICE_TOKEN environment variable not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

// splitList splits a comma-separated value and trims each entry.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
