// cmd/bootstrap.go
package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"calorie-challenge-engine/config"
	"calorie-challenge-engine/services"
	"calorie-challenge-engine/store"
	"calorie-challenge-engine/utils"
)

// openStore connects the backend named by DATABASE_DRIVER.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return store.OpenPostgres(cfg.DatabaseURL)
	case config.DriverBadger:
		if cfg.BadgerPath == "" {
			log.Println("⚠️  BADGER_PATH not set, using an in-memory database — data is lost on exit")
			return store.OpenBadger(store.BadgerConfig{InMemory: true, Logger: log.Default()})
		}
		return store.OpenBadger(store.BadgerConfig{
			Path:       cfg.BadgerPath,
			SyncWrites: true,
			Logger:     log.Default(),
			GCInterval: 10 * time.Minute,
		})
	}
	return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
}

// openEngine opens the store, prepares the schema, syncs the room catalog and
// builds the engine. The caller closes both.
func openEngine(ctx context.Context, cfg *config.Config) (*services.Engine, store.Store, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	e, err := services.NewEngine(s, services.Options{
		Defaults: services.Defaults{
			Timezone:         cfg.DefaultTimezone,
			CutoffTime:       cfg.DefaultCutoffTime,
			WeeklyCheatLimit: cfg.DefaultWeeklyCheatLimit,
			MinDailyMeals:    cfg.DefaultMinDailyMeals,
		},
		MaxAttempts:         cfg.RetryMaxAttempts,
		LeaderboardCacheTTL: cfg.LeaderboardCacheTTL,
	})
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	rooms, err := config.LoadRooms(cfg.RoomsFile)
	if err != nil {
		e.Close()
		_ = s.Close()
		return nil, nil, err
	}
	if err := e.Catalog.Sync(ctx, rooms); err != nil {
		e.Close()
		_ = s.Close()
		return nil, nil, err
	}
	log.Printf("✅ Catalog ready: %d room(s)", len(e.Catalog.List()))
	return e, s, nil
}

// reportSink picks the bucket archive, the local directory, or nothing.
func reportSink(ctx context.Context, rc config.ReportConfig) (services.ReportSink, error) {
	switch {
	case rc.Bucket != "":
		archive, err := utils.NewReportArchive(ctx, utils.ReportArchiveOptions{
			Bucket:          rc.Bucket,
			Endpoint:        rc.Endpoint,
			Region:          rc.Region,
			AccessKeyID:     rc.AccessKeyID,
			AccessKeySecret: rc.AccessKeySecret,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("📦 Completed challenges archived to bucket %s", rc.Bucket)
		return archive, nil
	case rc.Dir != "":
		log.Printf("📦 Completed challenges archived to %s", rc.Dir)
		return utils.FileReportSink{Dir: rc.Dir}, nil
	}
	return nil, nil
}
