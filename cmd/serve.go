// cmd/serve.go
package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calorie-challenge-engine/handlers"
	"calorie-challenge-engine/services"
	"calorie-challenge-engine/workers"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the cutoff sweep and the meal sync worker",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, s, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		engine.Close()
		if err := s.Close(); err != nil {
			log.Printf("⚠️ Store close failed: %v", err)
		}
	}()

	sink, err := reportSink(ctx, cfg.Report)
	if err != nil {
		return err
	}
	sweeper := services.NewSweeper(engine, sink)
	if err := sweeper.Start(ctx, cfg.SweepInterval); err != nil {
		return err
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			log.Printf("⚠️ Sweep scheduler shutdown: %v", err)
		}
	}()

	if cfg.MealSyncURL != "" {
		worker := workers.NewMealSyncWorker(engine.Meals, cfg.MealSyncURL, cfg.MealSyncPath, cfg.MealSyncToken, cfg.MealSyncInterval)
		worker.Start(ctx)
	} else {
		log.Println("ℹ️  MEAL_SYNC_URL not set — meals arrive via POST /api/v1/internal/meals only")
	}

	app := handlers.NewApp(handlers.AppConfig{
		ServiceToken:   cfg.ServiceToken,
		MealSyncToken:  cfg.MealSyncToken,
		AllowedOrigins: cfg.AllowedOrigins,
	}, engine)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}
