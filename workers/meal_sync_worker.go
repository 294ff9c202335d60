// workers/meal_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/services"
	"calorie-challenge-engine/utils"
)

// MealIngester stores meal events idempotently and reports how many were new.
type MealIngester interface {
	Ingest(ctx context.Context, meals []models.MealLog) (int, error)
}

// RemoteMeal matches one entry of the meal-logging service's change feed.
type RemoteMeal struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MealType  string    `json:"meal_type"`
	Calories  int       `json:"calories"`
	EatenAt   time.Time `json:"eaten_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetMealChangesResponse is the top-level structure of the change feed.
type GetMealChangesResponse struct {
	Meals []RemoteMeal `json:"meals"`
}

// MealSyncWorker pulls new meals from the meal-logging service on an interval.
type MealSyncWorker struct {
	meals        MealIngester
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8600"
	endpointPath string // e.g., "/api/v1/internal/meals"
	serviceToken string
	httpClient   *http.Client
	batchSize    int

	mu    sync.Mutex
	since time.Time
}

func NewMealSyncWorker(meals MealIngester, baseURL, endpointPath, serviceToken string, interval time.Duration) *MealSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MealSyncWorker{
		meals:        meals,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		batchSize:    services.MaxMealBatch,
	}
}

func (w *MealSyncWorker) Start(ctx context.Context) {
	log.Printf("🔁 Starting Meal Sync Worker (%s%s every %s)…", w.baseURL, w.endpointPath, w.interval)
	go w.run(ctx)
}

func (w *MealSyncWorker) run(ctx context.Context) {
	// Initial sync from the beginning of time; re-delivered meals upsert on ExternalID.
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial meal sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ Meal sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Meal Sync Worker stopped")
			return
		}
	}
}

// Since is the high-water mark the next request starts from.
func (w *MealSyncWorker) Since() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.since
}

// SyncOnce fetches meals changed since the last watermark and ingests them.
// It returns the number of meals that were new.
func (w *MealSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since := w.Since()
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid meal service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request to meal service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[MealSync] ❌ Meal service returned %d for %s: %s", resp.StatusCode, finalURL, body)
		return 0, fmt.Errorf("meal service non-200 response: %d: %s", resp.StatusCode, body)
	}

	var response GetMealChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode meal service response: %w", err)
	}
	if len(response.Meals) == 0 {
		return 0, nil
	}

	feed := response.Meals
	sort.SliceStable(feed, func(i, j int) bool { return feed[i].UpdatedAt.Before(feed[j].UpdatedAt) })

	created := 0
	for start := 0; start < len(feed); start += w.batchSize {
		end := min(start+w.batchSize, len(feed))
		meals := make([]models.MealLog, 0, end-start)
		for _, m := range feed[start:end] {
			meals = append(meals, models.MealLog{
				ExternalID: m.ID,
				UserID:     m.UserID,
				MealType:   m.MealType,
				Calories:   m.Calories,
				EatenAt:    m.EatenAt,
			})
		}

		n, err := w.meals.Ingest(ctx, meals)
		if err != nil {
			return created, fmt.Errorf("ingest meals %d-%d of %d: %w", start+1, end, len(feed), err)
		}
		created += n
		w.advance(watermark(feed, end))
	}

	log.Printf("[MealSync] ✅ Synced %d meal(s) (%d new). Watermark: %s",
		len(feed), created, w.Since().UTC().Format(time.RFC3339))
	return created, nil
}

// watermark is the newest updated_at fully covered by feed[:done]. Meals
// sharing a timestamp with feed[done] are left for the next request.
func watermark(feed []RemoteMeal, done int) time.Time {
	if done >= len(feed) {
		return feed[len(feed)-1].UpdatedAt
	}
	next := feed[done].UpdatedAt
	for i := done - 1; i >= 0; i-- {
		if feed[i].UpdatedAt.Before(next) {
			return feed[i].UpdatedAt
		}
	}
	return time.Time{}
}

func (w *MealSyncWorker) advance(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.After(w.since) {
		w.since = t
	}
}
