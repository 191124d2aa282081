package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prismx/internal/middleware"
	"prismx/internal/models"
	"prismx/internal/services"

	"github.com/gofiber/fiber/v2"
)

func setupTestApp(t *testing.T, store services.PatternStore, sweepSchedule string) (*fiber.App, *services.PrivacyEngine) {
	t.Helper()

	engine := services.NewPrivacyEngine(context.Background(), store, services.WithBootstrapCount(0))
	handler := NewPatternHandler(engine, sweepSchedule)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Get("/health", NewHealthHandler().Handle)
	app.Post("/patterns/generate", handler.Generate)
	app.Get("/patterns/stats", handler.Stats)
	app.Get("/patterns/:id", handler.Get)
	app.Get("/patterns", handler.List)
	app.Post("/patterns/:id/validate", handler.Validate)
	app.Post("/patterns/:id/metadata", handler.AddMetadata)

	return app, engine
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)

	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("Failed to parse response %q: %v", raw, err)
	}
	return resp.StatusCode, result, string(raw)
}

// brokenStore fails every operation
type brokenStore struct{ services.PatternStore }

func (brokenStore) Insert(context.Context, *models.Pattern) error {
	return services.ErrStorageUnavailable
}
func (brokenStore) Count(context.Context) (int64, error) {
	return 0, services.ErrStorageUnavailable
}

// TestHealthHandler tests the health check endpoint
func TestHealthHandler(t *testing.T) {
	app, _ := setupTestApp(t, services.NewMemoryPatternStore(), "")

	status, body, _ := doRequest(t, app, "GET", "/health", "")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", body["status"])
	}
	if _, ok := body["timestamp"]; !ok {
		t.Error("Expected timestamp in response")
	}
}

func TestGenerate(t *testing.T) {
	app, _ := setupTestApp(t, services.NewMemoryPatternStore(), "")

	status, body, raw := doRequest(t, app, "POST", "/patterns/generate", "")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if body["success"] != true {
		t.Errorf("Expected success=true, got %v", body["success"])
	}

	pattern, ok := body["pattern"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected pattern object, got %v", body["pattern"])
	}
	for _, key := range []string{"id", "effectiveness", "resourceUsage", "timestamp", "metadata"} {
		if _, ok := pattern[key]; !ok {
			t.Errorf("Expected %q in pattern", key)
		}
	}
	if strings.Contains(raw, `"data"`) {
		t.Error("Raw pattern data must never be returned")
	}

	metadata := pattern["metadata"].(map[string]interface{})
	if metadata["source"] != "local" || metadata["usageCount"] != float64(0) {
		t.Errorf("Unexpected metadata: %v", metadata)
	}
	if tags, ok := metadata["tags"].([]interface{}); !ok || len(tags) != 0 {
		t.Errorf("Expected empty tags array, got %v", metadata["tags"])
	}
}

func TestGenerate_StorageFailure(t *testing.T) {
	app, _ := setupTestApp(t, brokenStore{}, "")

	status, body, raw := doRequest(t, app, "POST", "/patterns/generate", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", status)
	}
	if body["success"] != false || body["error"] != "Failed to generate pattern" {
		t.Errorf("Unexpected envelope: %v", body)
	}
	if strings.Contains(raw, "storage unavailable") {
		t.Error("Internal error details must not leak")
	}
}

func TestGet(t *testing.T) {
	app, engine := setupTestApp(t, services.NewMemoryPatternStore(), "")
	pattern, _ := engine.GeneratePattern(context.Background())

	t.Run("existing", func(t *testing.T) {
		status, body, _ := doRequest(t, app, "GET", "/patterns/"+pattern.ID, "")
		if status != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", status)
		}
		got := body["pattern"].(map[string]interface{})
		if got["id"] != pattern.ID {
			t.Errorf("Expected id %s, got %v", pattern.ID, got["id"])
		}
	})

	t.Run("usage count increments", func(t *testing.T) {
		_, body, _ := doRequest(t, app, "GET", "/patterns/"+pattern.ID, "")
		metadata := body["pattern"].(map[string]interface{})["metadata"].(map[string]interface{})
		if metadata["usageCount"] != float64(1) {
			t.Errorf("Expected usageCount 1 on second lookup, got %v", metadata["usageCount"])
		}
	})

	t.Run("missing", func(t *testing.T) {
		status, body, _ := doRequest(t, app, "GET", "/patterns/non-existent-id", "")
		if status != http.StatusNotFound {
			t.Fatalf("Expected status 404, got %d", status)
		}
		if body["success"] != false || body["error"] != "Pattern not found" {
			t.Errorf("Unexpected envelope: %v", body)
		}
	})
}

func TestList(t *testing.T) {
	app, engine := setupTestApp(t, services.NewMemoryPatternStore(), "")
	for i := 0; i < 12; i++ {
		if _, err := engine.GeneratePattern(context.Background()); err != nil {
			t.Fatalf("GeneratePattern failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"explicit count", "?count=3", 3},
		{"default count", "", 10},
		{"non-numeric count", "?count=abc", 10},
		{"zero count", "?count=0", 10},
		{"count above stored", "?count=50", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, raw := doRequest(t, app, "GET", "/patterns"+tt.query, "")
			if status != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", status)
			}
			patterns, ok := body["patterns"].([]interface{})
			if !ok {
				t.Fatalf("Expected patterns array, got %v", body["patterns"])
			}
			if len(patterns) != tt.want {
				t.Errorf("Expected %d patterns, got %d", tt.want, len(patterns))
			}
			if strings.Contains(raw, `"data"`) {
				t.Error("Raw pattern data must never be returned")
			}

			prev := 2.0
			for _, p := range patterns {
				eff := p.(map[string]interface{})["effectiveness"].(float64)
				if eff > prev {
					t.Errorf("Patterns not sorted by effectiveness: %f after %f", eff, prev)
				}
				prev = eff
			}
		})
	}
}

func TestValidate(t *testing.T) {
	app, engine := setupTestApp(t, services.NewMemoryPatternStore(), "")
	pattern, _ := engine.GeneratePattern(context.Background())

	status, body, _ := doRequest(t, app, "POST", "/patterns/"+pattern.ID+"/validate", "")
	if status != http.StatusOK || body["success"] != true || body["isValid"] != true {
		t.Errorf("Expected valid pattern, got %d %v", status, body)
	}

	status, body, _ = doRequest(t, app, "POST", "/patterns/non-existent-id/validate", "")
	if status != http.StatusOK || body["success"] != true || body["isValid"] != false {
		t.Errorf("Expected isValid=false for unknown id, got %d %v", status, body)
	}
}

func TestAddMetadata(t *testing.T) {
	app, engine := setupTestApp(t, services.NewMemoryPatternStore(), "")
	pattern, _ := engine.GeneratePattern(context.Background())
	path := "/patterns/" + pattern.ID + "/metadata"

	tests := []struct {
		name         string
		path         string
		body         string
		wantStatus   int
		wantError    string
		wantModified interface{}
	}{
		{"adds tags", path, `{"tags":["test","privacy"]}`, 200, "", true},
		{"repeat is unchanged", path, `{"tags":["privacy","test"]}`, 200, "", false},
		{"empty array", path, `{"tags":[]}`, 200, "", false},
		{"tags is a string", path, `{"tags":"test"}`, 400, "Tags must be an array", nil},
		{"tags is null", path, `{"tags":null}`, 400, "Tags must be an array", nil},
		{"tags missing", path, `{}`, 400, "Tags must be an array", nil},
		{"non-string elements", path, `{"tags":[1,2]}`, 400, "Tags must be an array", nil},
		{"malformed body", path, `{"tags":`, 400, "Invalid request body", nil},
		{"unknown pattern", "/patterns/non-existent-id/metadata", `{"tags":["x"]}`, 404, "Pattern not found", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := doRequest(t, app, "POST", tt.path, tt.body)
			if status != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (%v)", tt.wantStatus, status, body)
			}
			if tt.wantError != "" {
				if body["success"] != false || body["error"] != tt.wantError {
					t.Errorf("Unexpected error envelope: %v", body)
				}
				return
			}
			if body["success"] != true || body["modified"] != tt.wantModified {
				t.Errorf("Unexpected success envelope: %v", body)
			}
		})
	}

	got, ok := engine.GetPattern(context.Background(), pattern.ID)
	if !ok {
		t.Fatal("Expected the tagged pattern to still be found")
	}
	if len(got.Metadata.Tags) != 2 {
		t.Errorf("Expected 2 stored tags, got %v", got.Metadata.Tags)
	}
}

// TestAddMetadata_PatternSurvivesLaterRequests checks that ids taken from
// one request do not change once Fiber serves the next one.
func TestAddMetadata_PatternSurvivesLaterRequests(t *testing.T) {
	store := services.NewMemoryPatternStore()
	app, engine := setupTestApp(t, store, "")
	pattern, _ := engine.GeneratePattern(context.Background())

	status, _, _ := doRequest(t, app, "POST", "/patterns/"+pattern.ID+"/metadata", `{"tags":["a"]}`)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	other := strings.Repeat("f", len(pattern.ID))
	if status, _, _ := doRequest(t, app, "POST", "/patterns/"+other+"/metadata", `{"tags":["b"]}`); status != http.StatusNotFound {
		t.Fatalf("Expected status 404 for an unknown id, got %d", status)
	}
	if status, _, _ := doRequest(t, app, "GET", "/patterns/"+other, ""); status != http.StatusNotFound {
		t.Fatalf("Expected status 404 for an unknown id, got %d", status)
	}

	got, ok := engine.GetPattern(context.Background(), pattern.ID)
	if !ok {
		t.Fatal("Expected the tagged pattern to still be found")
	}
	if len(got.Metadata.Tags) != 1 || got.Metadata.Tags[0] != "a" {
		t.Errorf("Expected tags [a], got %v", got.Metadata.Tags)
	}
	if count, _ := store.Count(context.Background()); count != 1 {
		t.Errorf("Expected 1 stored pattern, got %d", count)
	}

	status, body, _ := doRequest(t, app, "GET", "/patterns/"+pattern.ID, "")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%v)", status, body)
	}
}

func TestStats(t *testing.T) {
	app, engine := setupTestApp(t, services.NewMemoryPatternStore(), "*/15 * * * *")
	for i := 0; i < 2; i++ {
		_, _ = engine.GeneratePattern(context.Background())
	}

	status, body, _ := doRequest(t, app, "GET", "/patterns/stats", "")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	stats := body["stats"].(map[string]interface{})
	if stats["count"] != float64(2) || stats["maxPatterns"] != float64(services.DefaultMaxPatterns) {
		t.Errorf("Unexpected stats: %v", stats)
	}
	if stats["sweepSchedule"] != "*/15 * * * *" {
		t.Errorf("Expected sweep schedule, got %v", stats["sweepSchedule"])
	}
	if _, ok := stats["nextSweepAt"]; !ok {
		t.Error("Expected nextSweepAt when a sweep is scheduled")
	}
}

func TestStats_SweepDisabled(t *testing.T) {
	app, _ := setupTestApp(t, services.NewMemoryPatternStore(), "")

	_, body, _ := doRequest(t, app, "GET", "/patterns/stats", "")
	stats := body["stats"].(map[string]interface{})
	if _, ok := stats["sweepSchedule"]; ok {
		t.Error("sweepSchedule should be omitted when the sweep is disabled")
	}
	if _, ok := stats["nextSweepAt"]; ok {
		t.Error("nextSweepAt should be omitted when the sweep is disabled")
	}
}

func TestStats_StorageFailure(t *testing.T) {
	app, _ := setupTestApp(t, brokenStore{}, "")

	status, body, _ := doRequest(t, app, "GET", "/patterns/stats", "")
	if status != http.StatusInternalServerError || body["success"] != false {
		t.Errorf("Expected 500 envelope, got %d %v", status, body)
	}
}
