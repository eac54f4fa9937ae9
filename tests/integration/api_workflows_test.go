package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ilmhub/lms-ai-back/internal/cache"
	"github.com/ilmhub/lms-ai-back/internal/chunker"
	httpserver "github.com/ilmhub/lms-ai-back/internal/http"
	"github.com/ilmhub/lms-ai-back/internal/http/handlers"
	"github.com/ilmhub/lms-ai-back/internal/index"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/service"
	"github.com/ilmhub/lms-ai-back/internal/taskqueue"
)

// fakeInferenceServer mimics the local model runtime: generate answers are
// routed by prompt content, embeddings are keyword-count vectors so vector
// ranking is deterministic.
func fakeInferenceServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{{"name": "llama3.1:8b"}},
		})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&request)

		var response string
		switch {
		case strings.Contains(request.Prompt, `"recommendation"`):
			response = `{"score": 0.85, "flags": [], "recommendation": "approve", "reasoning": "Well sourced."}`
		case strings.Contains(request.Prompt, "questions about"):
			response = `{"questions": [{"question": "Which month is fasting prescribed in?", "options": ["Shawwal", "Ramadan", "Rajab"], "answer_index": 1, "explanation": "Stated in the opening paragraph."}]}`
		case strings.Contains(request.Prompt, `"keywords"`):
			response = `{"subject": "fiqh", "difficulty": "beginner", "age_tier": "youth", "keywords": ["fasting", "ramadan"]}`
		default:
			response = `{"summary": "The lesson explains the fasting obligation.", "key_points": ["Fasting is the fourth pillar"]}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": response})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&request)

		embeddings := make([][]float32, 0, len(request.Input))
		for _, text := range request.Input {
			lowered := strings.ToLower(text)
			embeddings = append(embeddings, []float32{
				float32(strings.Count(lowered, "prayer")),
				float32(strings.Count(lowered, "fasting")),
				float32(strings.Count(lowered, "charity")),
				1,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	})

	return httptest.NewServer(mux)
}

func writePrompts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	templates := map[string]string{
		"moderation_v1.tmpl": "{{.Guidelines}}\nReview {{.Title}}: {{.Text}}\nFields: \"score\", \"flags\", \"recommendation\", \"reasoning\".",
		"summary_v1.tmpl":    "Summarize {{.Title}}: {{.Text}}",
		"tags_v1.tmpl":       "Classify {{.Title}}: {{.Text}}\nFields: \"subject\", \"difficulty\", \"age_tier\", \"keywords\".",
		"quiz_v1.tmpl":       "Write {{.QuestionCount}} questions about: {{.Text}}",
	}
	for name, content := range templates {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write template: %v", err)
		}
	}
	return dir
}

type runtimeOptions struct {
	inferenceURL  string
	searchEnabled bool
}

type apiRuntime struct {
	server *httptest.Server
	close  func()
}

func startRuntime(t *testing.T, opts runtimeOptions) apiRuntime {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	client := inference.NewClient(inference.ClientConfig{
		BaseURL:       opts.inferenceURL,
		Enabled:       opts.inferenceURL != "",
		Timeout:       5 * time.Second,
		HealthTimeout: time.Second,
		RetryDelay:    5 * time.Millisecond,
		RPS:           10_000,
	})
	contentIndex := index.New(index.Dependencies{
		Store:    index.NewMemoryChunkStore(),
		Embedder: client,
		Chunker:  chunker.New(0, 0),
		Logger:   logger,
	})
	queue := taskqueue.New(taskqueue.Config{
		MaxConcurrent: 2,
		JobTimeout:    5 * time.Second,
		JobTTL:        time.Hour,
		SweepInterval: time.Hour,
		Logger:        logger,
	})

	tasks := service.NewAITasksService(service.AITasksDependencies{
		Client:     client,
		Cache:      cache.NewMemoryResponseCache(cache.Config{}),
		PromptsDir: writePrompts(t),
		Logger:     logger,
	})
	search := service.NewSearchService(service.SearchDependencies{
		Index:   contentIndex,
		Enabled: opts.searchEnabled,
	})
	recommendations := service.NewRecommendationsService(service.RecommendationsDependencies{
		Searcher: contentIndex,
		Logger:   logger,
	})

	api := handlers.NewAPI(tasks, search, recommendations, queue, client)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	server := httptest.NewServer(router)
	return apiRuntime{
		server: server,
		close: func() {
			server.Close()
			queue.Close()
		},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response (%d): %s", response.StatusCode, raw)
	}
	return response.StatusCode, decoded
}

func waitForJobCompleted(t *testing.T, client *http.Client, baseURL, jobID string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, body := doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v1/jobs/%s", baseURL, jobID), nil)
		if status == http.StatusOK {
			switch body["status"] {
			case "completed":
				return body
			case "failed":
				t.Fatalf("job %s failed: %+v", jobID, body)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for job %s", jobID)
	return nil
}

func TestSyncModerationFlow(t *testing.T) {
	model := fakeInferenceServer(t)
	defer model.Close()
	runtime := startRuntime(t, runtimeOptions{inferenceURL: model.URL, searchEnabled: true})
	defer runtime.close()

	status, body := doJSON(t, runtime.server.Client(), http.MethodPost, runtime.server.URL+"/v1/ai/moderate", map[string]any{
		"content_type": "lesson",
		"content_id":   "lesson-1",
		"title":        "Fasting in Ramadan",
		"text":         "Fasting is the fourth pillar of Islam, prescribed in Ramadan (2:183).",
		"age_tier":     "youth",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%+v", status, body)
	}
	if body["recommendation"] != "approve" {
		t.Fatalf("unexpected moderation payload: %+v", body)
	}
	if score, _ := body["score"].(float64); score != 0.85 {
		t.Fatalf("unexpected score: %+v", body["score"])
	}
}

func TestAsyncQuizJobFlow(t *testing.T) {
	model := fakeInferenceServer(t)
	defer model.Close()
	runtime := startRuntime(t, runtimeOptions{inferenceURL: model.URL, searchEnabled: true})
	defer runtime.close()

	client := runtime.server.Client()
	status, body := doJSON(t, client, http.MethodPost, runtime.server.URL+"/v1/ai/quiz", map[string]any{
		"content_id":     "lesson-2",
		"text":           "Fasting is prescribed in Ramadan.",
		"question_count": 3,
		"async":          true,
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%+v", status, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected job id, got %+v", body)
	}

	done := waitForJobCompleted(t, client, runtime.server.URL, jobID)
	result, ok := done["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected quiz result in job, got %+v", done)
	}
	questions, _ := result["questions"].([]any)
	if len(questions) != 1 {
		t.Fatalf("unexpected questions payload: %+v", result)
	}

	status, stats := doJSON(t, client, http.MethodGet, runtime.server.URL+"/v1/jobs/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from stats, got %d", status)
	}
	if total, _ := stats["total_jobs"].(float64); total < 1 {
		t.Fatalf("expected at least one tracked job, got %+v", stats)
	}
}

func TestIndexSearchAndKeywordFallback(t *testing.T) {
	model := fakeInferenceServer(t)
	runtime := startRuntime(t, runtimeOptions{inferenceURL: model.URL, searchEnabled: true})
	defer runtime.close()

	client := runtime.server.Client()
	status, body := doJSON(t, client, http.MethodPost, runtime.server.URL+"/v1/index/content", map[string]any{
		"content_type": "lesson",
		"content_id":   "lesson-fasting",
		"title":        "Fasting Basics",
		"text":         "fasting fasting fasting in Ramadan",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from index, got %d body=%+v", status, body)
	}
	if chunks, _ := body["chunks"].(float64); chunks < 1 {
		t.Fatalf("expected stored chunks, got %+v", body)
	}

	status, body = doJSON(t, client, http.MethodPost, runtime.server.URL+"/v1/search", map[string]any{
		"query": "fasting",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from search, got %d body=%+v", status, body)
	}
	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected one vector result, got %+v", body)
	}

	// Losing the model runtime must degrade search to keyword matching, not
	// error.
	model.Close()
	status, body = doJSON(t, client, http.MethodPost, runtime.server.URL+"/v1/search", map[string]any{
		"query": "Fasting",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from fallback search, got %d body=%+v", status, body)
	}
	results, _ = body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected keyword fallback result, got %+v", body)
	}

	status, body = doJSON(t, client, http.MethodDelete, runtime.server.URL+"/v1/index/content?content_type=lesson&content_id=lesson-fasting", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from delete, got %d body=%+v", status, body)
	}
	status, body = doJSON(t, client, http.MethodPost, runtime.server.URL+"/v1/search", map[string]any{"query": "fasting"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 after delete, got %d", status)
	}
	if results, _ := body["results"].([]any); len(results) != 0 {
		t.Fatalf("expected removed content to disappear from search, got %+v", body)
	}
}

func TestSearchDisabledAnswers503(t *testing.T) {
	runtime := startRuntime(t, runtimeOptions{searchEnabled: false})
	defer runtime.close()

	status, body := doJSON(t, runtime.server.Client(), http.MethodPost, runtime.server.URL+"/v1/search", map[string]any{
		"query": "fasting",
	})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when search disabled, got %d body=%+v", status, body)
	}
}

func TestSyncTaskWithoutInferenceAnswers503(t *testing.T) {
	runtime := startRuntime(t, runtimeOptions{searchEnabled: true})
	defer runtime.close()

	status, body := doJSON(t, runtime.server.Client(), http.MethodPost, runtime.server.URL+"/v1/ai/summarize", map[string]any{
		"content_id": "lesson-1",
		"text":       "Some lesson text.",
	})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without inference, got %d body=%+v", status, body)
	}
}

func TestRecommendationsFlow(t *testing.T) {
	runtime := startRuntime(t, runtimeOptions{searchEnabled: false})
	defer runtime.close()

	status, body := doJSON(t, runtime.server.Client(), http.MethodPost, runtime.server.URL+"/v1/recommendations", map[string]any{
		"user_id": "learner-1",
		"enrollments": []map[string]any{
			{"user_id": "learner-1", "course_id": "quran-101", "status": "completed", "progress": 100},
		},
		"candidates": []map[string]any{
			{"id": "quran-101", "title": "Quran Reading I", "subject": "quran", "difficulty": "beginner", "enrollments": 50},
			{"id": "quran-201", "title": "Quran Reading II", "subject": "quran", "difficulty": "intermediate", "enrollments": 30},
			{"id": "fiqh-101", "title": "Fiqh of Worship", "subject": "fiqh", "difficulty": "beginner", "enrollments": 80},
		},
		"limit": 2,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from recommendations, got %d body=%+v", status, body)
	}

	recommendations, _ := body["recommendations"].([]any)
	if len(recommendations) == 0 || len(recommendations) > 2 {
		t.Fatalf("expected up to 2 recommendations, got %+v", body)
	}
	for _, item := range recommendations {
		entry, _ := item.(map[string]any)
		if entry["course_id"] == "quran-101" {
			t.Fatalf("enrolled course leaked into recommendations: %+v", body)
		}
	}
}

func TestJobStatusUnknownIDAnswers404(t *testing.T) {
	runtime := startRuntime(t, runtimeOptions{searchEnabled: false})
	defer runtime.close()

	status, _ := doJSON(t, runtime.server.Client(), http.MethodGet, runtime.server.URL+"/v1/jobs/nope", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", status)
	}
}
