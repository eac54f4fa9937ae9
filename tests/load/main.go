package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
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

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	close  func()
}

func main() {
	moderationsTotal := flag.Int("moderations-total", 200, "total async moderation enqueue requests")
	moderationsConcurrency := flag.Int("moderations-concurrency", 24, "concurrency for moderation enqueue requests")
	searchTotal := flag.Int("search-total", 300, "total search requests")
	searchConcurrency := flag.Int("search-concurrency", 24, "concurrency for search requests")
	recsTotal := flag.Int("recommendations-total", 300, "total recommendation requests")
	recsConcurrency := flag.Int("recommendations-concurrency", 24, "concurrency for recommendation requests")
	statsTotal := flag.Int("stats-total", 120, "total job stats requests")
	statsConcurrency := flag.Int("stats-concurrency", 12, "concurrency for job stats requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.close()

	client := &http.Client{Timeout: 10 * time.Second}
	seedIndex(client, env.server.URL)

	moderationScenario := runScenario("moderation_enqueue", *moderationsTotal, *moderationsConcurrency, func(index int) error {
		payload := map[string]any{
			"content_type": "lesson",
			"content_id":   fmt.Sprintf("lesson-%d", index%64),
			"title":        "Fasting Basics",
			"text":         "Fasting is the fourth pillar of Islam, prescribed in Ramadan (2:183).",
			"age_tier":     "youth",
			"async":        true,
		}
		return postJSON(client, env.server.URL+"/v1/ai/moderate", payload, http.StatusAccepted)
	})

	searchScenario := runScenario("search_sync", *searchTotal, *searchConcurrency, func(index int) error {
		queries := []string{"fasting", "prayer", "charity"}
		payload := map[string]any{
			"query": queries[index%len(queries)],
			"limit": 5,
		}
		return postJSON(client, env.server.URL+"/v1/search", payload, http.StatusOK)
	})

	recsScenario := runScenario("recommendations_sync", *recsTotal, *recsConcurrency, func(index int) error {
		payload := map[string]any{
			"user_id": fmt.Sprintf("learner-%d", index%50),
			"enrollments": []map[string]any{
				{"user_id": fmt.Sprintf("learner-%d", index%50), "course_id": "quran-101", "status": "completed", "progress": 100},
			},
			"candidates": []map[string]any{
				{"id": "quran-101", "title": "Quran Reading I", "subject": "quran", "difficulty": "beginner", "enrollments": 50},
				{"id": "quran-201", "title": "Quran Reading II", "subject": "quran", "difficulty": "intermediate", "enrollments": 30},
				{"id": "fiqh-101", "title": "Fiqh of Worship", "subject": "fiqh", "difficulty": "beginner", "enrollments": 80, "is_featured": true},
				{"id": "seerah-101", "title": "Life of the Prophet", "subject": "seerah", "difficulty": "beginner", "enrollments": 65},
			},
			"limit": 3,
		}
		return postJSON(client, env.server.URL+"/v1/recommendations", payload, http.StatusOK)
	})

	statsScenario := runScenario("jobs_stats", *statsTotal, *statsConcurrency, func(index int) error {
		return getJSON(client, env.server.URL+"/v1/jobs/stats", http.StatusOK)
	})

	results := []scenarioResult{
		moderationScenario,
		searchScenario,
		recsScenario,
		statsScenario,
	}

	slo := map[string]bool{
		"moderation_enqueue_p95_le_500ms":  moderationScenario.P95MS <= 500,
		"search_p95_le_2000ms":             searchScenario.P95MS <= 2000,
		"recommendations_p95_le_1000ms":    recsScenario.P95MS <= 1000,
		"all_scenarios_error_rate_eq_zero": totalErrors(results) == 0,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

// fakeModelServer stands in for the local model runtime so the benchmark
// exercises the full pipeline without a GPU.
func fakeModelServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{{"name": "llama3.1:8b"}}})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": `{"score": 0.9, "flags": [], "recommendation": "approve", "reasoning": "Clean."}`,
		})
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

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	logger := log.New(io.Discard, "", 0)
	model := fakeModelServer()

	promptsDir, err := writeBenchmarkPrompts()
	if err != nil {
		model.Close()
		return nil, err
	}

	client := inference.NewClient(inference.ClientConfig{
		BaseURL: model.URL,
		Enabled: true,
		Timeout: 5 * time.Second,
		RPS:     100_000,
	})
	contentIndex := index.New(index.Dependencies{
		Store:    index.NewMemoryChunkStore(),
		Embedder: client,
		Chunker:  chunker.New(0, 0),
		Logger:   logger,
	})
	queue := taskqueue.New(taskqueue.Config{
		MaxConcurrent: 4,
		JobTimeout:    10 * time.Second,
		JobTTL:        time.Hour,
		SweepInterval: time.Hour,
		Logger:        logger,
	})

	tasks := service.NewAITasksService(service.AITasksDependencies{
		Client:     client,
		Cache:      cache.NewMemoryResponseCache(cache.Config{MaxEntries: 10_000}),
		PromptsDir: promptsDir,
		Logger:     logger,
	})
	search := service.NewSearchService(service.SearchDependencies{Index: contentIndex, Enabled: true})
	recommendations := service.NewRecommendationsService(service.RecommendationsDependencies{
		Searcher: contentIndex,
		Logger:   logger,
	})

	api := handlers.NewAPI(tasks, search, recommendations, queue, client)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		RateLimitRPS:   100_000,
		RateLimitBurst: 100_000,
	})

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server: server,
		close: func() {
			server.Close()
			queue.Close()
			model.Close()
			_ = os.RemoveAll(promptsDir)
		},
	}, nil
}

func writeBenchmarkPrompts() (string, error) {
	dir, err := os.MkdirTemp("", "lms-ai-prompts-")
	if err != nil {
		return "", err
	}
	templates := map[string]string{
		"moderation_v1.tmpl": "{{.Guidelines}}\nReview {{.Title}}: {{.Text}}",
		"summary_v1.tmpl":    "Summarize {{.Title}}: {{.Text}}",
		"tags_v1.tmpl":       "Classify {{.Title}}: {{.Text}}",
		"quiz_v1.tmpl":       "Write {{.QuestionCount}} questions about: {{.Text}}",
	}
	for name, content := range templates {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func seedIndex(client *http.Client, baseURL string) {
	seeds := []map[string]any{
		{"content_type": "lesson", "content_id": "lesson-fasting", "title": "Fasting Basics", "text": "fasting fasting in Ramadan"},
		{"content_type": "lesson", "content_id": "lesson-prayer", "title": "Prayer Basics", "text": "prayer prayer five daily"},
		{"content_type": "course", "content_id": "course-charity", "title": "Charity in Islam", "text": "charity zakat charity"},
	}
	for _, seed := range seeds {
		if err := postJSON(client, baseURL+"/v1/index/content", seed, http.StatusOK); err != nil {
			log.Printf("seed index failed: %v", err)
		}
	}
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func totalErrors(results []scenarioResult) int {
	total := 0
	for _, result := range results {
		total += result.Errors
	}
	return total
}

func postJSON(client *http.Client, url string, payload any, expectedStatus int) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
