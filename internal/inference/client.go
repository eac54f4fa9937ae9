package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrInferenceDisabled is returned immediately when the subsystem is turned
// off by configuration. It is never retried.
var ErrInferenceDisabled = errors.New("inference disabled by configuration")

type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Model       string
}

type GenerateResult struct {
	Text    string
	ModelID string
}

type HealthStatus struct {
	Available bool     `json:"available"`
	Enabled   bool     `json:"enabled"`
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	Models    []string `json:"models"`
}

// TextGenerator and Embedder are the two narrow views consumers depend on.
type TextGenerator interface {
	Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error)
	Available() bool
}

type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	Available() bool
}

type ClientConfig struct {
	BaseURL       string
	Enabled       bool
	Model         string
	EmbedModel    string
	Timeout       time.Duration
	HealthTimeout time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RPS           float64
	HTTPClient    *http.Client
}

// Client talks to an Ollama-compatible inference server. It is stateless and
// safe to share across goroutines.
type Client struct {
	baseURL       string
	enabled       bool
	model         string
	embedModel    string
	timeout       time.Duration
	healthTimeout time.Duration
	maxRetries    int
	retryDelay    time.Duration
	limiter       *rate.Limiter
	httpClient    *http.Client
}

func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "llama3.1:8b"
	}
	if strings.TrimSpace(config.EmbedModel) == "" {
		config.EmbedModel = "nomic-embed-text"
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = 5 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.RPS <= 0 {
		config.RPS = 10
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:       strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		enabled:       config.Enabled,
		model:         config.Model,
		embedModel:    config.EmbedModel,
		timeout:       config.Timeout,
		healthTimeout: config.HealthTimeout,
		maxRetries:    config.MaxRetries,
		retryDelay:    config.RetryDelay,
		limiter:       rate.NewLimiter(rate.Limit(config.RPS), int(config.RPS)+1),
		httpClient:    config.HTTPClient,
	}
}

func (c *Client) Available() bool {
	return c.enabled && c.baseURL != ""
}

func (c *Client) DefaultModel() string {
	return c.model
}

func (c *Client) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.enabled {
		return GenerateResult{}, ErrInferenceDisabled
	}
	if strings.TrimSpace(request.Prompt) == "" {
		return GenerateResult{}, errors.New("prompt is required")
	}

	model := strings.TrimSpace(request.Model)
	if model == "" {
		model = c.model
	}
	temperature := request.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	topP := request.TopP
	if topP <= 0 {
		topP = 0.9
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	payload := map[string]any{
		"model":  model,
		"prompt": request.Prompt,
		"options": map[string]any{
			"temperature": temperature,
			"top_p":       topP,
			"num_predict": maxTokens,
		},
		"stream": false,
	}
	if strings.TrimSpace(request.System) != "" {
		payload["system"] = strings.TrimSpace(request.System)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal generate payload: %w", err)
	}

	var raw generateResponse
	if err := c.postWithRetry(ctx, "/api/generate", encoded, c.timeout, &raw); err != nil {
		return GenerateResult{}, err
	}
	text := strings.TrimSpace(raw.Response)
	if text == "" {
		return GenerateResult{}, errors.New("inference response without text output")
	}
	return GenerateResult{Text: text, ModelID: model}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if !c.enabled {
		return nil, ErrInferenceDisabled
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if strings.TrimSpace(model) == "" {
		model = c.embedModel
	}

	payload := map[string]any{
		"model": model,
		"input": texts,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embed payload: %w", err)
	}

	var raw embedResponse
	if err := c.postWithRetry(ctx, "/api/embed", encoded, c.timeout, &raw); err != nil {
		return nil, err
	}
	if len(raw.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(raw.Embeddings))
	}
	return raw.Embeddings, nil
}

func (c *Client) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Enabled: c.enabled,
		BaseURL: c.baseURL,
		Model:   c.model,
	}
	if !c.enabled {
		return status
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return status
	}
	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return status
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		return status
	}

	var raw tagsResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&raw); err != nil {
		return status
	}

	status.Available = true
	status.Models = make([]string, 0, len(raw.Models))
	for _, model := range raw.Models {
		if strings.TrimSpace(model.Name) != "" {
			status.Models = append(status.Models, model.Name)
		}
	}
	return status
}

func (c *Client) postWithRetry(
	ctx context.Context,
	path string,
	payload []byte,
	timeout time.Duration,
	target any,
) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callErr := c.post(ctx, path, payload, timeout, target)
		if callErr == nil {
			return nil
		}
		lastErr = callErr

		if !isTransientError(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := c.retryDelay * time.Duration(attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (c *Client) post(
	ctx context.Context,
	path string,
	payload []byte,
	timeout time.Duration,
	target any,
) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("create inference request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("inference timeout on %s: %w", path, err)
		}
		return fmt.Errorf("inference transport error on %s: %w", path, err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return fmt.Errorf("read inference body: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return &inferenceHTTPError{
			Path:       path,
			StatusCode: httpResponse.StatusCode,
			Message:    message,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode inference response: %w", err)
	}
	return nil
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type inferenceHTTPError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *inferenceHTTPError) Error() string {
	return fmt.Sprintf("inference %s status %d: %s", e.Path, e.StatusCode, e.Message)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInferenceDisabled) {
		return false
	}
	var httpErr *inferenceHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "tempor") || strings.Contains(message, "connection refused")
}
