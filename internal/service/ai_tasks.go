package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/ilmhub/lms-ai-back/internal/cache"
	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/policy"
	"github.com/ilmhub/lms-ai-back/internal/quality"
)

const (
	defaultQuizQuestions = 5
	maxQuizQuestionCount = 10
	jsonOnlyInstruction  = "Respond with a single JSON object. Do not use markdown code fences or any text outside the JSON."
)

type AITasksDependencies struct {
	Router     *inference.ModelRouter
	Client     inference.TextGenerator
	Cache      cache.ResponseCache
	Validator  *quality.OutputValidator
	PromptsDir string
	Logger     *log.Logger
}

// AITasksService runs the content pipeline tasks the CMS calls for: masking,
// prompt rendering, cache lookup, generation, and output validation.
type AITasksService struct {
	router     *inference.ModelRouter
	client     inference.TextGenerator
	cache      cache.ResponseCache
	validator  *quality.OutputValidator
	promptsDir string
	logger     *log.Logger

	tmplMu    sync.RWMutex
	templates map[string]*template.Template
}

func NewAITasksService(deps AITasksDependencies) *AITasksService {
	promptsDir := strings.TrimSpace(deps.PromptsDir)
	if promptsDir == "" {
		promptsDir = "prompts"
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryResponseCache(cache.Config{})
	}
	if deps.Validator == nil {
		deps.Validator = quality.NewOutputValidator()
	}
	if deps.Router == nil {
		deps.Router = inference.NewModelRouter(inference.ModelRouterConfig{})
	}

	return &AITasksService{
		router:     deps.Router,
		client:     deps.Client,
		cache:      deps.Cache,
		validator:  deps.Validator,
		promptsDir: promptsDir,
		logger:     deps.Logger,
		templates:  make(map[string]*template.Template),
	}
}

type ContentInput struct {
	ContentType string
	ContentID   string
	Title       string
	Text        string
	AgeTier     domain.AgeTier
}

type QuizInput struct {
	ContentInput
	QuestionCount int
}

type ModerationResult struct {
	Score          float64  `json:"score"`
	Flags          []string `json:"flags"`
	Recommendation string   `json:"recommendation"`
	Reasoning      string   `json:"reasoning"`
}

type SummaryResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

type TagsResult struct {
	Subject    string   `json:"subject"`
	Difficulty string   `json:"difficulty"`
	AgeTier    string   `json:"age_tier"`
	Keywords   []string `json:"keywords"`
}

type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

type QuizResult struct {
	Questions []QuizQuestion `json:"questions"`
}

func (s *AITasksService) Moderate(ctx context.Context, input ContentInput) (ModerationResult, error) {
	var result ModerationResult
	err := s.runTask(ctx, inference.TaskModeration, "moderation_v1.tmpl", input, nil, &result)
	return result, err
}

func (s *AITasksService) Summarize(ctx context.Context, input ContentInput) (SummaryResult, error) {
	var result SummaryResult
	err := s.runTask(ctx, inference.TaskSummary, "summary_v1.tmpl", input, nil, &result)
	return result, err
}

func (s *AITasksService) SuggestTags(ctx context.Context, input ContentInput) (TagsResult, error) {
	var result TagsResult
	err := s.runTask(ctx, inference.TaskTags, "tags_v1.tmpl", input, nil, &result)
	return result, err
}

func (s *AITasksService) GenerateQuiz(ctx context.Context, input QuizInput) (QuizResult, error) {
	count := input.QuestionCount
	if count <= 0 {
		count = defaultQuizQuestions
	}
	if count > maxQuizQuestionCount {
		count = maxQuizQuestionCount
	}

	var result QuizResult
	err := s.runTask(ctx, inference.TaskQuiz, "quiz_v1.tmpl", input.ContentInput, map[string]any{
		"QuestionCount": count,
	}, &result)
	return result, err
}

// runTask is the shared pipeline: mask, cache lookup, render, generate,
// validate, cache, decode.
func (s *AITasksService) runTask(
	ctx context.Context,
	task inference.TaskKind,
	promptFile string,
	input ContentInput,
	extra map[string]any,
	result any,
) error {
	maskedText := policy.MaskPIIString(input.Text)
	maskedTitle := policy.MaskPIIString(input.Title)
	profile := s.router.Select(task)

	signatureParts := []string{
		string(task),
		profile.Model,
		input.ContentType,
		input.ContentID,
		string(input.AgeTier),
		maskedTitle,
		maskedText,
	}
	for _, value := range extra {
		signatureParts = append(signatureParts, fmt.Sprint(value))
	}
	signature := cache.BuildSignature(signatureParts...)

	if cached, ok := s.cache.Get(ctx, signature); ok {
		if err := json.Unmarshal(cached.Value, result); err == nil {
			return nil
		}
		s.logf("discarding undecodable cache entry for task=%s", task)
	}

	data := map[string]any{
		"Title":      maskedTitle,
		"Text":       maskedText,
		"Guidelines": policy.PromptGuidelines(input.AgeTier),
	}
	for key, value := range extra {
		data[key] = value
	}
	prompt, err := s.renderPrompt(promptFile, data)
	if err != nil {
		return fmt.Errorf("render prompt for task %s: %w", task, err)
	}

	if s.client == nil || !s.client.Available() {
		return inference.ErrInferenceDisabled
	}

	generated, err := s.client.Generate(ctx, inference.GenerateRequest{
		Model:       profile.Model,
		Prompt:      prompt,
		System:      jsonOnlyInstruction,
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("generate for task %s: %w", task, err)
	}

	body, err := s.validator.ValidateTaskOutput(task, generated.Text)
	if err != nil {
		return fmt.Errorf("task %s: %w", task, err)
	}

	s.cache.Set(ctx, signature, cache.Entry{
		Value:   body,
		ModelID: firstNonEmpty(generated.ModelID, profile.Model),
	})

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode validated payload for task %s: %w", task, err)
	}
	return nil
}

func (s *AITasksService) renderPrompt(fileName string, data any) (string, error) {
	tmpl, err := s.loadTemplate(fileName)
	if err != nil {
		return "", err
	}

	buffer := bytes.NewBuffer(nil)
	if err := tmpl.Execute(buffer, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", fileName, err)
	}
	return buffer.String(), nil
}

func (s *AITasksService) loadTemplate(fileName string) (*template.Template, error) {
	s.tmplMu.RLock()
	if tmpl, ok := s.templates[fileName]; ok {
		s.tmplMu.RUnlock()
		return tmpl, nil
	}
	s.tmplMu.RUnlock()

	absolute := filepath.Join(s.promptsDir, fileName)
	content, err := os.ReadFile(absolute)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", absolute, err)
	}

	tmpl, err := template.New(fileName).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", absolute, err)
	}

	s.tmplMu.Lock()
	s.templates[fileName] = tmpl
	s.tmplMu.Unlock()

	return tmpl, nil
}

func (s *AITasksService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
