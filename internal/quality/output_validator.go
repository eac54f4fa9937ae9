package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/policy"
)

var ErrOutputRejected = errors.New("model output failed validation")

const (
	maxSummaryChars  = 2400
	maxKeyPoints     = 8
	maxQuizQuestions = 10
	minQuizOptions   = 2
	maxQuizOptions   = 6
	maxKeywords      = 10
)

// ExtractJSON pulls the JSON document out of raw model output. Models wrap
// payloads in markdown code fences or preamble text often enough that callers
// never unmarshal the raw response directly.
func ExtractJSON(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrOutputRejected)
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON document in response", ErrOutputRejected)
	}
	var end int
	if trimmed[start] == '{' {
		end = strings.LastIndex(trimmed, "}")
	} else {
		end = strings.LastIndex(trimmed, "]")
	}
	if end <= start {
		return nil, fmt.Errorf("%w: unterminated JSON document", ErrOutputRejected)
	}

	candidate := json.RawMessage(trimmed[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("%w: malformed JSON document", ErrOutputRejected)
	}
	return candidate, nil
}

type OutputValidator struct{}

func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

// ValidateTaskOutput extracts and normalizes the model's raw text for the
// given task. The returned payload is safe to store as a job result.
func (v *OutputValidator) ValidateTaskOutput(task inference.TaskKind, raw string) (json.RawMessage, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	switch task {
	case inference.TaskModeration:
		return v.validateModeration(body)
	case inference.TaskSummary:
		return v.validateSummary(body)
	case inference.TaskQuiz:
		return v.validateQuiz(body)
	case inference.TaskTags:
		return v.validateTags(body)
	default:
		return nil, fmt.Errorf("%w: unsupported task %s", ErrOutputRejected, task)
	}
}

func (v *OutputValidator) validateModeration(body json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Score          float64  `json:"score"`
		Flags          []string `json:"flags"`
		Recommendation string   `json:"recommendation"`
		Reasoning      string   `json:"reasoning"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode moderation payload: %v", ErrOutputRejected, err)
	}

	flags := make([]string, 0, len(payload.Flags))
	seen := make(map[string]struct{}, len(payload.Flags))
	for _, flag := range payload.Flags {
		normalized := strings.ToLower(strings.TrimSpace(flag))
		if !policy.IsModerationFlag(normalized) {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		flags = append(flags, normalized)
	}

	recommendation := strings.ToLower(strings.TrimSpace(payload.Recommendation))
	if !policy.IsModerationRecommendation(recommendation) {
		// An unparseable disposition goes to a human, never to auto-approve.
		recommendation = "review"
	}

	reasoning := normalizeText(policy.MaskPIIString(payload.Reasoning))
	if len(reasoning) > 600 {
		reasoning = truncateAtWord(reasoning, 600)
	}

	encoded, err := json.Marshal(map[string]any{
		"score":          round2(clamp01(payload.Score)),
		"flags":          flags,
		"recommendation": recommendation,
		"reasoning":      reasoning,
	})
	if err != nil {
		return nil, fmt.Errorf("encode moderation payload: %w", err)
	}
	return encoded, nil
}

func (v *OutputValidator) validateSummary(body json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Summary   string   `json:"summary"`
		KeyPoints []string `json:"key_points"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode summary payload: %v", ErrOutputRejected, err)
	}

	summary := normalizeText(policy.MaskPIIString(payload.Summary))
	if summary == "" {
		return nil, fmt.Errorf("%w: summary text is empty", ErrOutputRejected)
	}
	if len(summary) > maxSummaryChars {
		summary = truncateAtWord(summary, maxSummaryChars)
	}

	keyPoints := make([]string, 0, len(payload.KeyPoints))
	seen := make(map[string]struct{}, len(payload.KeyPoints))
	for _, point := range payload.KeyPoints {
		normalized := normalizeText(policy.MaskPIIString(point))
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keyPoints = append(keyPoints, normalized)
		if len(keyPoints) == maxKeyPoints {
			break
		}
	}

	encoded, err := json.Marshal(map[string]any{
		"summary":    summary,
		"key_points": keyPoints,
	})
	if err != nil {
		return nil, fmt.Errorf("encode summary payload: %w", err)
	}
	return encoded, nil
}

type quizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

func (v *OutputValidator) validateQuiz(body json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Questions []quizQuestion `json:"questions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		// Some models return a bare array instead of the wrapped object.
		if arrErr := json.Unmarshal(body, &payload.Questions); arrErr != nil {
			return nil, fmt.Errorf("%w: decode quiz payload: %v", ErrOutputRejected, err)
		}
	}

	questions := make([]quizQuestion, 0, len(payload.Questions))
	for _, question := range payload.Questions {
		text := normalizeText(question.Question)
		if text == "" {
			continue
		}

		options := make([]string, 0, len(question.Options))
		optionSeen := make(map[string]struct{}, len(question.Options))
		for _, option := range question.Options {
			normalized := normalizeText(option)
			if normalized == "" {
				continue
			}
			key := strings.ToLower(normalized)
			if _, exists := optionSeen[key]; exists {
				continue
			}
			optionSeen[key] = struct{}{}
			options = append(options, normalized)
		}
		if len(options) < minQuizOptions || len(options) > maxQuizOptions {
			continue
		}
		if question.AnswerIndex < 0 || question.AnswerIndex >= len(options) {
			continue
		}

		questions = append(questions, quizQuestion{
			Question:    text,
			Options:     options,
			AnswerIndex: question.AnswerIndex,
			Explanation: normalizeText(question.Explanation),
		})
		if len(questions) == maxQuizQuestions {
			break
		}
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no valid quiz questions", ErrOutputRejected)
	}

	encoded, err := json.Marshal(map[string]any{"questions": questions})
	if err != nil {
		return nil, fmt.Errorf("encode quiz payload: %w", err)
	}
	return encoded, nil
}

func (v *OutputValidator) validateTags(body json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Subject    string   `json:"subject"`
		Difficulty string   `json:"difficulty"`
		AgeTier    string   `json:"age_tier"`
		Keywords   []string `json:"keywords"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode tags payload: %v", ErrOutputRejected, err)
	}

	subject := normalizeSubject(payload.Subject)
	difficulty := normalizeDifficulty(payload.Difficulty)
	ageTier := normalizeAgeTier(payload.AgeTier)
	if subject == "" && difficulty == "" && ageTier == "" {
		return nil, fmt.Errorf("%w: no recognized tags in payload", ErrOutputRejected)
	}

	keywords := make([]string, 0, len(payload.Keywords))
	seen := make(map[string]struct{}, len(payload.Keywords))
	for _, keyword := range payload.Keywords {
		normalized := strings.ToLower(normalizeText(keyword))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		keywords = append(keywords, normalized)
		if len(keywords) == maxKeywords {
			break
		}
	}

	encoded, err := json.Marshal(map[string]any{
		"subject":    subject,
		"difficulty": difficulty,
		"age_tier":   ageTier,
		"keywords":   keywords,
	})
	if err != nil {
		return nil, fmt.Errorf("encode tags payload: %w", err)
	}
	return encoded, nil
}

func normalizeSubject(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, subject := range policy.KnownSubjects {
		if normalized == string(subject) {
			return normalized
		}
	}
	// Common aliases the models produce.
	switch normalized {
	case "quranic studies", "qur'an", "tajweed":
		return string(domain.SubjectQuran)
	case "islamic law", "jurisprudence":
		return string(domain.SubjectFiqh)
	case "creed", "theology", "tawheed":
		return string(domain.SubjectAqeedah)
	case "prophetic biography", "sirah":
		return string(domain.SubjectSeerah)
	case "ethics", "manners", "adab":
		return string(domain.SubjectAkhlaq)
	}
	return ""
}

func normalizeDifficulty(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, difficulty := range policy.KnownDifficulties {
		if normalized == string(difficulty) {
			return normalized
		}
	}
	switch normalized {
	case "easy", "introductory", "basic":
		return string(domain.DifficultyBeginner)
	case "medium", "moderate":
		return string(domain.DifficultyIntermediate)
	case "hard", "expert":
		return string(domain.DifficultyAdvanced)
	}
	return ""
}

func normalizeAgeTier(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, tier := range policy.KnownAgeTiers {
		if normalized == string(tier) {
			return normalized
		}
	}
	switch normalized {
	case "kids", "child":
		return string(domain.AgeTierChildren)
	case "teens", "teenagers", "young adults":
		return string(domain.AgeTierYouth)
	case "adults", "grown-ups":
		return string(domain.AgeTierAdult)
	}
	return ""
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

func truncateAtWord(value string, maxLen int) string {
	if len(value) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := value[:maxLen]
	if lastSpace := strings.LastIndex(cut, " "); lastSpace > maxLen/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
