package inference

import "strings"

type TaskKind string

const (
	TaskModeration TaskKind = "moderation"
	TaskSummary    TaskKind = "summary"
	TaskQuiz       TaskKind = "quiz"
	TaskTags       TaskKind = "tags"
)

type ModelProfile struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type ModelRouterConfig struct {
	DefaultModel    string
	ModerationModel string
	SummaryModel    string
	QuizModel       string
	TagsModel       string
}

// ModelRouter maps a task kind onto the model profile used for its prompts.
// Moderation and tagging run cooler than quiz generation.
type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.DefaultModel) == "" {
		config.DefaultModel = "llama3.1:8b"
	}
	if strings.TrimSpace(config.ModerationModel) == "" {
		config.ModerationModel = config.DefaultModel
	}
	if strings.TrimSpace(config.SummaryModel) == "" {
		config.SummaryModel = config.DefaultModel
	}
	if strings.TrimSpace(config.QuizModel) == "" {
		config.QuizModel = config.DefaultModel
	}
	if strings.TrimSpace(config.TagsModel) == "" {
		config.TagsModel = config.DefaultModel
	}
	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskModeration:
		return ModelProfile{Model: r.config.ModerationModel, Temperature: 0.1, MaxTokens: 600}
	case TaskSummary:
		return ModelProfile{Model: r.config.SummaryModel, Temperature: 0.3, MaxTokens: 700}
	case TaskQuiz:
		return ModelProfile{Model: r.config.QuizModel, Temperature: 0.6, MaxTokens: 1600}
	case TaskTags:
		return ModelProfile{Model: r.config.TagsModel, Temperature: 0.2, MaxTokens: 400}
	default:
		return ModelProfile{Model: r.config.DefaultModel, Temperature: 0.3, MaxTokens: 700}
	}
}
