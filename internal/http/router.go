package httpserver

import (
	"log"
	"net/http"

	"github.com/ilmhub/lms-ai-back/internal/http/handlers"
	"github.com/ilmhub/lms-ai-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/v1/ai/moderate", deps.API.ModerateContent)
	mux.HandleFunc("/v1/ai/summarize", deps.API.SummarizeContent)
	mux.HandleFunc("/v1/ai/tags", deps.API.SuggestTags)
	mux.HandleFunc("/v1/ai/quiz", deps.API.GenerateQuiz)
	mux.HandleFunc("/v1/jobs/stats", deps.API.JobStats)
	mux.HandleFunc("/v1/jobs/", deps.API.JobStatus)
	mux.HandleFunc("/v1/index/content", deps.API.IndexContent)
	mux.HandleFunc("/v1/search", deps.API.Search)
	mux.HandleFunc("/v1/recommendations", deps.API.Recommendations)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
