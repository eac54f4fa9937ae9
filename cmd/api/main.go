package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilmhub/lms-ai-back/internal/cache"
	"github.com/ilmhub/lms-ai-back/internal/chunker"
	"github.com/ilmhub/lms-ai-back/internal/config"
	httpserver "github.com/ilmhub/lms-ai-back/internal/http"
	"github.com/ilmhub/lms-ai-back/internal/http/handlers"
	"github.com/ilmhub/lms-ai-back/internal/index"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/service"
	"github.com/ilmhub/lms-ai-back/internal/taskqueue"
)

func main() {
	logger := log.New(os.Stdout, "[ilm-ai] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inferenceClient := inference.NewClient(inference.ClientConfig{
		BaseURL:       cfg.InferenceBaseURL,
		Enabled:       cfg.InferenceEnabled,
		Model:         cfg.InferenceModel,
		EmbedModel:    cfg.InferenceEmbedModel,
		Timeout:       time.Duration(cfg.InferenceTimeoutMS) * time.Millisecond,
		HealthTimeout: time.Duration(cfg.InferenceHealthTimeoutMS) * time.Millisecond,
		MaxRetries:    cfg.InferenceMaxRetries,
		RetryDelay:    time.Duration(cfg.InferenceRetryDelayMS) * time.Millisecond,
		RPS:           cfg.InferenceRPS,
	})
	modelRouter := inference.NewModelRouter(inference.ModelRouterConfig{
		DefaultModel:    cfg.InferenceModel,
		ModerationModel: cfg.ModelModeration,
		SummaryModel:    cfg.ModelSummary,
		QuizModel:       cfg.ModelQuiz,
		TagsModel:       cfg.ModelTags,
	})

	chunkStore, storeCloser := setupChunkStore(ctx, cfg, logger)
	defer storeCloser()

	responseCache, cacheCloser := setupResponseCache(ctx, cfg, logger)
	defer cacheCloser()

	contentIndex := index.New(index.Dependencies{
		Store:      chunkStore,
		Embedder:   inferenceClient,
		Chunker:    chunker.New(cfg.ChunkSizeChars, cfg.ChunkOverlapChars),
		EmbedModel: cfg.InferenceEmbedModel,
		Logger:     logger,
	})

	jobQueue := taskqueue.New(taskqueue.Config{
		MaxConcurrent: cfg.MaxConcurrentJobs,
		JobTimeout:    time.Duration(cfg.JobTimeoutMS) * time.Millisecond,
		JobTTL:        time.Duration(cfg.JobTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.JobSweepMinutes) * time.Minute,
		Logger:        logger,
	})
	defer jobQueue.Close()

	tasksService := service.NewAITasksService(service.AITasksDependencies{
		Router:     modelRouter,
		Client:     inferenceClient,
		Cache:      responseCache,
		PromptsDir: cfg.PromptsDir,
		Logger:     logger,
	})
	searchService := service.NewSearchService(service.SearchDependencies{
		Index:   contentIndex,
		Enabled: cfg.SearchEnabled,
	})
	recommendationsService := service.NewRecommendationsService(service.RecommendationsDependencies{
		Searcher: contentIndex,
		Logger:   logger,
	})

	api := handlers.NewAPI(tasksService, searchService, recommendationsService, jobQueue, inferenceClient)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupChunkStore(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (index.ChunkStore, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory chunk store")
		return index.NewMemoryChunkStore(), func() {}
	}

	pgStore, err := index.NewPostgresChunkStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres chunk store, fallback to memory: %v", err)
		return index.NewMemoryChunkStore(), func() {}
	}
	logger.Printf("postgres chunk store initialized")
	return pgStore, func() {
		pgStore.Close()
	}
}

func setupResponseCache(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (cache.ResponseCache, func()) {
	memoryConfig := cache.Config{
		TTL:        time.Duration(cfg.ResponseCacheTTLSeconds) * time.Second,
		MaxEntries: cfg.ResponseCacheMaxEntries,
	}
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using in-memory response cache")
		return cache.NewMemoryResponseCache(memoryConfig), func() {}
	}

	redisCache, err := cache.NewRedisResponseCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      time.Duration(cfg.ResponseCacheTTLSeconds) * time.Second,
	})
	if err != nil {
		logger.Printf("failed to initialize redis response cache, fallback to memory: %v", err)
		return cache.NewMemoryResponseCache(memoryConfig), func() {}
	}
	logger.Printf("redis response cache initialized")
	return redisCache, func() {
		_ = redisCache.Close()
	}
}
