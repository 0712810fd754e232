package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rulebookai/internal/app"
	"rulebookai/internal/config"
	"rulebookai/internal/extract"
	"rulebookai/internal/ingest"
	"rulebookai/internal/prompt"
	"rulebookai/internal/ratelimit"
	"rulebookai/internal/server"
	"rulebookai/internal/storage"
	"rulebookai/internal/store"
	"rulebookai/internal/usertoken"
	"rulebookai/internal/util"
	"rulebookai/pkg/ai"
	"rulebookai/pkg/queue"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	files, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		log.Fatalf("failed to init text generator: %v", err)
	}

	var tokenVerifier *usertoken.Verifier
	if cfg.AuthJWKSURL != "" {
		tokenVerifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			log.Fatalf("failed to init jwks verifier: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Files:          files,
		Queue:          jobQueue,
		Generator:      generator,
		Prompts:        prompt.TranscriptBuilder{HistoryLimit: cfg.HistoryLimit},
		MaxPromptRunes: cfg.MaxPromptChars,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		AskTimeout:     time.Duration(cfg.AskTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := ingest.NewWorker(dataStore, files, extract.New())
	worker.Start(ctx, jobQueue, cfg.IngestWorkers)

	var chatLimiter server.Limiter
	if cfg.ChatRateLimit > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr,
			cfg.RedisPassword,
			"rulebookai:ratelimit:chat",
			cfg.ChatRateLimit,
			time.Duration(cfg.ChatRateWindowSeconds)*time.Second,
		)
		if err != nil {
			log.Fatalf("failed to init chat rate limiter: %v", err)
		}
		chatLimiter = limiter
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		ChatLimiter:    chatLimiter,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server listening", "addr", addr, "ingest_workers", cfg.IngestWorkers)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) {
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.GenerationProvider)
	}
}
