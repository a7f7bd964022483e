package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/codeancestry/codeancestry/internal/adapter/ai"
	"github.com/codeancestry/codeancestry/internal/adapter/cache"
	"github.com/codeancestry/codeancestry/internal/adapter/github"
	"github.com/codeancestry/codeancestry/internal/adapter/store"
	"github.com/codeancestry/codeancestry/internal/handler"
	"github.com/codeancestry/codeancestry/internal/mcp"
	"github.com/codeancestry/codeancestry/internal/middleware"
	"github.com/codeancestry/codeancestry/internal/port"
	"github.com/codeancestry/codeancestry/internal/service"
	"github.com/codeancestry/codeancestry/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting CodeAncestry",
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"ai_provider", cfg.AIProvider,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Storage ──────────────────────────────────────────────────────────
	var (
		repoStore   port.RepoStore
		commitStore port.CommitStore
		auditWriter middleware.AuditWriter
	)
	switch cfg.StoreBackend {
	case "memory":
		mem := store.NewMemoryStore()
		repoStore = mem
		commitStore = mem
		auditWriter = mem
	default:
		pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pgStore.Migrate(ctx, cfg.EmbeddingDimension); err != nil {
			cancel()
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		cancel()

		vectorStore := store.NewVectorStore(pgStore, cfg.EmbeddingDimension)
		repoStore = pgStore
		commitStore = vectorStore
		auditWriter = pgStore
	}

	// ── AI provider ──────────────────────────────────────────────────────
	upstreamTimeout := time.Duration(cfg.UpstreamTimeout) * time.Second

	var aiProvider port.AIProvider
	switch cfg.AIProvider {
	case "openrouter":
		aiProvider = ai.NewOpenRouterProvider(
			ai.OpenRouterEndpointConfig{
				BaseURL: cfg.OpenRouterBaseURL,
				APIKey:  cfg.OpenRouterAPIKey,
				Model:   cfg.OpenRouterChatModel,
			},
			ai.OpenRouterEndpointConfig{
				BaseURL: cfg.OpenRouterEmbedURL,
				APIKey:  cfg.OpenRouterEmbedKey,
				Model:   cfg.OpenRouterEmbedModel,
			},
			upstreamTimeout,
		)
	default:
		aiProvider = ai.NewOllamaProvider(
			ai.OllamaEndpointConfig{
				BaseURL: cfg.OllamaEmbedURL,
				Model:   cfg.OllamaEmbedModel,
				Token:   cfg.OllamaEmbedToken,
			},
			ai.OllamaEndpointConfig{
				BaseURL: cfg.OllamaChatURL,
				Model:   cfg.OllamaChatModel,
				Token:   cfg.OllamaChatToken,
			},
			upstreamTimeout,
		)
	}

	// ── Caching ──────────────────────────────────────────────────────────
	answerCache := cache.New(cfg.RedisURL, time.Duration(cfg.AnswerCacheTTL)*time.Second)

	// ── Services ─────────────────────────────────────────────────────────
	githubClient := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken)

	repoService := service.NewRepoService(repoStore)
	ragService := service.NewRAGService(aiProvider, commitStore, answerCache, service.RAGOptions{
		TopKDefault:     cfg.TopKDefault,
		TopKMax:         cfg.TopKMax,
		ContextBudget:   cfg.ContextBudget,
		UpstreamTimeout: upstreamTimeout,
	})
	ingestService := service.NewIngestService(repoStore, commitStore, aiProvider, githubClient, service.IngestOptions{
		MaxCommits:       cfg.MaxCommits,
		EmbedBatchSize:   cfg.EmbedBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
		SummariesEnabled: cfg.SummariesEnabled,
		UpstreamTimeout:  upstreamTimeout,
	})

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(auditWriter))

	if cfg.RateLimitEnabled {
		app.Use(middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Redis:     answerCache.Client(),
		}))
	}

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Routes ───────────────────────────────────────────────────────────
	api := app.Group("/api/v1")

	jobTracker := handler.NewJobTracker()

	repoHandler := handler.NewRepoHandler(repoService, ingestService, jobTracker)
	repoHandler.Register(api)

	ragHandler := handler.NewRAGHandler(ragService, repoService)
	ragHandler.Register(api)

	jobsHandler := handler.NewJobsHandler(jobTracker)
	jobsHandler.Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(ragService, repoService, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
