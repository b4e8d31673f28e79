package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codequery-ai/codequery/internal/adapter/ai"
	"github.com/codequery-ai/codequery/internal/adapter/store"
	"github.com/codequery-ai/codequery/internal/adapter/vcs"
	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/handler"
	"github.com/codequery-ai/codequery/internal/mcp"
	"github.com/codequery-ai/codequery/internal/middleware"
	"github.com/codequery-ai/codequery/internal/port"
	"github.com/codequery-ai/codequery/internal/service"
	"github.com/codequery-ai/codequery/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("starting CodeQuery",
		"port", cfg.Port,
		"ai_provider", cfg.AIProvider,
		"embedding_dimension", cfg.EmbeddingDimension,
		"mcp_enabled", cfg.MCPEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.InitSchema(ctx, cfg.EmbeddingDimension); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	vectorStore := store.NewVectorDB(pgStore, cfg.EmbeddingDimension)

	// ── Adapters ─────────────────────────────────────────────────────────
	var aiProvider port.AIProvider
	switch cfg.AIProvider {
	case "ollama":
		aiProvider = ai.NewOllama(cfg.OllamaBaseURL, cfg.OllamaEmbeddingModel, cfg.OllamaChatModel)
	default:
		if cfg.GeminiAPIKey == "" {
			slog.Error("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
			os.Exit(1)
		}
		aiProvider = ai.NewGemini(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel, cfg.GeminiChatModel)
	}

	gitFetcher := vcs.NewGit()

	// ── Services ─────────────────────────────────────────────────────────
	ingestService := service.NewIngestService(pgStore, vectorStore, gitFetcher, aiProvider,
		service.IngestConfig{
			ChunkSize:      cfg.ChunkSize,
			ChunkOverlap:   cfg.ChunkOverlap,
			EmbedBatchSize: cfg.EmbedBatchSize,
			CloneTimeout:   time.Duration(cfg.CloneTimeoutSeconds) * time.Second,
			EmbedTimeout:   time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
			QueueSize:      cfg.IngestQueueSize,
			WorkDir:        cfg.WorkDir,
		}, slog.Default())
	qaService := service.NewQAService(pgStore, vectorStore, aiProvider, cfg.TopK, slog.Default())
	authService := service.NewAuthService(pgStore)

	// SSE: forward worker status changes to subscribers
	events := handler.NewRepoEventBus()
	ingestService.OnStatusChange = func(repoID string, status domain.Status) {
		events.Publish(handler.RepoEvent{RepoID: repoID, Status: string(status)})
	}

	// Ingestion worker
	go ingestService.Run(ctx)

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
	app.Use(middleware.AuditMiddleware(pgStore))

	// ── Public Routes ────────────────────────────────────────────────────
	jwtCfg := middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	}

	authHandler := handler.NewAuthHandler(authService, jwtCfg)
	authHandler.Register(app)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ── Protected Routes ─────────────────────────────────────────────────
	api := app.Group("/api/v1", middleware.JWTMiddleware(jwtCfg))

	repoHandler := handler.NewRepoHandler(pgStore, ingestService, events)
	repoHandler.Register(api)

	askHandler := handler.NewAskHandler(pgStore, qaService)
	askHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(qaService, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	slog.Info("listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
