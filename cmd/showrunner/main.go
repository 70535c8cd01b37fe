package main

import (
	"context"
	"time"

	"showrunner/internal/agent"
	"showrunner/internal/chat"
	showrunnerconfig "showrunner/internal/config"
	"showrunner/internal/reasoning"
	"showrunner/internal/store"
	"showrunner/internal/videodb"
	"showrunner/internal/ws"
	"showrunner/pkg/config"
	"showrunner/pkg/database"
	"showrunner/pkg/llm"
	"showrunner/pkg/logging"
	"showrunner/pkg/monitoring"
	"showrunner/pkg/server"
	"showrunner/pkg/version"

	"github.com/gin-gonic/gin"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("showrunner")

	// Load environment variables
	config.LoadEnv()

	logger.Info("Starting Showrunner (Conversational Video Agent API)")

	cfg := showrunnerconfig.LoadConfig()

	// Connect to database
	db := database.MustConnect(database.DefaultConfig(cfg.DatabaseURL), logger)
	defer func() { _ = db.Close() }()

	sessions := store.NewStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sessions.EnsureSchema(ctx); err != nil {
		cancel()
		logger.WithError(err).Fatal("Failed to ensure database schema")
	}
	cancel()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("showrunner", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("showrunner", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("videodb", monitoring.HTTPServiceHealthCheck("videodb", cfg.VideoDBAPIURL))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":    cfg.DatabaseURL,
		"VIDEODB_API_KEY": cfg.VideoDBAPIKey,
		"LLM_API_KEY":     cfg.LLM.APIKey,
	}))

	// Video database client
	vdb := videodb.NewClient(cfg.VideoDBAPIURL, cfg.VideoDBAPIKey, logger)

	// Model provider
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM provider")
	}
	logger.WithField("provider", provider.Name()).Info("LLM provider ready")

	// Agent registry, assembled once. Registration problems are fatal.
	registry := agent.NewRegistry()
	if err := registry.Register(
		agent.NewUploadAgent(vdb, logger),
		agent.NewSummaryAgent(vdb, provider, logger),
		agent.NewThumbnailAgent(vdb, logger),
		agent.NewDownloadAgent(vdb, logger),
		agent.NewSearchAgent(vdb, logger),
		agent.NewStreamVideoAgent(vdb, logger),
		agent.NewPromptClipAgent(vdb, provider, logger),
		agent.NewBrandkitAgent(vdb, logger),
		agent.NewPricingAgent(provider, logger),
		agent.NewSubtitleAgent(vdb, logger),
	); err != nil {
		logger.WithError(err).Fatal("Failed to register agents")
	}

	// WebSocket hub for live message updates
	hub := ws.NewHub(logger)
	go hub.Run()

	engine := reasoning.NewEngine(provider, registry, sessions, vdb, hub, logger, reasoning.Config{
		MaxIterations: cfg.MaxIterations,
		Workers:       cfg.Workers,
	})

	handler := chat.NewHandler(engine, registry, sessions, vdb, logger, cfg.DefaultCollectionID)

	router := server.SetupServiceRouter(logger, "showrunner", healthChecker, metricsCollector)
	chat.RegisterRoutes(router.Group("/api"), handler)
	router.GET("/ws", gin.WrapF(hub.ServeWS))

	serverConfig := server.DefaultConfig("showrunner", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}
