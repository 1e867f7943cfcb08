package main

import (
	"context"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unitedbyai/droidclaw/internal/agent"
	"github.com/unitedbyai/droidclaw/internal/api/handlers"
	"github.com/unitedbyai/droidclaw/internal/api/middleware"
	"github.com/unitedbyai/droidclaw/internal/config"
	"github.com/unitedbyai/droidclaw/internal/crypto"
	"github.com/unitedbyai/droidclaw/internal/database"
	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/models"
	"github.com/unitedbyai/droidclaw/internal/websocket"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	queries := models.New(db)

	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	newID := uuid.NewString

	// The dashboard hub doubles as the presence and session event sink.
	hub := websocket.NewHub(jwtManager)
	registry := device.NewRegistry(hub, nil, newID)

	var planner agent.Planner
	var transcriber device.TranscriptionSink
	if cfg.PlannerURL != "" {
		logger.Infof("Planner endpoint: %s", cfg.PlannerURL)
		planner = agent.NewHTTPPlanner(cfg.PlannerURL, cfg.Agent.PlannerTimeout)
		transcriber = agent.NewHTTPTranscriber(cfg.PlannerURL, cfg.Agent.PlannerTimeout)
	} else {
		logger.Warnf("PLANNER_URL not set; goal requests will be rejected")
	}

	manager := agent.NewManager(agent.Config{
		MaxSteps:       cfg.Agent.MaxSteps,
		ScreenTimeout:  cfg.Agent.ScreenTimeout,
		ActionTimeout:  cfg.Agent.ActionTimeout,
		PlannerTimeout: cfg.Agent.PlannerTimeout,
		PlannerRetries: cfg.Agent.PlannerRetries,
		PlannerBackoff: cfg.Agent.PlannerBackoff,
	}, registry, planner, []agent.Sink{agent.NewRecorder(queries), hub}, nil, newID)
	registry.OnConnectionGone(manager.HandleConnectionGone)

	relay := device.NewRelay(transcriber)
	deviceServer := websocket.NewDeviceServer(registry, relay, queries, manager, nil, newID)

	monitor := device.NewMonitor(registry, cfg.Liveness.PingInterval, cfg.Liveness.GraceWindow, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	router.Use(middleware.LoggingMiddleware())

	// Root endpoint - returns plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(200, "Welcome to DroidClaw Server!")
	})

	authHandler := handlers.NewAuthHandler(queries, jwtManager, newID)
	goalHandler := handlers.NewGoalHandler(manager, registry)
	deviceHandler := handlers.NewDeviceHandler(queries, registry)
	sessionHandler := handlers.NewSessionHandler(queries)

	// Public routes (no auth required)
	v1 := router.Group("/v1")
	{
		v1.POST("/accounts", authHandler.RegisterAccount)
		v1.POST("/auth/token", authHandler.CreateToken)
	}

	// Protected routes (auth required)
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	{
		// API keys
		protected.POST("/keys", authHandler.CreateAPIKey)
		protected.DELETE("/keys/:keyId", authHandler.RevokeAPIKey)

		// Devices
		protected.GET("/devices", deviceHandler.ListDevices)
		protected.GET("/devices/:deviceId/apps", deviceHandler.GetDeviceApps)

		// Goal control
		protected.POST("/devices/:deviceId/goal", goalHandler.StartGoal)
		protected.GET("/devices/:deviceId/goal", goalHandler.GetGoal)
		protected.DELETE("/devices/:deviceId/goal", goalHandler.StopGoal)

		// Session history
		protected.GET("/sessions", sessionHandler.ListSessions)
		protected.GET("/sessions/:id", sessionHandler.GetSession)
	}

	// WebSocket endpoints. Devices authenticate in-band with an API key;
	// dashboards authenticate with a bearer token in the query string.
	router.GET("/ws/device", deviceServer.HandleDevice)
	router.GET("/ws/dashboard", hub.HandleDashboard)

	logger.Infof("DroidClaw Server starting on http://localhost%s", cfg.Addr)
	if err := router.Run(cfg.Addr); err != nil {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
