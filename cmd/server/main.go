package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/promptgrid/api/internal/client"
	"github.com/promptgrid/api/internal/config"
	"github.com/promptgrid/api/internal/engine"
	"github.com/promptgrid/api/internal/handler"
	"github.com/promptgrid/api/internal/middleware"
	"github.com/promptgrid/api/internal/model"
	"github.com/promptgrid/api/internal/service"
	"github.com/promptgrid/api/internal/store"
	"github.com/promptgrid/api/internal/worker"
	ws "github.com/promptgrid/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Cell store
	cellStore := store.NewRedis(redisClient)

	// Model provider (mock fallback when no API key is configured)
	var provider engine.Provider
	gatewayClient := client.NewGatewayClient(&cfg.Provider)
	if gatewayClient.IsConfigured() {
		provider = gatewayClient
	} else {
		log.Println("Info: provider gateway not configured, using mock provider")
		provider = client.NewMockProvider()
	}

	// Billing collaborator (optional - credits disabled when absent)
	var billing engine.Billing
	billingClient := client.NewBillingClient(&cfg.Billing)
	if billingClient.IsConfigured() {
		billing = billingClient
	} else {
		log.Println("Info: billing not configured, credit accounting disabled")
	}

	// Execution engine
	eng := engine.New(cellStore, provider, billing, hub, engine.Config{
		PollInterval: time.Duration(cfg.Engine.PollIntervalSec) * time.Second,
		Costs: map[model.ModelType]int{
			model.ModelTypeText:  cfg.Engine.CostText,
			model.ModelTypeImage: cfg.Engine.CostImage,
			model.ModelTypeVideo: cfg.Engine.CostVideo,
			model.ModelTypeAudio: cfg.Engine.CostAudio,
		},
	})
	defer eng.Close()

	// Resume polling for jobs that were in flight before the restart,
	// and rebuild interval timers from the persisted cell set
	if err := eng.ResumePolling(ctx); err != nil {
		log.Printf("Warning: failed to resume polling: %v", err)
	}
	if err := eng.RebuildTimers(ctx); err != nil {
		log.Printf("Warning: failed to rebuild timers: %v", err)
	}

	// Initialize services
	cellService := service.NewCellService(cellStore, asynqClient, eng)

	// Initialize handlers
	cellHandler := handler.NewCellHandler(cellService, validate)
	runHandler := handler.NewRunHandler(cellService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Expiration)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"provider": gatewayClient.IsConfigured(),
				"billing":  billingClient.IsConfigured(),
				"auth":     cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	api.Get("/sheets", cellHandler.ListSheets)

	sheets := api.Group("/sheets/:sheet")
	sheets.Get("/cells", cellHandler.ListCells)
	sheets.Put("/cells/:ref", rateLimiter.EditLimit(cfg.RateLimit.EditsPerMin), cellHandler.Upsert)
	sheets.Get("/cells/:ref", cellHandler.Get)
	sheets.Delete("/cells/:ref", cellHandler.Delete)
	sheets.Get("/cells/:ref/deps", cellHandler.Deps)
	sheets.Post("/cells/:ref/run", rateLimiter.RunLimit(cfg.RateLimit.RunsPerMin), runHandler.Run)
	sheets.Post("/cells/:ref/stop", runHandler.Stop)
	sheets.Get("/connections", cellHandler.ListConnections)
	sheets.Post("/connections", cellHandler.CreateConnection)
	sheets.Delete("/connections/:id", cellHandler.DeleteConnection)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sheets/:sheet", websocket.New(func(c *websocket.Conn) {
		sheet := c.Params("sheet")
		hub.HandleConnection(c, sheet)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, eng)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, eng *engine.Engine) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// independent manual runs may overlap; per-cell dedup lives
			// in the engine and the cascade serializes itself
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueRuns: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	runWorker := worker.NewRunWorker(eng)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeCellRun, runWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
