package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/antigravity-app/antigravity/api"
	"github.com/antigravity-app/antigravity/chat"
	"github.com/antigravity-app/antigravity/cloud"
	"github.com/antigravity-app/antigravity/config"
	"github.com/antigravity-app/antigravity/gemini"
	"github.com/antigravity-app/antigravity/ratelimit"
	"github.com/antigravity-app/antigravity/store"
)

func main() {
	// Load .env if present, then configuration
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := config.Load()

	log.Printf("Starting antigravity core...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Default model: %s", cfg.DefaultModel)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// Seed the API key from the environment on first run
	apiKey, err := db.GetAPIKey(ctx)
	if err != nil {
		log.Fatalf("Failed to read api key: %v", err)
	}
	if apiKey == "" && cfg.GeminiAPIKey != "" {
		if err := db.SetAPIKey(ctx, cfg.GeminiAPIKey); err != nil {
			log.Fatalf("Failed to store api key: %v", err)
		}
	}

	// Initialize Gemini provider. The key is resolved from the store per
	// call, so the server starts without one and a key added later
	// through settings takes effect immediately.
	provider := gemini.NewClient(db.GetAPIKey)
	defer provider.Close()

	// Initialize usage tracking and traffic-light policy
	usage, err := ratelimit.NewUsageStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to initialize usage store: %v", err)
	}
	policyEngine, err := ratelimit.NewEngine(ctx, ratelimit.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}
	limiter := ratelimit.New(usage, policyEngine)

	// Initialize session state
	sessions := chat.NewSessionManager(db)
	if err := sessions.Load(ctx); err != nil {
		log.Fatalf("Failed to load sessions: %v", err)
	}

	// Initialize chat pipeline
	orchestrator := chat.NewOrchestrator(provider, limiter)
	distiller := chat.NewDistiller(provider)
	service := chat.NewService(db, sessions, orchestrator, distiller, cfg.DefaultModel)

	// Initialize cloud sync and reconnect if a code is stored
	remote := cloud.NewFirebaseClient(cfg.FirebaseURL, cfg.ProviderTimeout)
	syncEngine := cloud.NewSyncEngine(db, remote, sessions)
	sessions.OnMutate = syncEngine.NotifyLocalMutation
	syncEngine.Resume(ctx)

	// Initialize handlers
	h := api.NewHandler(db, service, sessions, limiter, syncEngine, cfg)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	// Let in-flight memory distillation land before closing the store
	service.WaitDistillation()
	syncEngine.Disconnect(ctx, false)

	log.Println("Stopped")
}
