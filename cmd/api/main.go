package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/reelforge/internal/api"
	"github.com/bobarin/reelforge/internal/app"
	"github.com/bobarin/reelforge/internal/config"
	"github.com/bobarin/reelforge/internal/db"
	"github.com/bobarin/reelforge/internal/queue"
	"github.com/bobarin/reelforge/internal/storage"
	"github.com/bobarin/reelforge/internal/worker"
)

func main() {
	log.Println("Starting Reelforge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		tts, err := app.NewTTS(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize TTS: %v", err)
		}

		w := worker.New(database, q, stor, app.NewDeps(cfg, tts), cfg.TempDir, cfg.DefaultSegmentSeconds)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go func() {
			defer close(workerDone)
			if err := w.Start(workerCtx, cfg.MaxConcurrentJobs); err != nil {
				log.Printf("Worker stopped: %v", err)
			}
		}()
	} else {
		close(workerDone)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Running jobs are cancelled; each removes its intermediates and records
	// itself as cancelled before the worker returns.
	if workerCancel != nil {
		workerCancel()
	}
	select {
	case <-workerDone:
	case <-ctx.Done():
		log.Println("Worker did not stop in time")
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
