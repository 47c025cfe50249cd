package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/npmtok/npmtok/internal/ai"
	"github.com/npmtok/npmtok/internal/config"
	"github.com/npmtok/npmtok/internal/feed"
	"github.com/npmtok/npmtok/internal/github"
	"github.com/npmtok/npmtok/internal/handler"
	"github.com/npmtok/npmtok/internal/logger"
	"github.com/npmtok/npmtok/internal/source"
	"github.com/npmtok/npmtok/internal/store"
	"github.com/npmtok/npmtok/internal/transform"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.InitLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.Storage.Path, log)
	if err != nil {
		log.Fatal("failed to create store", zap.Error(err))
	}
	defer dbStore.Close()

	httpClient := &http.Client{Timeout: 30 * time.Second}

	// Upstream clients
	npms := source.NewNpmsClient(cfg.Sources.NpmsBaseURL, httpClient, log)
	registry := source.NewRegistryClient(cfg.Sources.RegistryBaseURL, cfg.Sources.DownloadsBaseURL, httpClient, log)
	gh := github.NewClient(
		cfg.GitHub.APIBaseURL,
		cfg.GitHub.RawBaseURL,
		cfg.GitHub.Token,
		httpClient,
		rate.NewLimiter(rate.Limit(cfg.GitHub.RPS), cfg.GitHub.Burst),
		log,
	)
	aiClient := ai.NewClient(cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.APIKey, httpClient, log)

	// Aggregation engine
	engine := &feed.Engine{
		Primary:     npms,
		Secondary:   registry,
		Transformer: &transform.Transformer{Enricher: gh},
		Logger:      log,
	}

	// Initialize API handler
	api := handler.NewAPI(cfg, log, dbStore, engine, gh, aiClient)
	defer api.Close()

	// Create router
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	// Create server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited properly")
}
