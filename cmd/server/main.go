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

	"lexhub.io/policy-agent/internal/api"
	"lexhub.io/policy-agent/internal/config"
	"lexhub.io/policy-agent/internal/core"
	"lexhub.io/policy-agent/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// The Gemini client is constructed once here and injected everywhere;
	// it is shared, read-only state and safe for concurrent requests.
	llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	// Retrieval pipeline and quota gate
	retriever := core.NewRetriever(dbStore)
	quota := core.NewQuotaTracker(dbStore, config.AppConfig.FreeConversationLimit, config.AppConfig.FreeMessageLimit)

	ingestService := core.NewIngestService(
		dbStore,
		llmService,
		config.AppConfig.ChunkMaxLength,
		config.AppConfig.MaxChunks,
		float32(config.AppConfig.SimThreshold),
	)

	chatService := core.NewChatService(dbStore, llmService, retriever, quota, llmService, config.AppConfig.TopK)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, ingestService)
	rateLimiter := api.NewRateLimiter(config.AppConfig.RateLimitPerMinute)
	router := api.NewRouter(apiHandler, rateLimiter)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second, // Adjusted for potentially slower LLM handshakes
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish before forcing shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
