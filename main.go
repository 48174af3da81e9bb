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

	"github.com/cutline/orchestrator/internal/adapter/llm"
	"github.com/cutline/orchestrator/internal/adapter/uipush"
	"github.com/cutline/orchestrator/internal/config"
	"github.com/cutline/orchestrator/internal/editor"
	"github.com/cutline/orchestrator/internal/quality"
	"github.com/cutline/orchestrator/internal/recovery"
	store "github.com/cutline/orchestrator/internal/repository"
	"github.com/cutline/orchestrator/internal/service"
	"github.com/cutline/orchestrator/internal/tools"
	transport "github.com/cutline/orchestrator/internal/transport/http"
	"github.com/cutline/orchestrator/internal/workflow"
	"github.com/cutline/orchestrator/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting agent engine...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Privacy mode: %s", cfg.PrivacyMode)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize tool registry
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	// Initialize workflow catalog
	catalog := workflow.NewCatalog()
	var watcher *workflow.Watcher
	if cfg.TemplateDir != "" {
		if err := catalog.LoadDir(cfg.TemplateDir); err != nil {
			log.Printf("WARN: failed to load workflow templates from %s: %v", cfg.TemplateDir, err)
		}
		watcher, err = workflow.NewWatcher(catalog, cfg.TemplateDir)
		if err != nil {
			log.Printf("WARN: failed to watch workflow templates: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// Initialize chat provider
	provider := llm.NewChatProvider(
		llm.BackendConfig{BaseURL: cfg.LocalLLMURL, Model: cfg.LocalLLMModel},
		llm.BackendConfig{BaseURL: cfg.CloudLLMURL, APIKey: cfg.LLMAPIKey, Model: cfg.CloudLLMModel},
		cfg.PrivacyMode,
		cfg.LLMTimeout,
	)

	// Initialize UI gateway push client
	push := uipush.NewClient(cfg.UIGatewayURL)
	defer push.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service
	svc := service.New(
		db,
		editor.NewStore(),
		registry,
		recovery.NewEngine(cfg.RecoveryBackoff.Milliseconds()),
		catalog,
		workflow.NewResolver(catalog, registry),
		quality.NewEvaluator(cfg.QualityThreshold),
		provider,
		push,
		policyEngine,
		cfg,
	)

	// Create HTTP server
	server := transport.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent engine...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Agent engine stopped")
}
