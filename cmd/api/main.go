package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/api/internal/app"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/gitrepo"
	"inkwell/api/internal/importer"
	"inkwell/api/internal/llm"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/rewrite"
	"inkwell/api/internal/search"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
	"inkwell/api/internal/suggest"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	if cfg.AnthropicAPIKey == "" {
		log.Printf("WARNING: ANTHROPIC_API_KEY is not set, suggestion and rewrite calls will fail")
	}
	llmClient := llm.NewClient(cfg.AnthropicAPIKey)

	registry := suggest.NewRegistry(dataStore)
	analyzer := suggest.NewAnalyzer(llmClient, cfg.LLMModel)
	pipeline := suggest.NewPipeline(dataStore, registry, analyzer, cfg.MaxParagraphs, cfg.MaxParagraphChars)

	deps := app.Deps{
		Store:    dataStore,
		Git:      gitService,
		Auth:     authpw.NewService(dataStore),
		Pipeline: pipeline,
		Registry: registry,
		Rewriter: rewrite.NewService(dataStore, llmClient, cfg.LLMModel),
		Gate:     ratelimit.NewGate(dataStore),
		Exporter: export.NewService(),
		Importer: importer.NewService(),
		Search:   searchService,
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if emailService.IsConfigured() {
		deps.Email = emailService
	} else {
		log.Printf("SMTP not configured, verification and reset tokens are returned in API responses")
	}

	// Refresh tokens live in Redis when configured, Postgres otherwise.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	service := app.New(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Inkwell API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
