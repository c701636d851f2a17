package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/approvals"
	"github.com/ekaya-inc/far-audit/pkg/audit"
	"github.com/ekaya-inc/far-audit/pkg/config"
	"github.com/ekaya-inc/far-audit/pkg/database"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/handlers"
	"github.com/ekaya-inc/far-audit/pkg/llm"
	"github.com/ekaya-inc/far-audit/pkg/logging"
	"github.com/ekaya-inc/far-audit/pkg/mcp"
	"github.com/ekaya-inc/far-audit/pkg/mcp/tools"
	"github.com/ekaya-inc/far-audit/pkg/middleware"
	"github.com/ekaya-inc/far-audit/pkg/reevaluation"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
	"github.com/ekaya-inc/far-audit/pkg/requirements"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(config.DefaultPath, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("far-audit stopped", zap.String("error", logging.SanitizeError(err)))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Database.Host = config.ResolveHostForDocker(cfg.Database.Host)
	cfg.LLM.BaseURL = config.ResolveURLForDocker(cfg.LLM.BaseURL)

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	// Database
	connStr := cfg.Database.ConnectionString()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConns,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(connStr, logger); err != nil {
		return err
	}

	// Rule index. A load failure degrades to an empty index: every row GREEN.
	events := audit.NewComplianceEventLogger(logger)
	rules, err := far.Load(cfg.Rules.OverlayPath, logger)
	if err != nil {
		events.LogRuleIndexDegraded(err)
	}

	// LLM
	chat, err := llm.NewChatClient(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	guarded := llm.NewGuardedClient(chat, llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.BreakerThreshold,
		ResetAfter: cfg.LLM.BreakerReset,
	}, logger)

	threshold, err := cfg.Policy.Threshold()
	if err != nil {
		return err
	}

	// Repositories
	glRepo := repositories.NewGLRepository()
	docRepo := repositories.NewDocumentRepository()
	linkRepo := repositories.NewLinkRepository()

	// Services
	detector := approvals.NewDetector(logger)
	linkService := services.NewLinkService(linkRepo, glRepo, docRepo, events, logger)
	matchingService, err := services.NewMatchingService(glRepo, docRepo, linkService, services.MatchingConfig{
		AutoLinkThreshold: cfg.Matching.AutoLinkThreshold,
		CacheSize:         cfg.Matching.CacheSize,
	}, logger)
	if err != nil {
		return err
	}
	auditService := services.NewAuditService(glRepo, linkService, rules, matchingService, logger)
	documentService := services.NewDocumentService(docRepo, linkService, matchingService, cfg.OCR.FetchTimeout, logger)
	evaluator := reevaluation.NewEvaluator(guarded, detector, rules, events, reevaluation.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	reviewService := services.NewReEvaluationService(glRepo, docRepo, linkService, evaluator, cfg.OCR.FetchTimeout, logger)
	projector := requirements.NewProjector(detector, rules, requirements.Policy{ReceiptThreshold: threshold})
	requirementsService := services.NewRequirementsService(glRepo, docRepo, linkService, projector, cfg.OCR.FetchTimeout, logger)

	// HTTP
	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScope(db, logger))

	handlers.NewHealthHandler(cfg, rules, guarded.Breaker(), logger).RegisterRoutes(mux)
	handlers.NewGLHandler(auditService, matchingService, logger).RegisterRoutes(mux, scope)
	handlers.NewLinkHandler(linkService, logger).RegisterRoutes(mux, scope)
	handlers.NewDocumentsHandler(documentService, logger).RegisterRoutes(mux, scope)
	handlers.NewRequirementsHandler(requirementsService, logger).RegisterRoutes(mux, scope)
	handlers.NewReviewHandler(reviewService, logger).RegisterRoutes(mux, scope)

	// MCP
	mcpServer := mcp.NewServer(cfg.Version, logger)
	mcpServer.RegisterTools(
		&tools.HealthToolDeps{Version: cfg.Version, Rules: rules, Circuit: guarded.Breaker()},
		&tools.AuditToolDeps{
			Rules:               rules,
			MatchingService:     matchingService,
			RequirementsService: requirementsService,
			Scope:               database.NewScopeProvider(db).WithScope,
			Logger:              logger,
		},
	)
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting far-audit",
			zap.String("addr", server.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""),
			zap.String("version", cfg.Version))
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// migrate applies the embedded migrations over a database/sql handle.
func migrate(connStr string, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %s", logging.SanitizeError(err))
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return err
	}
	return nil
}
