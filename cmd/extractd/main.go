// Extractd is a contract field extraction daemon.
//
// This binary starts the extractd HTTP server with full pipeline
// initialization: LLM client, strategy selector, voting engine, and the
// extraction service with its session store.
//
// Configuration is loaded from a YAML file and environment variables. See
// internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	extractd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9190 LLM_PROVIDER=anthropic LLM_API_KEY=... extractd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/chunker"
	"github.com/fyrsmithlabs/extractd/internal/config"
	"github.com/fyrsmithlabs/extractd/internal/docconv"
	"github.com/fyrsmithlabs/extractd/internal/extraction"
	httpserver "github.com/fyrsmithlabs/extractd/internal/http"
	"github.com/fyrsmithlabs/extractd/internal/llm"
	"github.com/fyrsmithlabs/extractd/internal/logging"
	"github.com/fyrsmithlabs/extractd/internal/session"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
	"github.com/fyrsmithlabs/extractd/internal/voting"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/extractd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  extractd           Start the extractd daemon\n")
			fmt.Fprintf(os.Stderr, "  extractd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("extractd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the extractd server and blocks until the context is
// cancelled.
//
// This function initializes all dependencies:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Creates the LLM client and extraction strategies
//  4. Wires the voting engine and extraction service
//  5. Starts the HTTP server
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting extractd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	client, err := llm.NewClient(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey.Value(),
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   int(cfg.LLM.Timeout.Duration().Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	ck := chunker.New(chunker.Config{MinChunkSize: cfg.Extraction.MinChunkSize})
	converter := docconv.NewMarkdownConverter()

	selector := strategy.NewSelector([]strategy.Strategy{
		strategy.NewRuleStrategy(logger.Named("rule")),
		strategy.NewLLMStrategy(client, logger.Named("llm")),
		strategy.NewRAGStrategy(client, ck, logger.Named("rag")),
		strategy.NewStructureStrategy(client, converter, logger.Named("structure")),
	}, strategy.DefaultPriority())

	votingCfg := voting.DefaultConfig()
	if cfg.Voting.ConfidenceEpsilon > 0 {
		votingCfg.ConfidenceEpsilon = cfg.Voting.ConfidenceEpsilon
	}
	if cfg.Voting.NumericTolerance > 0 {
		votingCfg.NumericTolerance = cfg.Voting.NumericTolerance
	}
	if cfg.Voting.DateToleranceDays > 0 {
		votingCfg.DateToleranceDays = cfg.Voting.DateToleranceDays
	}
	if len(cfg.Voting.PriorityOrder) > 0 {
		votingCfg.PriorityOrder = cfg.Voting.PriorityOrder
	}
	if cfg.Voting.AutoResolve != nil {
		votingCfg.AutoResolve = *cfg.Voting.AutoResolve
	}
	engine := voting.NewEngine(selector, votingCfg, nil, logger.Named("voting"))

	svc, err := extraction.NewService(&extraction.Config{
		DefaultStrategy:    cfg.Extraction.DefaultStrategy,
		MinChunkSize:       cfg.Extraction.MinChunkSize,
		SessionDeadline:    cfg.Extraction.SessionDeadline.Duration(),
		MaxConcurrentTasks: cfg.Extraction.MaxConcurrentTasks,
		TaskTimeout:        cfg.Extraction.TaskTimeout.Duration(),
		Session: session.Config{
			TTL:         cfg.Extraction.SessionTTL.Duration(),
			MaxSessions: cfg.Extraction.MaxSessions,
		},
	}, selector, engine, ck, logger.Named("extraction"))
	if err != nil {
		return fmt.Errorf("failed to create extraction service: %w", err)
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("extraction service close failed", zap.Error(cerr))
		}
	}()

	server, err := httpserver.NewServer(svc, logger.Named("http"), &httpserver.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}
