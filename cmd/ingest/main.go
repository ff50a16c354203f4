package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"moneyrag/internal/service"
	"moneyrag/pkg/config"
	"moneyrag/pkg/logger"

	"go.uber.org/zap"
)

// ingest runs the full pipeline from the command line: create a session,
// ingest the given CSV files, optionally ask one question, clean up.
func main() {
	var (
		files      = flag.String("files", "", "comma-separated CSV paths to ingest")
		provider   = flag.String("provider", "", "LLM provider: gigachat, google or openai (default from env)")
		chatModel  = flag.String("model", "", "chat model name (default per provider)")
		embedModel = flag.String("embedding-model", "", "embedding model name (default per provider)")
		question   = flag.String("q", "", "optional question to ask after ingestion")
		timeout    = flag.Duration("timeout", 5*time.Minute, "whole-run timeout")
	)
	flag.Parse()

	if *files == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -files one.csv,two.csv [-provider name] [-q question]")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sessions := service.NewSessionService(cfg, appLogger)

	session, err := sessions.Create(ctx, *provider, *chatModel, *embedModel)
	if err != nil {
		appLogger.Fatal("Failed to create session", zap.Error(err))
	}
	defer sessions.Cleanup(session)

	paths := strings.Split(*files, ",")
	for i := range paths {
		paths[i] = strings.TrimSpace(paths[i])
	}

	result, setupErr := sessions.Setup(ctx, session, paths)
	for _, fr := range result.Files {
		if fr.Err != nil {
			fmt.Printf("%-30s FAILED: %v\n", fr.File, fr.Err)
			continue
		}
		fmt.Printf("%-30s %d rows\n", fr.File, fr.Rows)
	}
	if setupErr != nil {
		appLogger.Error("Setup failed", zap.Error(setupErr))
		sessions.Cleanup(session)
		os.Exit(1)
	}
	fmt.Printf("indexed %d transactions\n", result.Indexed)

	if *question != "" {
		answer, err := sessions.Chat(ctx, session, *question)
		if err != nil {
			appLogger.Error("Chat failed", zap.Error(err))
			sessions.Cleanup(session)
			os.Exit(1)
		}
		fmt.Println()
		fmt.Println(answer)
	}
}
