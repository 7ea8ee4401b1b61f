package main

import (
	"context"
	"log"
	"os"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core"
	"github.com/agenthands/ftmresolve/internal/logging"
	"github.com/agenthands/ftmresolve/internal/metrics"
	"github.com/agenthands/ftmresolve/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfg, err := config.LoadOrDefault(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	m, err := metrics.NewMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	p, cleanup, err := core.Build(context.Background(), cfg, m, logger, true)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer cleanup()

	s, err := server.NewServer(p, cfg.Server, m, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := s.Run(); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
