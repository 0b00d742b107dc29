package main

import (
	"context"
	"flag"
	"log"
	"os"

	"billing-mcp/internal/app"
	"billing-mcp/internal/config"
	"billing-mcp/internal/repository"
)

func main() {
	ctx := context.Background()

	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	pool, err := app.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresRunStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	logger.Info("Schema is up to date", "database", cfg.DB.Name, "host", cfg.DB.Host)
}
