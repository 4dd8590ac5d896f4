package main

import (
	"context"
	"flag"
	"os"

	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/logging"
	"wager/internal/migrate"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel)
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	applied, err := migrate.Up(context.Background(), database, *dir, logger)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "applied", len(applied))
}
