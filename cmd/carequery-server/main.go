// Package main provides the entry point for the carequery server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"carequery/internal/config"
	"carequery/internal/db"
	"carequery/internal/server"
	"carequery/internal/service"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	var cfg config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			os.Stderr.WriteString("Error: " + err.Error() + "\n")
			os.Exit(1)
		}
	} else {
		cfg = config.Load()
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("carequery-server starting",
		"version", version,
		"addr", cfg.ServerAddr,
		"db_driver", cfg.DBDriver,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the patient database
	dbClient, err := db.NewClient(ctx, db.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		Params:   cfg.DBParams,
		Path:     cfg.DBPath,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection")
		_ = dbClient.Close()
	}()

	svc := service.New(cfg, dbClient, nil, logger)

	srv := server.New(svc, logger)
	if err := srv.Run(ctx, cfg.ServerAddr); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
