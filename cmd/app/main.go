package main

import (
	"flag"
	"log"
	"os"

	"PortfolioPulse/internal/di"
	"PortfolioPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s provider=%s kafka=%t clickhouse=%t finnhub=%t",
		cfg.Environment, cfg.Provider.BaseURL, cfg.Kafka.Enabled, cfg.ClickHouse.Enabled, cfg.Finnhub.Enabled)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
