package main

import (
	"flag"
	"log"
	"os"

	"ChainWatch/internal/di"
	"ChainWatch/pkg/config"
	"ChainWatch/pkg/util"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	runDate := flag.String("date", "", "trading day to process (YYYY-MM-DD, default: last trading day)")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s providers=%v", cfg.Environment, cfg.Providers.Order)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("clickhouse: connected and schema ready - db: %s\n", cfg.ClickHouse.Database)
	if cfg.Kafka.Enabled {
		log.Printf("kafka: connected brokers=%v topic=%s", cfg.Kafka.Brokers, cfg.Kafka.AnomalyTopic)
	}

	if *runDate != "" {
		d, ok := util.ParseDate(*runDate)
		if !ok {
			log.Fatalf("invalid -date %q, want YYYY-MM-DD", *runDate)
		}
		app.SetRunDate(d)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
