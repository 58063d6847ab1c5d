package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
Usage:
  velodrop --mode=<mode> [--config-path=config.yaml]

Modes:
  traffic-service    GPS ingestion, traffic heatmap, event reports, smart routing
  dispatch-service   Order-to-courier matching and the offer lifecycle
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}

// PrintConfig dumps the effective configuration with secrets masked.
func PrintConfig(cfg *Config) {
	fmt.Printf("mode: %s\n", cfg.Mode)
	fmt.Printf("database: %s:%s/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	fmt.Printf("redis: %s (store=%s)\n", cfg.Redis.GetAddr(), cfg.Traffic.Store)
	fmt.Printf("rabbitmq: %s:%s\n", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	fmt.Printf("routing: %s\n", cfg.Routing.OSRMBaseURL)
}
