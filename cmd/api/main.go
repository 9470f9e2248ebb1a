package main

import (
	"log"

	"github.com/promokit/billing-engine/internal/config"
	"github.com/promokit/billing-engine/pkg/app"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	// Load configuration from YAML
	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	engine := app.New(cfg)

	log.Println("Starting billing engine...")
	if err := engine.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
