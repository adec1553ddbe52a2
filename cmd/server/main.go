// cmd/server/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Corphon/AvaChat/internal/app"
	"github.com/Corphon/AvaChat/internal/config"
	"github.com/Corphon/AvaChat/internal/di"
	"github.com/Corphon/AvaChat/internal/utils"
)

func main() {
	log.Println("Starting AvaChat server...")

	// 1. configuration: .env, environment, optional config file
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration loaded, port: %s, provider: %s", cfg.Port, cfg.LLMProvider)

	// 2. logging
	if err := app.InitLogger(cfg); err != nil {
		log.Printf("File logging disabled: %v", err)
	}

	// 3. services
	container := di.GetContainer()
	server := app.New(cfg, container)
	log.Printf("Services registered: %v", container.GetNames())

	// 4. serve until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	log.Printf("Listening on http://localhost:%s", cfg.Port)
	err = server.Run(ctx)
	stop()
	utils.GetLogger().Close()
	if err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
	log.Println("Server stopped")
}
