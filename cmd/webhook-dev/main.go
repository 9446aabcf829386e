package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"echobot/internal/app"
)

func main() {
	// Load .env before checking the environment below
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Set PORT for HTTP server if not already set
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}

	// Ensure BOT_TOKEN is set
	if os.Getenv("BOT_TOKEN") == "" && os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		log.Println("⚠️  BOT_TOKEN not set. Please set it in your .env file or environment.")
		log.Println("   The bot will fail to start without a valid token.")
	}

	if os.Getenv("WEBHOOK_MODE") == "true" {
		log.Println("Starting local webhook server, POST updates to /telegram-webhook")
	} else {
		log.Println("Starting in long polling mode")
	}

	// Create and initialize application
	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
