package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Lambda trigger kinds
const (
	TriggerHTTP  = "http"
	TriggerQueue = "queue"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string

	// Telegram client configuration
	WebhookSecret  string        // Expected X-Telegram-Bot-Api-Secret-Token, empty disables the check
	APIEndpoint    string        // tgbotapi endpoint format, overridable for a local Bot API server
	RequestTimeout time.Duration // Timeout for outbound Telegram requests

	// Runtime configuration
	Trigger     string // Lambda event source: "http" or "queue"
	Port        string // Port for the local HTTP server
	WebhookMode bool   // Dev runner: if true serve webhooks locally, otherwise use long polling

	// Logging configuration
	LogLevel  string
	LogFormat string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = firstEnv("BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	config.WebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")

	config.APIEndpoint = os.Getenv("TELEGRAM_API_ENDPOINT")
	if config.APIEndpoint == "" {
		config.APIEndpoint = tgbotapi.APIEndpoint
	} else if strings.Count(config.APIEndpoint, "%s") != 2 {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ENDPOINT: want a format with two %%s verbs, got %q", config.APIEndpoint)
	}

	timeoutStr := os.Getenv("TELEGRAM_TIMEOUT")
	if timeoutStr == "" {
		config.RequestTimeout = 10 * time.Second
	} else {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_TIMEOUT: %w", err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("invalid TELEGRAM_TIMEOUT: must be positive, got %s", timeout)
		}
		config.RequestTimeout = timeout
	}

	config.Trigger = strings.ToLower(strings.TrimSpace(os.Getenv("LAMBDA_TRIGGER")))
	switch config.Trigger {
	case "":
		config.Trigger = TriggerHTTP
	case TriggerHTTP, TriggerQueue:
	default:
		return nil, fmt.Errorf("invalid LAMBDA_TRIGGER: want %q or %q, got %q", TriggerHTTP, TriggerQueue, config.Trigger)
	}

	config.Port = os.Getenv("PORT")
	if config.Port == "" {
		config.Port = "8080" // Default port
	} else if _, err := strconv.Atoi(config.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"

	config.LogLevel = os.Getenv("LOG_LEVEL")
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	config.LogFormat = os.Getenv("LOG_FORMAT")
	if config.LogFormat == "" {
		config.LogFormat = "json"
	}

	return config, nil
}

// firstEnv returns the value of the first non-empty variable
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}
