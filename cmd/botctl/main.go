package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"echobot/internal/bot"
	"echobot/internal/config"
	"echobot/internal/logger"
)

// botFactory builds the bot the commands talk to
type botFactory func() (*bot.Bot, error)

func newRootCmd(newBot botFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "botctl",
		Short:         "Manage the echo bot's Telegram registration",
		Long:          "botctl manages the Telegram webhook registration of the echo bot.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newWebhookCmd(newBot))
	return rootCmd
}

// botFromEnv loads the same configuration as the webhook function
func botFromEnv() (*bot.Bot, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return bot.NewBot(cfg.TelegramToken, appLogger.Named("botctl"),
		bot.WithAPIEndpoint(cfg.APIEndpoint),
		bot.WithTimeout(cfg.RequestTimeout),
	)
}

func main() {
	if err := newRootCmd(botFromEnv).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
