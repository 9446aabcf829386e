package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"echobot/internal/bot"
	"echobot/internal/config"
	"echobot/internal/logger"
	"echobot/internal/webhook"
)

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	bot     *bot.Bot
	handler *webhook.Handler
	server  *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates and initializes a new application instance from the environment
func New() (*App, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewWithConfig(cfg, appLogger)
}

// NewWithConfig creates an application from an already loaded configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting echo bot")

	// Initialize bot
	if err := app.initBot(); err != nil {
		return nil, err
	}

	app.handler = webhook.NewHandler(app.bot, cfg.WebhookSecret, logger.Named("webhook"))
	if cfg.WebhookSecret == "" {
		logger.Warn("TELEGRAM_WEBHOOK_SECRET not set, webhook deliveries are not authenticated")
	}

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.logger.Named("bot"),
		bot.WithAPIEndpoint(a.config.APIEndpoint),
		bot.WithTimeout(a.config.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = telegramBot
	return nil
}

// initHTTPServer prepares the HTTP server for health checks and webhook deliveries
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: a.config.RequestTimeout + 5*time.Second,
	}
}

// Routes returns the HTTP routes served in local/container mode
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Echo bot @%s is running (mode: %s)", a.bot.Username(), a.mode())
	})

	// Webhook endpoint
	mux.Handle("/telegram-webhook", a.handler)

	return mux
}

func (a *App) mode() string {
	if a.config.WebhookMode {
		return "webhook"
	}
	return "polling"
}

// Handler returns the webhook adapter
func (a *App) Handler() *webhook.Handler {
	return a.handler
}

// RunLambda hands the webhook adapter to the Lambda runtime. It never returns.
func (a *App) RunLambda() {
	var handler interface{} = a.handler.Handle
	if a.config.Trigger == config.TriggerQueue {
		handler = a.handler.HandleQueue
	}

	a.logger.Info("Starting Lambda handler", zap.String("trigger", a.config.Trigger))
	lambda.StartWithOptions(handler, lambda.WithEnableSIGTERM(func() {
		a.logger.Info("Received SIGTERM")
		a.Shutdown()
	}))
}

// Run serves webhooks locally or long polls Telegram, depending on the configured
// mode, and blocks until ctx is done or serving fails
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 2)

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if a.config.WebhookMode {
		a.logger.Info("Bot will receive updates via HTTP endpoint /telegram-webhook")
	} else {
		go func() {
			if err := a.bot.Poll(ctx); err != nil && !errors.Is(err, bot.ErrStopped) {
				errChan <- fmt.Errorf("polling failed: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
		return a.Shutdown()
	case err := <-errChan:
		a.logger.Error("Application error", zap.Error(err))
		a.Shutdown()
		return err
	}
}

// Shutdown gracefully shuts down the application. Later calls return the first result.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		// Shutdown HTTP server gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
			a.shutdownErr = err
		}

		a.bot.Shutdown()

		a.logger.Info("Shutdown complete")
		_ = a.logger.Sync()
	})
	return a.shutdownErr
}
