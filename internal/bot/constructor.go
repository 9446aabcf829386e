package bot

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Option customizes NewBot
type Option func(*options)

type options struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	rules      []Rule
}

// WithAPIEndpoint overrides the Telegram Bot API endpoint format (see tgbotapi.APIEndpoint)
func WithAPIEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithTimeout sets the timeout of outbound Telegram requests
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithHTTPClient replaces the HTTP client used to talk to Telegram
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithRules replaces the default reply rules
func WithRules(rules []Rule) Option {
	return func(o *options) { o.rules = rules }
}

// NewBot creates a new Telegram bot
func NewBot(token string, logger *zap.Logger, opts ...Option) (*Bot, error) {
	o := options{
		endpoint: tgbotapi.APIEndpoint,
		timeout:  10 * time.Second,
		rules:    DefaultRules(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}

	if err := tgbotapi.SetLogger(zap.NewStdLog(logger.Named("tgbotapi"))); err != nil {
		logger.Warn("Failed to route bot API logs", zap.Error(err))
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.httpClient)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created",
		zap.String("bot_username", api.Self.UserName),
		zap.Int("rules", len(o.rules)),
	)

	return &Bot{
		api:        api,
		sender:     api,
		httpClient: o.httpClient,
		rules:      slices.Clone(o.rules),
		logger:     logger,
	}, nil
}

// Username returns the bot's Telegram username
func (b *Bot) Username() string {
	if b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}
