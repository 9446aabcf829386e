package bot

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ErrStopped is returned by HandleUpdate once the bot has been shut down
var ErrStopped = errors.New("bot is stopped")

// Sender delivers outgoing messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api        *tgbotapi.BotAPI
	sender     Sender
	httpClient *http.Client
	rules      []Rule
	logger     *zap.Logger

	stopped  atomic.Bool
	stopOnce sync.Once
	polling  atomic.Bool
}

// Rule pairs a trigger predicate with a reply template
type Rule struct {
	Name  string
	Match func(message *tgbotapi.Message) bool
	Reply func(message *tgbotapi.Message) string
}
