package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// HandleUpdate processes a single update with the first matching rule.
// Updates without a message are acknowledged without a reply.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := update.Message
	if message == nil || message.Chat == nil {
		b.logger.Debug("Ignoring update without message", zap.Int("update_id", update.UpdateID))
		return nil
	}

	rule, ok := b.match(message)
	if !ok {
		b.logger.Debug("No rule matched", zap.Int("update_id", update.UpdateID))
		return nil
	}

	b.logger.Info("Handling message",
		zap.Int("update_id", update.UpdateID),
		zap.Int64("chat_id", message.Chat.ID),
		zap.String("rule", rule.Name),
	)

	msg := tgbotapi.NewMessage(message.Chat.ID, rule.Reply(message))
	msg.ReplyToMessageID = message.MessageID
	if err := b.sendMessage(msg); err != nil {
		return fmt.Errorf("failed to reply with rule %s: %w", rule.Name, err)
	}
	return nil
}

// match returns the first rule whose predicate accepts the message
func (b *Bot) match(message *tgbotapi.Message) (Rule, bool) {
	for _, rule := range b.rules {
		if rule.Match(message) {
			return rule, true
		}
	}
	return Rule{}, false
}
