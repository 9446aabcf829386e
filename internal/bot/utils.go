package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// sendMessage sends a message and logs the outcome
func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if b.sender == nil {
		return nil // For testing
	}

	sent, err := b.sender.Send(msg)
	if err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", msg.ChatID),
		)
		return err
	}

	b.logger.Debug("Message sent",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("message_id", sent.MessageID),
	)
	return nil
}
