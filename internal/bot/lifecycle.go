package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const webhookMaxConnections = 40

var errNoAPI = errors.New("bot API is not initialized")

// Poll receives updates by long polling until ctx is done or the bot is shut down.
// Only meant for local development, where Telegram can't reach a webhook.
func (b *Bot) Poll(ctx context.Context) error {
	if b.api == nil {
		return errNoAPI
	}
	if b.stopped.Load() {
		return ErrStopped
	}

	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.polling.Store(true)
	updates := b.api.GetUpdatesChan(u)
	if b.stopped.Load() {
		b.stopPolling()
		return ErrStopped
	}

	b.logger.Info("Bot started successfully. Waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.stopPolling()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.HandleUpdate(ctx, update); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				b.logger.Error("Failed to handle update", zap.Error(err), zap.Int("update_id", update.UpdateID))
			}
		}
	}
}

// SetWebhook registers webhookURL with Telegram. A non-empty secret is echoed back by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (b *Bot) SetWebhook(webhookURL, secret string) error {
	if b.api == nil {
		return errNoAPI
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid webhook URL %q: Telegram requires an absolute https URL", webhookURL)
	}

	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	params := tgbotapi.Params{"url": u.String()}
	params.AddNonEmpty("secret_token", secret)
	params.AddNonZero("max_connections", webhookMaxConnections)
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return fmt.Errorf("failed to encode allowed updates: %w", err)
	}

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	b.logger.Info("Webhook set successfully", zap.String("webhook_url", webhookURL))
	return nil
}

// DeleteWebhook removes the registered webhook, optionally dropping queued updates
func (b *Bot) DeleteWebhook(dropPending bool) error {
	if b.api == nil {
		return errNoAPI
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
		b.logger.Error("Failed to delete webhook", zap.Error(err))
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	b.logger.Info("Webhook deleted", zap.Bool("drop_pending_updates", dropPending))
	return nil
}

// WebhookInfo returns the current webhook status as reported by Telegram
func (b *Bot) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	if b.api == nil {
		return tgbotapi.WebhookInfo{}, errNoAPI
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("failed to get webhook info: %w", err)
	}

	b.logger.Debug("Webhook info",
		zap.String("url", info.URL),
		zap.Int("pending_updates", info.PendingUpdateCount),
	)
	return info, nil
}

// Shutdown stops accepting updates, ends long polling and releases idle connections.
// It is safe to call more than once.
func (b *Bot) Shutdown() {
	if b.stopped.Swap(true) {
		return
	}

	b.logger.Info("Shutting down bot")

	if b.polling.Load() {
		b.stopPolling()
	}
	if b.httpClient != nil {
		b.httpClient.CloseIdleConnections()
	}
}

// stopPolling closes the tgbotapi updates channel exactly once
func (b *Bot) stopPolling() {
	b.stopOnce.Do(func() {
		if b.api != nil {
			b.api.StopReceivingUpdates()
		}
	})
}
