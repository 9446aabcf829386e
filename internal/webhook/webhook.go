package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"echobot/internal/bot"
)

// SecretHeader carries the secret token registered with setWebhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// secretQueryParam is accepted when the platform can't forward custom headers
const secretQueryParam = "secret"

var (
	// ErrMalformedPayload means the request body isn't one JSON encoded update
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrForbidden means the request didn't carry the expected secret token
	ErrForbidden = errors.New("invalid webhook secret")
)

// Dispatcher handles one update synchronously. *bot.Bot satisfies it.
type Dispatcher interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Handler bridges inbound webhook deliveries to a Dispatcher
type Handler struct {
	dispatcher Dispatcher
	secret     string
	logger     *zap.Logger
}

// NewHandler creates a webhook handler. An empty secret disables the secret check.
func NewHandler(dispatcher Dispatcher, secret string, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		secret:     secret,
		logger:     logger,
	}
}

// ParseUpdate decodes a webhook body into an update
func ParseUpdate(body []byte) (tgbotapi.Update, error) {
	var update tgbotapi.Update

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return update, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	if trimmed[0] != '{' {
		return update, fmt.Errorf("%w: want a JSON object", ErrMalformedPayload)
	}
	if err := json.Unmarshal(trimmed, &update); err != nil {
		return update, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return update, nil
}

// process runs one delivery through secret check, parsing and dispatch and
// returns the HTTP status to answer with
func (h *Handler) process(ctx context.Context, logger *zap.Logger, secret string, body []byte) int {
	if err := h.checkSecret(secret); err != nil {
		logger.Warn("Rejected webhook delivery", zap.Error(err))
		return statusFor(err)
	}

	update, err := ParseUpdate(body)
	if err != nil {
		logger.Warn("Error decoding webhook update", zap.Error(err), zap.Int("body_size", len(body)))
		return statusFor(err)
	}

	logger = logger.With(zap.Int("update_id", update.UpdateID))
	if err := h.dispatcher.HandleUpdate(ctx, update); err != nil {
		logger.Error("Failed to handle update", zap.Error(err))
		return statusFor(err)
	}

	logger.Debug("Update handled")
	return http.StatusOK
}

// checkSecret compares the delivered secret with the configured one
func (h *Handler) checkSecret(got string) error {
	if h.secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return ErrForbidden
	}
	return nil
}

// statusFor maps a delivery error to an HTTP status code
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, bot.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// statusBody is the response body for a status: empty on success
func statusBody(status int) string {
	if status == http.StatusOK {
		return ""
	}
	return http.StatusText(status)
}

// decodeBody undoes the platform's base64 transport encoding if present
func decodeBody(body string, isBase64 bool) ([]byte, error) {
	if !isBase64 {
		return []byte(body), nil
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 body: %v", ErrMalformedPayload, err)
	}
	return raw, nil
}

// lookupHeader finds a header in a platform header map regardless of case
func lookupHeader(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
