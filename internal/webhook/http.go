package webhook

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

// ServeHTTP answers webhook deliveries made directly over HTTP (local or container mode)
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	logger := h.logger.With(zap.String("request_id", id))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		logger.Warn("Error reading webhook body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	secret := r.Header.Get(SecretHeader)
	if secret == "" {
		secret = r.URL.Query().Get(secretQueryParam)
	}

	status := h.process(r.Context(), logger, secret, body)
	w.WriteHeader(status)
	if text := statusBody(status); text != "" {
		io.WriteString(w, text)
	}
}
