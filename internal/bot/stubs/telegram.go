package stubs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotUsername is the username reported by getMe
const BotUsername = "echo_test_bot"

// Call is one recorded Bot API request
type Call struct {
	Method string
	Params url.Values
}

// TelegramAPI is an in-memory Telegram Bot API server for tests.
// Point tgbotapi at it with Endpoint().
type TelegramAPI struct {
	Server *httptest.Server

	mu         sync.Mutex
	token      string
	calls      []Call
	failures   map[string]string
	updates    []tgbotapi.Update
	webhookURL string
	secret     string
	nextID     int
}

// NewTelegramAPI starts a fake Bot API accepting the given token
func NewTelegramAPI(token string) *TelegramAPI {
	f := &TelegramAPI{
		token:    token,
		failures: make(map[string]string),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// Endpoint returns the tgbotapi endpoint format for this server
func (f *TelegramAPI) Endpoint() string {
	return f.Server.URL + "/bot%s/%s"
}

// Close shuts the server down
func (f *TelegramAPI) Close() {
	f.Server.Close()
}

// Fail makes every call of method answer with an API error
func (f *TelegramAPI) Fail(method, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = description
}

// QueueUpdate makes update available to the next getUpdates call
func (f *TelegramAPI) QueueUpdate(update tgbotapi.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

// Calls returns recorded requests for method, or all requests if method is empty
func (f *TelegramAPI) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// SentTexts returns the text of every sendMessage call in order
func (f *TelegramAPI) SentTexts() []string {
	var texts []string
	for _, c := range f.Calls("sendMessage") {
		texts = append(texts, c.Params.Get("text"))
	}
	return texts
}

// Webhook returns the currently registered webhook URL and secret
func (f *TelegramAPI) Webhook() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.webhookURL, f.secret
}

func (f *TelegramAPI) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/bot"+f.token+"/") {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
		return
	}

	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: r.PostForm})
	description, failing := f.failures[method]
	f.mu.Unlock()

	if failing {
		writeError(w, http.StatusBadRequest, description)
		return
	}

	switch method {
	case "getMe":
		writeResult(w, tgbotapi.User{ID: 1, IsBot: true, FirstName: "Echo", UserName: BotUsername})
	case "sendMessage":
		writeResult(w, f.sendMessage(r.PostForm))
	case "setWebhook":
		f.mu.Lock()
		f.webhookURL = r.PostForm.Get("url")
		f.secret = r.PostForm.Get("secret_token")
		f.mu.Unlock()
		writeResult(w, true)
	case "deleteWebhook":
		f.mu.Lock()
		f.webhookURL, f.secret = "", ""
		f.mu.Unlock()
		writeResult(w, true)
	case "getWebhookInfo":
		f.mu.Lock()
		info := tgbotapi.WebhookInfo{URL: f.webhookURL, PendingUpdateCount: len(f.updates)}
		f.mu.Unlock()
		writeResult(w, info)
	case "getUpdates":
		writeResult(w, f.takeUpdates())
	default:
		writeError(w, http.StatusNotFound, "Not Found: method not found")
	}
}

func (f *TelegramAPI) sendMessage(form url.Values) tgbotapi.Message {
	chatID, _ := strconv.ParseInt(form.Get("chat_id"), 10, 64)

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	return tgbotapi.Message{
		MessageID: id,
		Date:      int(time.Now().Unix()),
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      form.Get("text"),
	}
}

func (f *TelegramAPI) takeUpdates() []tgbotapi.Update {
	f.mu.Lock()
	updates := f.updates
	f.updates = nil
	f.mu.Unlock()

	if len(updates) == 0 {
		// Stand in for the long poll so the client doesn't spin
		time.Sleep(10 * time.Millisecond)
		return []tgbotapi.Update{}
	}
	return updates
}

func writeResult(w http.ResponseWriter, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tgbotapi.APIResponse{Ok: true, Result: raw})
}

func writeError(w http.ResponseWriter, code int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(tgbotapi.APIResponse{Ok: false, ErrorCode: code, Description: description})
}
