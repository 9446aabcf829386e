package webhook

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"echobot/internal/bot"
	"echobot/internal/bot/stubs"
)

const (
	testToken = "123:abc"

	startBody = `{"update_id":1,"message":{"message_id":10,"date":1700000000,"chat":{"id":456,"type":"private"},"from":{"id":123,"is_bot":false,"first_name":"Ann"},"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`
	helpBody  = `{"update_id":2,"message":{"message_id":11,"date":1700000000,"chat":{"id":456,"type":"private"},"text":"/help","entities":[{"type":"bot_command","offset":0,"length":5}]}}`
	helloBody = `{"update_id":3,"message":{"message_id":12,"date":1700000000,"chat":{"id":456,"type":"private"},"text":"hello"}}`
	photoBody = `{"update_id":4,"message":{"message_id":13,"date":1700000000,"chat":{"id":456,"type":"private"},"photo":[{"file_id":"p1","file_unique_id":"u1","width":90,"height":90}]}}`
	pollBody  = `{"update_id":5,"poll":{"id":"1","question":"?","options":[],"total_voter_count":0,"is_closed":false,"is_anonymous":true,"type":"regular","allows_multiple_answers":false}}`
)

// fakeDispatcher records dispatched updates
type fakeDispatcher struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
	err     error
	errFor  map[int]error
}

func (d *fakeDispatcher) HandleUpdate(_ context.Context, update tgbotapi.Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, update)
	if err, ok := d.errFor[update.UpdateID]; ok {
		return err
	}
	return d.err
}

func TestParseUpdate(t *testing.T) {
	update, err := ParseUpdate([]byte(helloBody))
	require.NoError(t, err)
	assert.Equal(t, 3, update.UpdateID)
	require.NotNil(t, update.Message)
	assert.Equal(t, "hello", update.Message.Text)

	for _, body := range []string{"", "   ", "not json", "null", "[]", `{"update_id":`, `"text"`} {
		_, err := ParseUpdate([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedPayload, "body %q", body)
	}
}

func TestHandle_StatusCodes(t *testing.T) {
	testCases := []struct {
		name        string
		secret      string
		dispatchErr error
		req         events.APIGatewayProxyRequest
		wantStatus  int
		wantBody    string
		wantUpdates int
	}{
		{
			name:        "well formed update",
			req:         events.APIGatewayProxyRequest{Body: helloBody},
			wantStatus:  http.StatusOK,
			wantBody:    "",
			wantUpdates: 1,
		},
		{
			name:        "update without message",
			req:         events.APIGatewayProxyRequest{Body: pollBody},
			wantStatus:  http.StatusOK,
			wantUpdates: 1,
		},
		{
			name:        "base64 body",
			req:         events.APIGatewayProxyRequest{Body: base64.StdEncoding.EncodeToString([]byte(helloBody)), IsBase64Encoded: true},
			wantStatus:  http.StatusOK,
			wantUpdates: 1,
		},
		{
			name:       "bad base64 body",
			req:        events.APIGatewayProxyRequest{Body: "%%%", IsBase64Encoded: true},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Bad Request",
		},
		{
			name:       "empty body",
			req:        events.APIGatewayProxyRequest{Body: ""},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Bad Request",
		},
		{
			name:       "invalid json",
			req:        events.APIGatewayProxyRequest{Body: "{oops"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Bad Request",
		},
		{
			name:        "secret in header",
			secret:      "s3cret",
			req:         events.APIGatewayProxyRequest{Body: helloBody, Headers: map[string]string{"x-telegram-bot-api-secret-token": "s3cret"}},
			wantStatus:  http.StatusOK,
			wantUpdates: 1,
		},
		{
			name:        "secret in query",
			secret:      "s3cret",
			req:         events.APIGatewayProxyRequest{Body: helloBody, QueryStringParameters: map[string]string{"secret": "s3cret"}},
			wantStatus:  http.StatusOK,
			wantUpdates: 1,
		},
		{
			name:       "missing secret",
			secret:     "s3cret",
			req:        events.APIGatewayProxyRequest{Body: helloBody},
			wantStatus: http.StatusForbidden,
			wantBody:   "Forbidden",
		},
		{
			name:       "wrong secret",
			secret:     "s3cret",
			req:        events.APIGatewayProxyRequest{Body: helloBody, Headers: map[string]string{SecretHeader: "guess"}},
			wantStatus: http.StatusForbidden,
			wantBody:   "Forbidden",
		},
		{
			name:        "dispatch failure",
			dispatchErr: errors.New("send failed"),
			req:         events.APIGatewayProxyRequest{Body: helloBody},
			wantStatus:  http.StatusInternalServerError,
			wantBody:    "Internal Server Error",
			wantUpdates: 1,
		},
		{
			name:        "bot stopped",
			dispatchErr: bot.ErrStopped,
			req:         events.APIGatewayProxyRequest{Body: helloBody},
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    "Service Unavailable",
			wantUpdates: 1,
		},
		{
			name:        "dispatch timeout",
			dispatchErr: context.DeadlineExceeded,
			req:         events.APIGatewayProxyRequest{Body: helloBody},
			wantStatus:  http.StatusGatewayTimeout,
			wantBody:    "Gateway Timeout",
			wantUpdates: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{err: tc.dispatchErr}
			h := NewHandler(dispatcher, tc.secret, zap.NewNop())

			resp, err := h.Handle(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantBody, resp.Body)
			assert.Len(t, dispatcher.updates, tc.wantUpdates)
		})
	}
}

func TestHandle_LogsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewHandler(&fakeDispatcher{}, "", zap.New(core))

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	_, err := h.Handle(ctx, events.APIGatewayProxyRequest{Body: "{bad"})
	require.NoError(t, err)

	entries := logs.FilterMessage("Error decoding webhook update").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

// End to end: real bot, fake Telegram API
func newBotHandler(t *testing.T) (*Handler, *stubs.TelegramAPI) {
	t.Helper()

	api := stubs.NewTelegramAPI(testToken)
	t.Cleanup(api.Close)

	b, err := bot.NewBot(testToken, zap.NewNop(), bot.WithAPIEndpoint(api.Endpoint()))
	require.NoError(t, err)
	t.Cleanup(b.Shutdown)

	return NewHandler(b, "", zap.NewNop()), api
}

func TestHandle_Replies(t *testing.T) {
	testCases := []struct {
		name      string
		body      string
		wantReply string
	}{
		{name: "start", body: startBody, wantReply: bot.WelcomeText},
		{name: "help", body: helpBody, wantReply: bot.HelpText},
		{name: "echo", body: helloBody, wantReply: "hello"},
		{name: "non-text", body: photoBody, wantReply: bot.UnsupportedText},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, api := newBotHandler(t)

			resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{Body: tc.body})
			require.NoError(t, err)
			assert.Equal(t, events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: ""}, resp)
			assert.Equal(t, []string{tc.wantReply}, api.SentTexts())
		})
	}
}

func TestHandle_NoReplyForMessagelessUpdate(t *testing.T) {
	h, api := newBotHandler(t)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{Body: pollBody})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, api.SentTexts())
}

func TestHandle_SendFailure(t *testing.T) {
	h, api := newBotHandler(t)
	api.Fail("sendMessage", "Forbidden: bot was blocked by the user")

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{Body: helloBody})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleQueue(t *testing.T) {
	dispatcher := &fakeDispatcher{errFor: map[int]error{4: errors.New("send failed")}}
	h := NewHandler(dispatcher, "", zap.NewNop())

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: helloBody},
		{MessageId: "m2", Body: "not json"},
		{MessageId: "m3", Body: photoBody},
		{MessageId: "m4", Body: startBody},
	}}

	resp, err := h.HandleQueue(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, dispatcher.updates, 3)
	assert.Equal(t, []int{3, 4, 1}, []int{dispatcher.updates[0].UpdateID, dispatcher.updates[1].UpdateID, dispatcher.updates[2].UpdateID})
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m3"}}, resp.BatchItemFailures)
}

func TestHandleQueue_Stopped(t *testing.T) {
	dispatcher := &fakeDispatcher{err: bot.ErrStopped}
	h := NewHandler(dispatcher, "", zap.NewNop())

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: helloBody},
		{MessageId: "m2", Body: startBody},
		{MessageId: "m3", Body: helpBody},
	}}

	resp, err := h.HandleQueue(context.Background(), event)
	require.NoError(t, err)
	assert.Len(t, dispatcher.updates, 1)
	assert.Equal(t, []events.SQSBatchItemFailure{
		{ItemIdentifier: "m1"}, {ItemIdentifier: "m2"}, {ItemIdentifier: "m3"},
	}, resp.BatchItemFailures)
}

func TestServeHTTP(t *testing.T) {
	testCases := []struct {
		name       string
		secret     string
		method     string
		target     string
		body       string
		header     map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "post update", method: http.MethodPost, target: "/telegram-webhook", body: helloBody, wantStatus: http.StatusOK},
		{name: "get rejected", method: http.MethodGet, target: "/telegram-webhook", wantStatus: http.StatusMethodNotAllowed},
		{name: "bad json", method: http.MethodPost, target: "/telegram-webhook", body: "nope", wantStatus: http.StatusBadRequest, wantBody: "Bad Request"},
		{name: "secret header", secret: "s3cret", method: http.MethodPost, target: "/telegram-webhook", body: helloBody, header: map[string]string{SecretHeader: "s3cret"}, wantStatus: http.StatusOK},
		{name: "secret query", secret: "s3cret", method: http.MethodPost, target: "/telegram-webhook?secret=s3cret", body: helloBody, wantStatus: http.StatusOK},
		{name: "no secret", secret: "s3cret", method: http.MethodPost, target: "/telegram-webhook", body: helloBody, wantStatus: http.StatusForbidden, wantBody: "Forbidden"},
		{name: "oversized body", method: http.MethodPost, target: "/telegram-webhook", body: strings.Repeat("x", maxBodySize+1), wantStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{}
			h := NewHandler(dispatcher, tc.secret, zap.NewNop())

			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			for key, value := range tc.header {
				req.Header.Set(key, value)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantBody, rec.Body.String())
			if tc.wantStatus != http.StatusOK {
				assert.Empty(t, dispatcher.updates)
			}
		})
	}
}
