package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recipechat/internal/domain"
)

type echoConversation struct {
	fail bool
}

func (e echoConversation) HandleMessage(ctx context.Context, query string, prior []domain.ConversationTurn) (string, []domain.ConversationTurn) {
	turns := append([]domain.ConversationTurn(nil), prior...)
	if query == "" {
		return "Hi! How can I help you today?", turns
	}
	reply := "You asked about " + query
	if e.fail {
		reply = "Sorry! Please try again later."
	}
	return reply, append(turns, domain.ConversationTurn{UserQuery: query, BotReply: reply, Failed: e.fail})
}

// stalledConversation waits for ctx like a backend that never answers, then
// replies with the fallback.
type stalledConversation struct{}

func (stalledConversation) HandleMessage(ctx context.Context, query string, prior []domain.ConversationTurn) (string, []domain.ConversationTurn) {
	<-ctx.Done()
	reply := "Sorry! Please try again later."
	turns := append([]domain.ConversationTurn(nil), prior...)
	return reply, append(turns, domain.ConversationTurn{UserQuery: query, BotReply: reply, Failed: true})
}

type staticCounter struct {
	n   int
	err error
}

func (s staticCounter) Count(context.Context) (int, error) { return s.n, s.err }

func doJSON(t *testing.T, conv Conversation, counter Counter, method, path, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	app := NewApp(Config{}, NewChatHandler(conv, counter, 0, nil), nil)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestChat_AppendsTurn(t *testing.T) {
	body := `{"query": "chocolate cake", "turns": [{"user": "hi", "bot": "hello"}]}`
	resp, out := doJSON(t, echoConversation{}, staticCounter{}, http.MethodPost, "/api/v1/chat", body, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "You asked about chocolate cake", out["reply"])

	turns, ok := out["turns"].([]any)
	require.True(t, ok)
	require.Len(t, turns, 2)
	last := turns[1].(map[string]any)
	assert.Equal(t, "chocolate cake", last["user"])
	assert.NotContains(t, last, "failed")
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
}

func TestChat_EmptyQueryGreets(t *testing.T) {
	resp, out := doJSON(t, echoConversation{}, staticCounter{}, http.MethodPost, "/api/v1/chat", `{"query": "   "}`, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hi! How can I help you today?", out["reply"])
	assert.Empty(t, out["turns"])
}

func TestChat_FailedTurnIsFlagged(t *testing.T) {
	_, out := doJSON(t, echoConversation{fail: true}, staticCounter{}, http.MethodPost, "/api/v1/chat", `{"query": "soup"}`, nil)

	assert.Equal(t, "Sorry! Please try again later.", out["reply"])
	turns := out["turns"].([]any)
	require.Len(t, turns, 1)
	assert.Equal(t, true, turns[0].(map[string]any)["failed"])
}

func TestChat_RequestTimeoutEndsStalledMessage(t *testing.T) {
	app := NewApp(Config{}, NewChatHandler(stalledConversation{}, staticCounter{}, 50*time.Millisecond, nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"query": "soup"}`))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Sorry! Please try again later.", out.Reply)
	require.Len(t, out.Turns, 1)
	assert.True(t, out.Turns[0].Failed)
}

func TestChat_InvalidBody(t *testing.T) {
	resp, out := doJSON(t, echoConversation{}, staticCounter{}, http.MethodPost, "/api/v1/chat", `{"query":`, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", out["error"])
}

func TestChat_QueryTooLong(t *testing.T) {
	body := `{"query": "` + strings.Repeat("a", maxQueryLength+1) + `"}`
	resp, _ := doJSON(t, echoConversation{}, staticCounter{}, http.MethodPost, "/api/v1/chat", body, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRequestID_Propagated(t *testing.T) {
	resp, _ := doJSON(t, echoConversation{}, staticCounter{}, http.MethodPost, "/api/v1/chat", `{"query": "x"}`,
		map[string]string{HeaderRequestID: "abc-123"})

	assert.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))
}

func TestHealth(t *testing.T) {
	resp, out := doJSON(t, echoConversation{}, staticCounter{n: 42}, http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, float64(42), out["recipes"])
}

func TestHealth_IndexUnavailable(t *testing.T) {
	counter := staticCounter{err: errors.New("connection refused")}
	resp, out := doJSON(t, echoConversation{}, counter, http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", out["status"])
}
