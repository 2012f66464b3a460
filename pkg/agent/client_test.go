package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/chat"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:        baseURL,
		Agent:          "test-agent",
		Token:          "secret-token",
		RetryBaseDelay: time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestClientStreamSuccess(t *testing.T) {
	var gotAuth string
	var gotBody streamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/test-agent/stream", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte("data: {\"type\":\"message\",\"content\":{\"content\":\"hi\"}}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	body, err := c.Stream(context.Background(), "hello", []HistoryMessage{{Type: "human", Content: "earlier"}})
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[DONE]")

	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, "hello", gotBody.Message)
	require.True(t, gotBody.AgentConfig.ShowReasoning)
	require.Equal(t, []HistoryMessage{{Type: "human", Content: "earlier"}}, gotBody.AgentConfig.MessageHistory)
}

func TestClientStreamRetriesRateLimitThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Stream(context.Background(), "q", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBackendUnavailable))
	require.Equal(t, int32(3), calls.Load())
}

func TestClientStreamRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	body, err := c.Stream(context.Background(), "q", nil)
	require.NoError(t, err)
	_ = body.Close()
	require.Equal(t, int32(3), calls.Load())
}

func TestClientStreamNonRetryableStatusIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Stream(context.Background(), "q", nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrBackendUnavailable))
	require.Equal(t, int32(1), calls.Load())
}

func TestClientStreamTransportFailureRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	c := newTestClient(t, srv.URL)
	_, err := c.Stream(context.Background(), "q", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestClientStreamHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		BaseURL:        srv.URL,
		Agent:          "test-agent",
		RetryBaseDelay: time.Minute,
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = c.Stream(ctx, "q", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClientInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/test-agent/invoke", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"content": "complete answer"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	answer, err := c.Invoke(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, "complete answer", answer)
}

func TestClientInvokeRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), "q", nil)
	require.True(t, errors.Is(err, ErrBackendUnavailable))
	require.Equal(t, int32(3), calls.Load())
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Agent: "a"}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://x"}, zerolog.Nop())
	require.Error(t, err)
}

func TestHistoryFromTurns(t *testing.T) {
	turns := []chat.Turn{
		{Role: chat.RoleUser, Parts: []chat.Part{{Type: "text", Text: "question"}}},
		{Role: chat.RoleAssistant, Parts: []chat.Part{{Type: "text", Text: "answer"}}},
		{Role: chat.RoleSystem, Parts: []chat.Part{{Type: "text", Text: "prompt"}}},
	}
	history := HistoryFromTurns(turns)
	require.Equal(t, []HistoryMessage{
		{Type: "human", Content: "question"},
		{Type: "ai", Content: "answer"},
	}, history)
}
