package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		ChannelAccessToken: "test-token",
		BaseURL:            server.URL,
		Timeout:            2 * time.Second,
	})
}

func TestClientPushSendsTextMessage(t *testing.T) {
	var (
		gotPath     string
		gotAuth     string
		gotRetryKey string
		gotBody     map[string]any
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetryKey = r.Header.Get("X-Line-Retry-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	err := client.Push(context.Background(), "U1", "hello", "key-1")
	require.NoError(t, err)

	assert.Equal(t, "/v2/bot/message/push", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "key-1", gotRetryKey)
	assert.Equal(t, "U1", gotBody["to"])
	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, map[string]any{"type": "text", "text": "hello"}, messages[0])
}

func TestClientPushConflictOnRetryKeyCountsAsDelivered(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"The retry key is already accepted"}`))
	})

	assert.NoError(t, client.Push(context.Background(), "U1", "hello", "key-1"))

	err := client.Push(context.Background(), "U1", "hello", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestClientReply(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, client.Reply(context.Background(), "token-1", "hi"))
	assert.Equal(t, "token-1", gotBody["replyToken"])
}

func TestClientGetProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/profile/U1" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"userId":"U1","displayName":"Alice"}`))
	})

	profile, err := client.GetProfile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)

	_, err = client.GetProfile(context.Background(), "U2")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not found", apiErr.Message)
}

func TestClientUnavailableWithoutToken(t *testing.T) {
	client := NewClient(ClientConfig{})

	err := client.Push(context.Background(), "U1", "hello", "")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.False(t, client.Available())
}

func TestClientRejectsEmptyTargets(t *testing.T) {
	client := NewClient(ClientConfig{ChannelAccessToken: "t"})

	assert.Error(t, client.Push(context.Background(), " ", "hello", ""))
	assert.Error(t, client.Reply(context.Background(), "", "hello"))
	_, err := client.GetProfile(context.Background(), "")
	assert.Error(t, err)
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		ChannelAccessToken: "t",
		BaseURL:            server.URL,
		Timeout:            20 * time.Millisecond,
	})
	err := client.Push(context.Background(), "U1", "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}
