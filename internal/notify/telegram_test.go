package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/traderelay/internal/domain"
)

func newTelegram(t *testing.T, h http.HandlerFunc) *Telegram {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tg, err := NewTelegram(TelegramConfig{BaseURL: srv.URL, Token: "123:SECRET", ChatID: "-100"})
	require.NoError(t, err)
	return tg
}

func TestTelegram_SendThreaded(t *testing.T) {
	var got map[string]any
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:SECRET/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	})

	handle, err := tg.Send(context.Background(), "hello *world*", "55")
	require.NoError(t, err)
	assert.Equal(t, "77", handle)

	assert.Equal(t, "-100", got["chat_id"])
	assert.Equal(t, "hello *world*", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Equal(t, map[string]any{
		"message_id":                  float64(55),
		"allow_sending_without_reply": true,
	}, got["reply_parameters"])
}

func TestTelegram_SendStandalone(t *testing.T) {
	var got map[string]any
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	_, err := tg.Send(context.Background(), "x", "")
	require.NoError(t, err)
	_, threaded := got["reply_parameters"]
	assert.False(t, threaded)
}

func TestTelegram_APIError(t *testing.T) {
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	_, err := tg.Send(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotificationError))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegram_NotRetried(t *testing.T) {
	var hits atomic.Int32
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
	})

	_, err := tg.Send(context.Background(), "x", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestTelegram_TimeoutRedactsToken(t *testing.T) {
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tg.Send(ctx, "x", "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotificationError))
	assert.False(t, strings.Contains(err.Error(), "SECRET"), err.Error())
}

func TestNewTelegram_RequiresCredentials(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{ChatID: "1"})
	assert.Error(t, err)
	_, err = NewTelegram(TelegramConfig{Token: "t"})
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	h1, err := r.Send(context.Background(), "a", "")
	require.NoError(t, err)
	h2, err := r.Send(context.Background(), "b", h1)
	require.NoError(t, err)
	assert.Equal(t, "1", h1)
	assert.Equal(t, "2", h2)

	r.ErrorOnNext = assert.AnError
	_, err = r.Send(context.Background(), "c", h2)
	assert.True(t, domain.IsKind(err, domain.KindNotificationError))

	sent := r.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, Sent{Text: "b", ReplyTo: "1", Handle: "2"}, sent[1])
}
