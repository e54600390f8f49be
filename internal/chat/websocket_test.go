package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindred-platform/kindred/internal/auth"
)

func dialTestSocket(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()

	claims := &auth.AccessClaims{UserID: uuid.New().String()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.WebSocket(w, r.WithContext(context.WithValue(r.Context(), auth.UserClaimsKey, claims)))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_TurnLoop(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "good to see you"}, nil)
	conn := dialTestSocket(t, h)

	require.NoError(t, conn.WriteJSON(wsInbound{Content: "tell me something interesting"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))

	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "good to see you", out.Content)
	assert.False(t, out.Degraded)
	assert.NotNil(t, out.AdaptiveTraits)
}

func TestWebSocket_TriggerShortCircuit(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "should not be used"}, nil)
	conn := dialTestSocket(t, h)

	require.NoError(t, conn.WriteJSON(wsInbound{Content: "thanks for everything"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))

	assert.Equal(t, "thanks", out.Trigger)
	assert.NotEqual(t, "should not be used", out.Content)
}

// Replies and keepalive pings write from different goroutines; the write
// lock must keep them from interleaving frames.
func TestWebSocket_ConcurrentWritesAndPings(t *testing.T) {
	const writes = 50

	serverDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(serverDone)
		sock, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer sock.Close()

		conn := &wsConn{conn: sock}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				require.NoError(t, conn.writeJSON(wsOutbound{Role: "assistant", Content: "reply"}))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				require.NoError(t, conn.ping())
			}
		}()
		wg.Wait()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The server closes as soon as its writers finish; answering its pings
	// with pongs would race that close, so swallow pings instead.
	conn.SetPingHandler(func(string) error { return nil })

	// Every reply must arrive intact; corrupted frames fail the read.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for i := 0; i < writes; i++ {
		var out wsOutbound
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, "reply", out.Content)
	}

	select {
	case <-serverDone:
	case <-time.After(10 * time.Second):
		t.Fatal("server writers did not finish")
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)
	conn := dialTestSocket(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))

	assert.Equal(t, "invalid message", out.Error)
}
