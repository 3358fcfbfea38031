package broadcaster

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func startServer(t *testing.T, b *ProgressBroadcaster) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		b.Register(conn)
		go func() {
			defer b.Unregister(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcast_DirectModeDeliversToRegisteredClient(t *testing.T) {
	b := NewBroadcasterWithBatching(zap.NewNop(), false)
	go b.Run()

	srv := startServer(t, b)
	conn := dial(t, srv)

	// Give the register message time to reach Run's select loop.
	time.Sleep(50 * time.Millisecond)

	b.Broadcast([]byte(`{"hello":"world"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg))
}

func TestBroadcast_BatchedModeDeliversWrappedBatch(t *testing.T) {
	b := NewBroadcaster(zap.NewNop()) // batching enabled by default
	go b.Run()

	srv := startServer(t, b)
	conn := dial(t, srv)
	time.Sleep(50 * time.Millisecond)

	b.Broadcast([]byte(`{"kind":"update"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"kind":"update"`)
	assert.Contains(t, string(msg), `"count"`)
}

func TestUnregister_BroadcastAfterClientDisconnectDoesNotPanic(t *testing.T) {
	b := NewBroadcasterWithBatching(zap.NewNop(), false)
	go b.Run()

	srv := startServer(t, b)
	conn := dial(t, srv)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, conn.Close())
	time.Sleep(50 * time.Millisecond)

	// Broadcasting after the client disappeared must not panic or block.
	b.Broadcast([]byte(`{"after":"close"}`))
	time.Sleep(50 * time.Millisecond)
}

func TestDirectBroadcast_DropsWhenChannelFull(t *testing.T) {
	b := NewBroadcasterWithBatching(zap.NewNop(), false)
	// Run() is deliberately not started so broadcastCh never drains.
	for i := 0; i < 1024; i++ {
		b.directBroadcast([]byte("x"))
	}
	// One more send must not block even though the buffered channel is full.
	done := make(chan struct{})
	go func() {
		b.directBroadcast([]byte("overflow"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("directBroadcast blocked on a full channel instead of dropping")
	}
}
