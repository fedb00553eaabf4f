package gateway

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, string) {
	b := NewBroadcaster(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))
	t.Cleanup(b.Close)

	ts := httptest.NewServer(http.HandlerFunc(b.HandleWS))
	t.Cleanup(ts.Close)

	return b, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, b *Broadcaster, want int) {
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, b.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcaster(t *testing.T) {
	t.Run("should deliver events to connected clients", func(t *testing.T) {
		b, url := newTestBroadcaster(t)
		conn := dialWS(t, url)
		waitForClients(t, b, 1)

		b.Broadcast(ProgressEvent{Type: "tool_call_started", Tool: "web_search", Iteration: 1})

		var event ProgressEvent
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "tool_call_started", event.Type)
		assert.Equal(t, "web_search", event.Tool)
		assert.Equal(t, 1, event.Iteration)
	})

	t.Run("should fan out to multiple clients", func(t *testing.T) {
		b, url := newTestBroadcaster(t)
		first := dialWS(t, url)
		second := dialWS(t, url)
		waitForClients(t, b, 2)

		b.Broadcast(ProgressEvent{Type: "tool_call_finished", Tool: "web_fetch"})

		for _, conn := range []*websocket.Conn{first, second} {
			var event ProgressEvent
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			require.NoError(t, conn.ReadJSON(&event))
			assert.Equal(t, "web_fetch", event.Tool)
		}
	})

	t.Run("should serialize concurrent broadcasts to one connection", func(t *testing.T) {
		b, url := newTestBroadcaster(t)
		conn := dialWS(t, url)
		waitForClients(t, b, 1)

		const perSender = 200
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(sender int) {
				defer wg.Done()
				for n := 0; n < perSender; n++ {
					b.Broadcast(ProgressEvent{Type: "tool_call_started", Iteration: sender})
				}
			}(i)
		}

		received := 0
		for received < 2*perSender {
			var event ProgressEvent
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			require.NoError(t, conn.ReadJSON(&event))
			received++
		}
		wg.Wait()

		assert.Equal(t, 2*perSender, received)
		assert.Equal(t, 1, b.ClientCount(), "client must survive concurrent broadcasts")
	})

	t.Run("should drop disconnected clients", func(t *testing.T) {
		b, url := newTestBroadcaster(t)
		conn := dialWS(t, url)
		waitForClients(t, b, 1)

		conn.Close()
		waitForClients(t, b, 0)

		// Broadcasting after the drop must not block or panic.
		b.Broadcast(ProgressEvent{Type: "tool_call_started"})
		assert.Equal(t, 0, b.ClientCount())
	})
}
