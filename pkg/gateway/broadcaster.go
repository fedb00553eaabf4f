package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// wsClient pairs a connection with its write lock. gorilla/websocket allows
// one writer at a time per connection; every write goes through writeJSON.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(payload)
}

// Broadcaster fans agent progress events out to connected websocket clients.
// Delivery is best effort: a slow or dead client is dropped, never waited on.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  zerolog.Logger

	upgrader websocket.Upgrader
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request to a websocket connection and registers it.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn}

	b.mu.Lock()
	b.clients[client] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug().Int("clients", count).Msg("Websocket client connected")

	// Drain reads so close frames and pings are processed; drop on error.
	go func() {
		defer b.remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a JSON payload to every connected client. Safe for
// concurrent use; concurrent agent runs may broadcast at the same time.
func (b *Broadcaster) Broadcast(payload interface{}) {
	b.mu.Lock()
	clients := make([]*wsClient, 0, len(b.clients))
	for client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.Unlock()

	for _, client := range clients {
		if err := client.writeJSON(payload); err != nil {
			b.logger.Debug().Err(err).Msg("Dropping websocket client")
			b.remove(client)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		client.conn.Close()
	}
	b.clients = make(map[*wsClient]struct{})
}

func (b *Broadcaster) remove(client *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		client.conn.Close()
	}
}
