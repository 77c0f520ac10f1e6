package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

const (
	hubClientBuffer = 16
	hubWriteTimeout = 5 * time.Second
)

// Hub pushes updates to connected panel clients over WebSocket. It is both
// a Sink and the http.Handler clients connect to. A client that falls
// behind by more than its buffer is disconnected.
type Hub struct {
	mu             sync.Mutex
	clients        map[*hubClient]struct{}
	closed         bool
	originPatterns []string
	logger         *slog.Logger
}

type hubClient struct {
	send chan []byte
	once sync.Once
}

func (c *hubClient) close() { c.once.Do(func() { close(c.send) }) }

// NewHub creates a Hub. originPatterns are passed to websocket.Accept for
// cross-origin panels; nil allows same-host origins only.
func NewHub(logger *slog.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:        make(map[*hubClient]struct{}),
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) SendUpdate(_ context.Context, u conversation.Update) error {
	b, err := json.Marshal(envelope{Type: u.Type, Data: u})
	if err != nil {
		return fmt.Errorf("hub: marshal: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("hub: slow client dropped")
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	return nil
}

// ServeHTTP upgrades the request and streams updates until the client
// leaves, the hub closes, or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("hub: accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	c := &hubClient{send: make(chan []byte, hubClientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.close()
	}()

	// Panels never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bye")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				h.logger.Debug("hub: write failed", "close_status", websocket.CloseStatus(err), "error", err)
				return
			}
		}
	}
}
