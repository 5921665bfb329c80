// Live WebSocket feed of economy snapshots for dashboard clients.
//
// All writes to a connection go through its send channel into a single
// writePump goroutine, eliminating concurrent write races between pings,
// the periodic broadcast, and event-driven pushes.
package fabric

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second // Time allowed to read the next pong
	pingPeriod = 30 * time.Second // Send pings at this interval (must be < pongWait)
	writeWait  = 10 * time.Second // Time allowed to write a message
	maxMsgSize = 64 * 1024        // Inbound frames are keepalive-only
	sendBuffer = 16               // Per-client outbound snapshot buffer
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The feed is read-only public state; origin checks stay permissive.
	CheckOrigin: func(*http.Request) bool { return true },
}

// SnapshotFunc produces the current state view to broadcast.
type SnapshotFunc func() any

// Stream fans economy snapshots out to connected WebSocket clients: a
// fixed-interval broadcast plus an immediate push on settlement events.
type Stream struct {
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	snapshot SnapshotFunc
	interval time.Duration
}

type streamClient struct {
	stream *Stream
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewStream creates a snapshot stream. interval is the periodic broadcast
// cadence; bus (optional) triggers an extra broadcast on settled payments.
func NewStream(snapshot SnapshotFunc, interval time.Duration, bus EventBus) *Stream {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s := &Stream{
		clients:  make(map[*streamClient]struct{}),
		snapshot: snapshot,
		interval: interval,
	}
	if bus != nil {
		bus.Subscribe(EventPaymentSettled, func(context.Context, *Event) error {
			s.BroadcastSnapshot()
			return nil
		})
	}
	return s
}

// HandleWebSocket upgrades the connection and registers the client.
// The current snapshot is sent immediately on connect.
func (s *Stream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		stream: s,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	slog.Info("WebSocket client connected", "clients", n)

	if data, err := json.Marshal(s.snapshot()); err == nil {
		c.send <- data
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (s *Stream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// BroadcastSnapshot marshals the current snapshot and sends it to every
// client. Clients whose buffers are full skip this cycle; clients whose
// connections have died are pruned by their own pumps.
func (s *Stream) BroadcastSnapshot() {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	data, err := json.Marshal(s.snapshot())
	if err != nil {
		slog.Warn("Snapshot marshal failed", "error", err)
		return
	}

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer, skip this cycle rather than block.
		}
	}
}

// Run broadcasts snapshots at the configured interval until cancelled.
func (s *Stream) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.BroadcastSnapshot()
		}
	}
}

// close unregisters the client and tears down the connection exactly once.
func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.stream.mu.Lock()
		delete(c.stream.clients, c)
		c.stream.mu.Unlock()
		c.conn.Close()
		slog.Info("WebSocket client disconnected")
	})
}

// writePump owns all writes to the connection: snapshots and pings.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump drains inbound frames (the feed is one-way; clients only send
// keepalives) and detects disconnects.
func (c *streamClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
