package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

const (
	// sendBuffer 클라이언트별 대기 메시지 수; 넘치면 연결 종료
	sendBuffer = 16

	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// client is one websocket subscriber
type client struct {
	conn   *websocket.Conn
	tenant string // empty → all tenants
	send   chan []byte
}

// Hub fans benchmark records out to websocket subscribers
// ⭐ SSOT: 벤치마크 브로드캐스트는 이 허브에서만
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a new hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  log,
		clients: make(map[*client]struct{}),
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishBenchmark broadcasts a record; usable as a calibration benchmark handler
func (h *Hub) PublishBenchmark(rec contracts.BenchmarkRecord) {
	h.Broadcast(BenchmarkEvent(rec))
}

// Broadcast sends an event to every matching subscriber. Slow subscribers
// are dropped rather than blocking the publisher.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode stream event")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.tenant != "" && c.tenant != ev.Tenant {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.WithField("tenant", c.tenant).Warn("Dropping slow stream subscriber")
		h.remove(c)
	}
}

// ServeWS upgrades the request and streams events until the peer leaves.
// ?tenant= restricts the stream to one tenant.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{
		conn:   conn,
		tenant: r.URL.Query().Get("tenant"),
		send:   make(chan []byte, sendBuffer),
	}

	welcome, _ := json.Marshal(Event{Type: EventWelcome, Tenant: c.tenant, Timestamp: time.Now().UTC()})
	c.send <- welcome

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("tenant", c.tenant).Debug("Stream subscriber connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readLoop discards client messages and detects disconnects
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
