package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/eodsignals/internal/realtime/cache"
	"github.com/wonny/eodsignals/pkg/logger"
)

const (
	// PingInterval is how often idle clients are pinged
	PingInterval = 30 * time.Second
	// WriteTimeout bounds every frame write
	WriteTimeout = 10 * time.Second
	// clientBuffer is the per-client queue; a full queue drops the client
	clientBuffer = 64
)

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans run-log events out to websocket clients.
// It implements logger.RunSink, so every RunLogger wired to it streams to /ws/runs.
// ⭐ SSOT: 실행 로그 브로드캐스트는 여기서만
type Hub struct {
	upgrader websocket.Upgrader
	cache    *cache.RunCache
	logger   *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub that remembers the latest event per job for ttl
func NewHub(ttl time.Duration, log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cache:   cache.NewRunCache(ttl, log),
		logger:  log,
		clients: make(map[*client]struct{}),
	}
}

// Publish caches the event and broadcasts it; slow clients are dropped
func (h *Hub) Publish(event logger.RunEvent) {
	h.cache.Update(event)

	msg := Message{Type: MessageRunEvent, Event: &event}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow websocket client")
			h.removeLocked(c)
		}
	}
}

// Latest drops stale events and returns the latest event of every job
func (h *Hub) Latest() []logger.RunEvent {
	h.cache.CleanStale()
	return h.cache.All()
}

// Status is the body of GET /api/runs
type Status struct {
	Clients int               `json:"clients"`
	Cache   cache.CacheStats  `json:"cache"`
	Runs    []logger.RunEvent `json:"runs"`
}

// Status reports connected clients and the latest event of every job
func (h *Hub) Status() Status {
	runs := h.Latest()
	return Status{Clients: h.Clients(), Cache: h.cache.Stats(), Runs: runs}
}

// ServeStatus writes Status as JSON
func (h *Hub) ServeStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Status()); err != nil {
		h.logger.WithError(err).Warn("Failed to encode run status")
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams run events until the client disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientBuffer)}
	c.send <- Message{Type: MessageSnapshot, Events: h.cache.All()}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("remote", r.RemoteAddr).Debug("WebSocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readLoop discards client frames and detects disconnects
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithError(err).Debug("WebSocket read ended")
			}
			return
		}
	}
}

// writeLoop drains the client queue and pings while idle
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
