// Package telemetry fans the engine's pull-based get_telemetry()
// snapshot out to any number of connected control surfaces over
// WebSocket. The hub polls on a fixed interval and only broadcasts a
// snapshot when it differs from the last one sent, so an idle show
// produces no stream traffic (design note §9's "pull-based
// get_telemetry() + edge-wrapped broadcast").
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartomix/choreo/internal/engine"
)

const (
	writeWait      = 5 * time.Second
	clientSendSize = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Source is the read-only telemetry provider the hub polls.
// *engine.Engine satisfies it directly.
type Source interface {
	GetTelemetry() engine.Telemetry
}

type client struct {
	conn *websocket.Conn
	send chan engine.Telemetry
}

// Hub fans a single polled Source out to every connected WebSocket
// client.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
}

// NewHub builds an idle hub. Call Run to start polling and
// broadcasting; call ServeWS to register new clients with it.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run polls source every pollInterval and broadcasts each changed
// snapshot to every registered client. It blocks until ctx is done.
func (h *Hub) Run(ctx context.Context, source Source, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last engine.Telemetry
	haveLast := false

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case <-ticker.C:
			last, haveLast = h.pollAndBroadcast(source, last, haveLast)
		}
	}
}

// pollAndBroadcast reads source once and broadcasts only if the
// snapshot changed since last. Split out from Run so it can be driven
// directly in tests without a real ticker.
func (h *Hub) pollAndBroadcast(source Source, last engine.Telemetry, haveLast bool) (engine.Telemetry, bool) {
	snap := source.GetTelemetry()
	if haveLast && reflect.DeepEqual(snap, last) {
		return last, haveLast
	}
	h.broadcast(snap)
	return snap, true
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(t engine.Telemetry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- t:
		default:
			h.logger.Warn("telemetry client send buffer full, dropping snapshot")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request to a WebSocket connection, registers it
// with the hub, and blocks until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("telemetry upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan engine.Telemetry, clientSendSize)}
	h.register <- c

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound messages (this stream is server-to-client
// only) and exists solely to detect client disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for snap := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(snap); err != nil {
			return
		}
	}
}
