package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"card-trader-go/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Hub streams ledger stats to connected websocket clients.
type Hub struct {
	log      *zap.Logger
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log.Named("ws"),
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends v as JSON to every client. Clients that fail to receive
// are dropped.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("Failed to marshal broadcast", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("Dropping websocket client", zap.Error(err))
			h.remove(c)
		}
	}
}

// Run calls source every interval and broadcasts the result until ctx is
// done. Clients are pinged on the same loop.
func (h *Hub) Run(ctx context.Context, interval time.Duration, source func(context.Context) (any, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			v, err := source(ctx)
			if err != nil {
				h.log.Warn("Stream source failed", zap.Error(err))
				continue
			}
			h.Broadcast(v)
		case <-ping.C:
			h.pingAll()
		}
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, nil)
}

// HandlerWithSnapshot is ServeHTTP that greets new clients with snapshot().
func (h *Hub) HandlerWithSnapshot(snapshot func(context.Context) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, snapshot)
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, snapshot func(context.Context) (any, error)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	if snapshot != nil {
		if v, err := snapshot(r.Context()); err == nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				conn.Close()
				return
			}
		}
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	metrics.WebSocketClients.Inc()
	h.mu.Unlock()

	// Read pump: keeps the deadline fresh and detects disconnects.
	go func() {
		defer func() {
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) pingAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.remove(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.remove(c)
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *websocket.Conn) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	metrics.WebSocketClients.Dec()
	c.Close()
}
