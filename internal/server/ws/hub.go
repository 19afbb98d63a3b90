// Package ws streams reconciled auction views to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/livebid/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 512

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 16
)

// ViewSource publishes reconciled views. The channel is closed when the
// source shuts down.
type ViewSource interface {
	Watch() (<-chan domain.ReconciledView, func())
}

// message is the envelope written to clients.
type message struct {
	Type    string                `json:"type"`
	Payload domain.ReconciledView `json:"payload"`
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans each new view out to every connected client. A client that joins
// receives the latest view immediately.
type Hub struct {
	source     ViewSource
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	done       chan struct{}
	latest     []byte
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub streaming views from source. checkOrigin may be nil to
// accept every origin.
func NewHub(source ViewSource, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and view broadcasting. The loop exits when ctx is cancelled
// or the view source closes; every client is disconnected on exit.
func (h *Hub) Run(ctx context.Context) error {
	views, cancel := h.source.Watch()
	defer cancel()
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil

		case view, ok := <-views:
			if !ok {
				h.logger.Info("ws: view source closed")
				return nil
			}
			data, err := json.Marshal(message{Type: "view", Payload: view})
			if err != nil {
				h.logger.Error("ws: encode view failed", slog.String("error", err.Error()))
				continue
			}
			h.latest = data
			h.broadcast(data)

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			if h.latest != nil {
				c.send <- h.latest
			}
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.ClientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.ClientCount()),
			)
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client's send buffer is full; drop the message.
			h.logger.Warn("ws: dropping view for slow client")
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

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains the connection so control frames are processed. Clients
// are read-only; any data frame is ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps views from the hub to the WebSocket connection as text
// frames and sends periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
