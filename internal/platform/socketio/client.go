// Package socketio is a minimal Socket.IO v5 client over the Engine.IO v4
// websocket transport. It keeps one namespace connected, reconnects with
// exponential backoff, and dispatches named events to registered handlers.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livebid/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// defaultPingInterval and defaultPingTimeout apply when the open packet
	// omits them.
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second

	// defaultReconnectDelay is the base delay before attempting to reconnect.
	defaultReconnectDelay = time.Second

	// defaultMaxReconnectDelay caps the exponential backoff.
	defaultMaxReconnectDelay = 30 * time.Second

	statusEvent = "status"
)

// TransportWebsocket is the only transport this client implements.
const TransportWebsocket = "websocket"

// Config describes one namespaced connection.
type Config struct {
	// URL is the server origin, e.g. "https://api.example.com".
	URL string
	// Path is the Engine.IO endpoint path. Defaults to "/socket.io/".
	Path string
	// Namespace is the Socket.IO namespace, e.g. "/auction".
	Namespace string
	// Auth is sent with the namespace CONNECT packet.
	Auth map[string]any
	// Transports lists acceptable transports in preference order.
	Transports []string
	// AutoConnect starts connecting as soon as Run is called. When false the
	// client waits for Reconnect.
	AutoConnect bool

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HandshakeTimeout  time.Duration
	Header            http.Header
}

// Client is a Socket.IO client bound to a single namespace.
type Client struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	events   Emitter[json.RawMessage]
	statuses Emitter[domain.ConnectionStatus]

	mu     sync.RWMutex
	conn   *websocket.Conn
	status domain.ConnectionStatus

	writeMu sync.Mutex
	retry   chan struct{}
}

// NewClient creates a client. Nothing is dialled until Run is called.
func NewClient(cfg Config, clock clockwork.Clock, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("socketio: url is required")
	}
	if len(cfg.Transports) > 0 && !slices.Contains(cfg.Transports, TransportWebsocket) {
		return nil, fmt.Errorf("socketio: unsupported transports %v", cfg.Transports)
	}
	if cfg.Path == "" {
		cfg.Path = "/socket.io/"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if !strings.HasPrefix(cfg.Namespace, "/") {
		cfg.Namespace = "/" + cfg.Namespace
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(defaultMaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(slog.String("component", "socketio"), slog.String("namespace", cfg.Namespace)),
		status: domain.ConnectionDisconnected,
		retry:  make(chan struct{}, 1),
	}, nil
}

// On registers a handler for a named server event.
func (c *Client) On(event string, fn func(json.RawMessage)) *Subscription {
	return c.events.On(event, fn)
}

// Off removes exactly the handler behind sub.
func (c *Client) Off(sub *Subscription) bool {
	if !c.events.Off(sub) {
		return c.statuses.Off(sub)
	}
	return true
}

// OnStatus registers a handler for connection lifecycle transitions.
func (c *Client) OnStatus(fn func(domain.ConnectionStatus)) *Subscription {
	return c.statuses.On(statusEvent, fn)
}

// Status returns the current connection status.
func (c *Client) Status() domain.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Emit sends a named event. It does nothing and returns
// domain.ErrNotConnected while the namespace is not connected.
func (c *Client) Emit(event string, payload any) error {
	c.mu.RLock()
	conn, status := c.conn, c.status
	c.mu.RUnlock()
	if conn == nil || status != domain.ConnectionConnected {
		return domain.ErrNotConnected
	}

	frame, err := encodeEvent(c.cfg.Namespace, event, payload)
	if err != nil {
		return err
	}
	if err := c.write(conn, frame); err != nil {
		return fmt.Errorf("socketio: emit %s: %w", event, err)
	}
	return nil
}

// Reconnect skips any pending backoff wait. It is a no-op while connected.
func (c *Client) Reconnect() {
	if c.Status() == domain.ConnectionConnected {
		return
	}
	select {
	case c.retry <- struct{}{}:
	default:
	}
}

// Run keeps the namespace connected until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if !c.cfg.AutoConnect {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.retry:
		}
	}

	delay := c.cfg.ReconnectDelay
	for {
		established, err := c.session(ctx)
		c.setStatus(domain.ConnectionDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			delay = c.cfg.ReconnectDelay
		}
		c.logger.Warn("socketio disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(delay):
			delay = min(delay*2, c.cfg.MaxReconnectDelay)
		case <-c.retry:
		}
	}
}

// session dials, performs the handshakes and reads until the connection
// drops. established reports whether the namespace was ever connected.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	c.setStatus(domain.ConnectionConnecting)

	endpoint, err := c.endpoint()
	if err != nil {
		return false, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(dialCtx, endpoint, c.cfg.Header)
	if err != nil {
		return false, fmt.Errorf("socketio: dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	open, err := c.handshake(dialCtx, conn)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.logger.Info("socketio connected", slog.String("sid", open.SID))
	c.setStatus(domain.ConnectionConnected)

	return true, c.readLoop(conn, pingWindow(open))
}

// handshake reads the Engine.IO open packet and connects the namespace.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) (openPayload, error) {
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	var open openPayload
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return open, fmt.Errorf("socketio: read open: %w", err)
	}
	if len(msg) == 0 || msg[0] != engineOpen {
		return open, fmt.Errorf("socketio: expected open packet, got %q", msg)
	}
	if err := json.Unmarshal(msg[1:], &open); err != nil {
		return open, fmt.Errorf("socketio: decode open: %w", err)
	}

	var auth json.RawMessage
	if len(c.cfg.Auth) > 0 {
		if auth, err = json.Marshal(c.cfg.Auth); err != nil {
			return open, fmt.Errorf("socketio: marshal auth: %w", err)
		}
	}
	if err := c.write(conn, encodePacket(packet{Type: packetConnect, Namespace: c.cfg.Namespace, Data: auth})); err != nil {
		return open, fmt.Errorf("socketio: connect namespace: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return open, fmt.Errorf("socketio: await namespace ack: %w", err)
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case enginePing:
			if err := c.write(conn, []byte{enginePong}); err != nil {
				return open, err
			}
		case engineMessage:
			p, err := decodePacket(msg[1:])
			if err != nil || p.Namespace != c.cfg.Namespace {
				continue
			}
			switch p.Type {
			case packetConnect:
				return open, nil
			case packetConnectError:
				var ce connectError
				_ = json.Unmarshal(p.Data, &ce)
				return open, fmt.Errorf("socketio: namespace refused: %s", ce.Message)
			}
		case engineClose:
			return open, fmt.Errorf("socketio: closed during handshake")
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, window time.Duration) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(window))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("socketio: %w: %v", domain.ErrWSDisconnect, err)
		}
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case enginePing:
			if err := c.write(conn, []byte{enginePong}); err != nil {
				return fmt.Errorf("socketio: pong: %w", err)
			}
		case engineClose:
			return fmt.Errorf("socketio: %w: server closed transport", domain.ErrWSDisconnect)
		case engineMessage:
			if err := c.handlePacket(msg[1:]); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handlePacket(raw []byte) error {
	p, err := decodePacket(raw)
	if err != nil {
		c.logger.Debug("dropping undecodable packet", slog.String("error", err.Error()))
		return nil
	}
	if p.Namespace != c.cfg.Namespace {
		return nil
	}

	switch p.Type {
	case packetEvent:
		name, payload, err := decodeEvent(p.Data)
		if err != nil {
			c.logger.Debug("dropping malformed event", slog.String("error", err.Error()))
			return nil
		}
		c.events.Emit(name, payload)
	case packetDisconnect:
		return fmt.Errorf("socketio: %w: namespace disconnected by server", domain.ErrWSDisconnect)
	}
	return nil
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) setStatus(next domain.ConnectionStatus) {
	c.mu.Lock()
	if c.status == next {
		c.mu.Unlock()
		return
	}
	c.status = next
	c.mu.Unlock()
	c.statuses.Emit(statusEvent, next)
}

// endpoint builds the websocket URL for the Engine.IO handshake.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("socketio: parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.cfg.Path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", TransportWebsocket)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func pingWindow(open openPayload) time.Duration {
	interval := time.Duration(open.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(open.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return interval + timeout
}

func errString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
