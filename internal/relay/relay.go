// Package relay is the websocket event relay. Clients subscribe to topics and
// receive every bus event published on them as a wire.ServerFrame.
package relay

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/workbook/internal/bus"
	"go.uber.org/zap"
)

// ErrClosed is returned when the hub has been shut down.
var ErrClosed = errors.New("relay closed")

// Options tunes socket behaviour.
type Options struct {
	Key          string
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (o *Options) fill() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 100
	}
}

// Hub accepts relay sockets and fans bus events out to them.
type Hub struct {
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

// NewHub creates a relay hub on top of the bus. An empty key disables the relay.
func NewHub(b *bus.Bus, opts Options, logger *zap.Logger) *Hub {
	opts.fill()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:    b,
		logger: logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			// Clients are terminal tools, not browsers.
			CheckOrigin:      func(*http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		conns: make(map[string]*conn),
	}
}

// Enabled reports whether the hub accepts connections.
func (h *Hub) Enabled() bool {
	return h.opts.Key != ""
}

// ServeHTTP validates the relay key and upgrades the request.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Enabled() {
		http.Error(w, "relay disabled", http.StatusServiceUnavailable)
		return
	}
	key := r.URL.Query().Get("key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.opts.Key)) != 1 {
		http.Error(w, "invalid relay key", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("relay upgrade failed", zap.Error(err))
		return
	}

	c := newConn(uuid.NewString(), ws, h)
	if !h.register(c) {
		_ = c.close()
		return
	}
	h.logger.Info("relay client connected", zap.String("socket", c.id), zap.String("remote", r.RemoteAddr))

	go c.writeLoop()
	go c.readLoop()
}

// Connections returns the number of open sockets.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every socket and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.close()
	}
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	return true
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.id] == c {
		delete(h.conns, c.id)
	}
}
