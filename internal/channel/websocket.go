package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/workbook/internal/config"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// WebsocketTransport connects to the workbookd relay endpoint.
type WebsocketTransport struct {
	url    string
	key    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex // guards writes and conn
	conn   *websocket.Conn
	frames chan wire.ServerFrame
	done   chan struct{}
	once   *sync.Once
}

// NewWebsocketTransport returns ErrDisabled when url or key is empty.
func NewWebsocketTransport(rawURL, key string, logger *zap.Logger) (*WebsocketTransport, error) {
	if rawURL == "" || key == "" {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketTransport{
		url: rawURL,
		key: key,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// FromConfig builds a client from relay settings. Missing credentials
// yield a disabled client rather than an error.
func FromConfig(cfg *config.Config, opts Options) *Client {
	if !cfg.RelayEnabled() {
		return New(nil, opts)
	}
	t, err := NewWebsocketTransport(cfg.RelayURL(), cfg.Relay.Key, opts.Logger)
	if err != nil {
		return New(nil, opts)
	}
	return New(t, opts)
}

// Open dials the relay and starts reading frames.
func (t *WebsocketTransport) Open(ctx context.Context) error {
	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("key", t.key)
	u.RawQuery = q.Encode()

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.frames = make(chan wire.ServerFrame, 64)
	t.done = make(chan struct{})
	t.once = new(sync.Once)
	frames, done := t.frames, t.done
	t.mu.Unlock()

	go t.readLoop(conn, frames, done)
	return nil
}

// Frames implements Transport.
func (t *WebsocketTransport) Frames() <-chan wire.ServerFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Subscribe implements Transport.
func (t *WebsocketTransport) Subscribe(topic string) error {
	return t.write(wire.ClientFrame{Op: wire.OpSubscribe, Topic: topic})
}

// Unsubscribe implements Transport.
func (t *WebsocketTransport) Unsubscribe(topic string) error {
	return t.write(wire.ClientFrame{Op: wire.OpUnsubscribe, Topic: topic})
}

// Close sends a close frame and drops the connection.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	var err error
	t.once.Do(func() {
		close(t.done)
		_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = t.conn.Close()
	})
	return err
}

func (t *WebsocketTransport) write(frame wire.ClientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("relay not connected")
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop is the only sender on frames and closes it when the socket ends.
func (t *WebsocketTransport) readLoop(conn *websocket.Conn, frames chan<- wire.ServerFrame, done <-chan struct{}) {
	defer close(frames)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				t.logger.Warn("relay read failed", zap.Error(err))
			}
			return
		}
		var frame wire.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Topic == "" {
			t.logger.Warn("dropping malformed relay frame")
			continue
		}
		select {
		case frames <- frame:
		case <-done:
			return
		}
	}
}
