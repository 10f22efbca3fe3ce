// Package channel is the client side of the event relay: one shared
// connection multiplexing topic subscriptions, with named event handlers.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/status"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

// ErrDisabled is returned when relay credentials are not configured.
var ErrDisabled = errors.New("channel: relay not configured")

// Transport is one physical relay connection.
type Transport interface {
	Open(ctx context.Context) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	// Frames delivers pushed events until the connection ends, then is closed.
	Frames() <-chan wire.ServerFrame
	Close() error
}

// Handler receives the raw JSON payload of one event.
type Handler func(data json.RawMessage)

// Options configures a Client.
type Options struct {
	Logger *zap.Logger
	// Bus, when set, receives connection status changes.
	Bus *bus.Bus
}

// Client owns the process-wide relay connection. A Client without a
// transport is disabled: Connect is a no-op and subscriptions never fire.
type Client struct {
	transport Transport
	logger    *zap.Logger
	machine   *status.Machine

	connMu sync.Mutex // serializes Connect and Disconnect
	stop   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	connected bool
	subs      map[string]*Subscription
}

// New creates a client over t. A nil transport yields a disabled client.
func New(t Transport, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		transport: t,
		logger:    logger.Named("channel"),
		machine:   status.NewMachine(opts.Bus),
		subs:      make(map[string]*Subscription),
	}
}

// Enabled reports whether the client has a transport.
func (c *Client) Enabled() bool {
	return c.transport != nil
}

// State returns the current connection state.
func (c *Client) State() status.State {
	return c.machine.Current()
}

// Connected reports whether events are currently being delivered.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the shared connection. It is a no-op when the client is
// disabled or already connected. Subscriptions made before Connect are
// registered with the relay once the connection is up.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.transport == nil {
		if c.machine.Current() == status.Idle {
			_ = c.machine.Transition(status.Disabled)
			c.logger.Info("relay not configured, live updates disabled")
		}
		return nil
	}
	if c.stop != nil {
		select {
		case <-c.done:
			// The previous connection dropped; dial a fresh one.
			_ = c.transport.Close()
			c.stop, c.done = nil, nil
		default:
			return nil
		}
	}

	if err := c.machine.Transition(status.Connecting); err != nil {
		return err
	}
	if err := c.transport.Open(ctx); err != nil {
		_ = c.machine.Transition(status.Idle)
		c.logger.Warn("relay connect failed", zap.Error(err))
		return fmt.Errorf("connect relay: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	for topic := range c.subs {
		if err := c.transport.Subscribe(topic); err != nil {
			c.logger.Warn("relay subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	c.mu.Unlock()

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.dispatch(c.transport.Frames(), c.stop, c.done)

	_ = c.machine.Transition(status.Connected)
	c.logger.Info("relay connected")
	return nil
}

// Disconnect closes the connection and releases every subscription.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.stop != nil {
		close(c.stop)
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("relay close", zap.Error(err))
		}
		<-c.done
		c.stop, c.done = nil, nil
	}

	c.mu.Lock()
	c.connected = false
	for topic, sub := range c.subs {
		sub.release()
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	if c.machine.Current() != status.Closed {
		_ = c.machine.Transition(status.Closed)
	}
}

// Subscribe returns the subscription for topic, creating it on first use.
func (c *Client) Subscribe(topic string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[topic]; ok {
		return sub
	}
	sub := &Subscription{topic: topic, handlers: make(map[string][]Handler)}
	c.subs[topic] = sub
	if c.connected {
		if err := c.transport.Subscribe(topic); err != nil {
			c.logger.Warn("relay subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	return sub
}

// Unsubscribe drops every handler on sub and releases its topic. Calling it
// again, or with a subscription that has since been replaced, does nothing.
func (c *Client) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs[sub.topic] != sub {
		sub.release()
		return
	}
	delete(c.subs, sub.topic)
	sub.release()
	if c.connected {
		if err := c.transport.Unsubscribe(sub.topic); err != nil {
			c.logger.Warn("relay unsubscribe failed", zap.String("topic", sub.topic), zap.Error(err))
		}
	}
}

// dispatch runs every handler on a single goroutine, in arrival order.
func (c *Client) dispatch(frames <-chan wire.ServerFrame, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				c.mu.Lock()
				c.connected = false
				c.mu.Unlock()
				_ = c.machine.Transition(status.Idle)
				c.logger.Warn("relay connection lost")
				return
			}
			c.deliver(frame)
		case <-stop:
			return
		}
	}
}

func (c *Client) deliver(frame wire.ServerFrame) {
	c.mu.Lock()
	sub := c.subs[frame.Topic]
	c.mu.Unlock()
	if sub == nil {
		return
	}
	for _, h := range sub.handlersFor(frame.Event) {
		c.invoke(frame, h)
	}
}

func (c *Client) invoke(frame wire.ServerFrame, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked",
				zap.String("topic", frame.Topic),
				zap.String("event", frame.Event),
				zap.Any("panic", r))
		}
	}()
	h(frame.Data)
}

// Subscription is the handler set bound to one topic.
type Subscription struct {
	topic string

	mu       sync.Mutex
	handlers map[string][]Handler
	released bool
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Bind adds h for event. Handlers for the same event accumulate.
func (s *Subscription) Bind(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.handlers[event] = append(s.handlers[event], h)
}

// Unbind removes every handler for event.
func (s *Subscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Released reports whether the subscription has been unsubscribed.
func (s *Subscription) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Subscription) handlersFor(event string) []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Handler(nil), s.handlers[event]...)
}

func (s *Subscription) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	clear(s.handlers)
}

// BindJSON binds a handler that decodes the payload into T. Malformed
// payloads are logged and dropped.
func BindJSON[T any](s *Subscription, event string, logger *zap.Logger, fn func(T)) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.Bind(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			logger.Warn("dropping malformed event",
				zap.String("topic", s.topic), zap.String("event", event), zap.Error(err))
			return
		}
		fn(v)
	})
}
