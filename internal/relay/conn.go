package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

const maxFrameSize = 4096

// conn is one relay socket. All writes go through writeLoop.
type conn struct {
	id  string
	ws  *websocket.Conn
	hub *Hub

	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu     sync.Mutex
	topics map[string]func()
}

func newConn(id string, ws *websocket.Conn, h *Hub) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		id:     id,
		ws:     ws,
		hub:    h,
		send:   make(chan []byte, h.opts.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]func()),
	}
}

func (c *conn) readLoop() {
	defer func() { _ = c.close() }()

	readTimeout := 2 * c.hub.opts.PingInterval
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("relay read failed", zap.String("socket", c.id), zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		var frame wire.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Topic == "" {
			c.hub.logger.Warn("relay dropped malformed frame", zap.String("socket", c.id))
			continue
		}
		switch frame.Op {
		case wire.OpSubscribe:
			c.subscribe(frame.Topic)
		case wire.OpUnsubscribe:
			c.unsubscribe(frame.Topic)
		default:
			c.hub.logger.Warn("relay unknown op", zap.String("socket", c.id), zap.String("op", frame.Op))
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.close()
				return
			}
		case <-c.ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.ws.Close()
			return
		}
	}
}

// subscribe is idempotent per topic.
func (c *conn) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok {
		return
	}

	ch, unsub := c.hub.bus.Subscribe(topic, c.hub.opts.SendBuffer)
	done := make(chan struct{})
	c.topics[topic] = func() {
		unsub()
		close(done)
	}

	go func() {
		for {
			select {
			case evt := <-ch:
				c.forward(evt)
			case <-done:
				return
			case <-c.ctx.Done():
				return
			}
		}
	}()
	c.hub.logger.Debug("relay subscribed", zap.String("socket", c.id), zap.String("topic", topic))
}

func (c *conn) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.topics[topic]; ok {
		stop()
		delete(c.topics, topic)
	}
}

func (c *conn) forward(evt bus.Event) {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		c.hub.logger.Error("relay marshal payload", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	frame, err := json.Marshal(wire.ServerFrame{Topic: evt.Topic, Event: evt.Name, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	case <-c.ctx.Done():
	default:
		c.hub.logger.Warn("relay send buffer full, dropping event",
			zap.String("socket", c.id), zap.String("topic", evt.Topic), zap.String("event", evt.Name))
	}
}

func (c *conn) close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for topic, stop := range c.topics {
			stop()
			delete(c.topics, topic)
		}
		c.mu.Unlock()
		c.cancel()
		c.hub.unregister(c)
		c.hub.logger.Info("relay client disconnected", zap.String("socket", c.id))
	})
	return nil
}
