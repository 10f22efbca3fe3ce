package channel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/wire"
)

// BusTransport delivers events straight from an in-process bus. It lets a
// client run against a daemon embedded in the same process.
type BusTransport struct {
	bus *bus.Bus

	mu     sync.Mutex
	topics map[string]func()
	frames chan wire.ServerFrame
	done   chan struct{}
}

// NewBusTransport creates a transport over b.
func NewBusTransport(b *bus.Bus) *BusTransport {
	return &BusTransport{bus: b, topics: make(map[string]func())}
}

// Open implements Transport.
func (t *BusTransport) Open(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = make(chan wire.ServerFrame, 64)
	t.done = make(chan struct{})
	return nil
}

// Frames implements Transport. The channel is never closed; Close stops
// delivery instead.
func (t *BusTransport) Frames() <-chan wire.ServerFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Subscribe implements Transport.
func (t *BusTransport) Subscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.topics[topic]; ok {
		return nil
	}
	ch, unsub := t.bus.Subscribe(topic, 64)
	stop := make(chan struct{})
	t.topics[topic] = func() {
		unsub()
		close(stop)
	}
	frames, done := t.frames, t.done
	go func() {
		for {
			select {
			case evt := <-ch:
				data, err := json.Marshal(evt.Payload)
				if err != nil {
					continue
				}
				select {
				case frames <- wire.ServerFrame{Topic: evt.Topic, Event: evt.Name, Data: data}:
				case <-stop:
					return
				case <-done:
					return
				}
			case <-stop:
				return
			case <-done:
				return
			}
		}
	}()
	return nil
}

// Unsubscribe implements Transport.
func (t *BusTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stop, ok := t.topics[topic]; ok {
		stop()
		delete(t.topics, topic)
	}
	return nil
}

// Close implements Transport.
func (t *BusTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, stop := range t.topics {
		stop()
		delete(t.topics, topic)
	}
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	return nil
}
