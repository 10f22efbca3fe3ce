// Package conversation keeps the client-side state of support chats: the
// open thread with optimistic sends and the admin inbox.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/workbook/internal/channel"
	"github.com/matheus3301/workbook/internal/scope"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

var (
	// ErrEmptyText is returned by Send for blank messages.
	ErrEmptyText = errors.New("conversation: empty message")
	// ErrNoConversation is returned by Send before any conversation is open.
	ErrNoConversation = errors.New("conversation: no conversation open")
)

// TempIDPrefix marks ids generated for optimistic sends.
const TempIDPrefix = "temp-"

// Backend is the message API a Thread needs.
type Backend interface {
	ListMessages(ctx context.Context, conversationID string) ([]wire.Message, error)
	PostMessage(ctx context.Context, conversationID, text string) (*wire.Message, error)
}

// Options configures a Thread or Inbox.
type Options struct {
	Logger *zap.Logger
	// Now overrides the clock for optimistic timestamps.
	Now func() time.Time
}

func (o *Options) fill() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Thread is the message log of the conversation currently on screen.
type Thread struct {
	backend Backend
	client  *channel.Client
	viewer  wire.Sender
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	guard     scope.Guard
	token     scope.Token
	convID    string
	entries   []Entry
	sub       *channel.Subscription
	lastTemp  int64
	listeners []func()
}

// NewThread creates a thread for a viewer of the given role. client may be
// nil, in which case only Load and Send update the log.
func NewThread(b Backend, client *channel.Client, viewer wire.Sender, opts Options) *Thread {
	opts.fill()
	return &Thread{
		backend: b,
		client:  client,
		viewer:  viewer,
		logger:  opts.Logger.Named("thread"),
		now:     opts.Now,
	}
}

// Open switches the thread to conversationID: the previous scope is
// unsubscribed, history is loaded, then live messages are subscribed.
func (t *Thread) Open(ctx context.Context, conversationID string) error {
	t.unsubscribe()

	err := t.Load(ctx, conversationID)

	t.mu.Lock()
	if t.convID != conversationID || t.client == nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	sub := t.client.Subscribe(wire.ChatTopic(conversationID))

	t.mu.Lock()
	if t.convID != conversationID {
		t.mu.Unlock()
		t.client.Unsubscribe(sub)
		return err
	}
	if t.sub == sub {
		// A concurrent Open of the same conversation already bound it.
		t.mu.Unlock()
		return err
	}
	t.sub = sub
	t.mu.Unlock()

	// The handler follows the thread's current token, so a later Load of the
	// same conversation keeps live delivery.
	channel.BindJSON(sub, wire.EventMessageNew, t.logger, func(m wire.Message) {
		t.mu.Lock()
		live, tok := t.sub == sub, t.token
		t.mu.Unlock()
		if live {
			t.receiveFor(tok, conversationID, m)
		}
	})
	return err
}

// Load replaces the log with conversationID's history. A failed fetch
// leaves the log empty. Results for a conversation that is no longer
// current are discarded.
func (t *Thread) Load(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	tok := t.guard.Begin(conversationID)
	t.token = tok
	t.convID = conversationID
	t.entries = nil
	t.mu.Unlock()
	t.notify()

	msgs, err := t.backend.ListMessages(ctx, conversationID)

	t.mu.Lock()
	if !tok.Current() {
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		t.mu.Unlock()
		t.logger.Warn("load history failed", zap.String("conversation", conversationID), zap.Error(err))
		return fmt.Errorf("load history: %w", err)
	}

	// Entries added while the fetch was in flight stay after the history.
	base := make([]Entry, 0, len(msgs)+len(t.entries))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		base = append(base, Confirmed{Msg: m})
	}
	for _, e := range t.entries {
		if !seen[e.Key()] {
			base = append(base, e)
		}
	}
	t.entries = base
	t.mu.Unlock()
	t.notify()
	return nil
}

// Close drops the subscription and invalidates in-flight work.
func (t *Thread) Close() {
	t.unsubscribe()
	t.mu.Lock()
	t.guard.End()
	t.convID = ""
	t.entries = nil
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) unsubscribe() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil && t.client != nil {
		t.client.Unsubscribe(sub)
	}
}

// Send appends an optimistic entry right away, then posts text. On success
// the entry is replaced in place by the server's message; on failure it is
// removed and the error returned.
func (t *Thread) Send(ctx context.Context, text string) (*wire.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	t.mu.Lock()
	if t.convID == "" {
		t.mu.Unlock()
		return nil, ErrNoConversation
	}
	tok, convID := t.token, t.convID
	tempID := t.nextTempID()
	t.entries = append(t.entries, Pending{
		TempID: tempID,
		Msg: wire.Message{
			ConversationID: convID,
			Text:           text,
			Sender:         t.viewer,
			CreatedAt:      t.now(),
		},
	})
	t.mu.Unlock()
	t.notify()

	msg, err := t.backend.PostMessage(ctx, convID, text)

	t.mu.Lock()
	if !tok.Current() {
		t.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("send message: %w", err)
		}
		return msg, nil
	}
	idx := t.indexOf(tempID)
	if err != nil {
		if idx >= 0 {
			t.entries = slices.Delete(t.entries, idx, idx+1)
		}
		t.mu.Unlock()
		t.notify()
		t.logger.Warn("send failed", zap.String("conversation", convID), zap.Error(err))
		return nil, fmt.Errorf("send message: %w", err)
	}

	confirmed := *msg
	confirmed.Status = wire.StatusSent
	switch {
	case idx < 0:
		// The entry is gone; nothing to resolve.
	case t.indexOf(confirmed.ID) >= 0:
		// A reload already brought the server copy in.
		t.entries = slices.Delete(t.entries, idx, idx+1)
	default:
		t.entries[idx] = Confirmed{Msg: confirmed}
	}
	t.mu.Unlock()
	t.notify()
	return &confirmed, nil
}

// nextTempID must be called with t.mu held.
func (t *Thread) nextTempID() string {
	n := t.now().UnixNano()
	if n <= t.lastTemp {
		n = t.lastTemp + 1
	}
	t.lastTemp = n
	return TempIDPrefix + strconv.FormatInt(n, 10)
}

// ReceiveRemote appends a pushed message. Messages from the viewer's own
// role, for another conversation, or already in the log are ignored.
func (t *Thread) ReceiveRemote(conversationID string, m wire.Message) bool {
	t.mu.Lock()
	tok := t.token
	t.mu.Unlock()
	return t.receiveFor(tok, conversationID, m)
}

func (t *Thread) receiveFor(tok scope.Token, conversationID string, m wire.Message) bool {
	t.mu.Lock()
	if !tok.Current() || conversationID != t.convID {
		t.mu.Unlock()
		return false
	}
	if m.ConversationID != "" && m.ConversationID != conversationID {
		t.mu.Unlock()
		return false
	}
	if m.Sender != t.viewer.Counterpart() || m.ID == "" || t.indexOf(m.ID) >= 0 {
		t.mu.Unlock()
		return false
	}
	m.Status = ""
	t.entries = append(t.entries, Confirmed{Msg: m})
	t.mu.Unlock()
	t.notify()
	return true
}

// indexOf must be called with t.mu held.
func (t *Thread) indexOf(key string) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool { return e.Key() == key })
}

// ConversationID returns the open conversation, or "".
func (t *Thread) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.convID
}

// Entries returns a copy of the log.
func (t *Thread) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

// Messages returns the log rendered as messages.
func (t *Thread) Messages() []wire.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]wire.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Message()
	}
	return out
}

// OnChange registers fn to run after every log change.
func (t *Thread) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Thread) notify() {
	t.mu.Lock()
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
