package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/workbook/internal/channel"
	"github.com/matheus3301/workbook/internal/scope"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

// InboxBackend is the conversation API an Inbox needs.
type InboxBackend interface {
	ListConversations(ctx context.Context) ([]wire.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Inbox is the admin's list of conversation summaries. Rows are patched in
// place and never re-sorted between loads.
type Inbox struct {
	backend InboxBackend
	client  *channel.Client
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	guard     scope.Guard
	items     []wire.Conversation
	sub       *channel.Subscription
	listeners []func()
}

// NewInbox creates an empty inbox. client may be nil.
func NewInbox(b InboxBackend, client *channel.Client, opts Options) *Inbox {
	opts.fill()
	return &Inbox{
		backend: b,
		client:  client,
		logger:  opts.Logger.Named("inbox"),
		now:     opts.Now,
	}
}

// Load replaces the list. On failure the previous list is kept.
func (in *Inbox) Load(ctx context.Context) error {
	convs, err := in.backend.ListConversations(ctx)
	if err != nil {
		in.logger.Warn("load conversations failed", zap.Error(err))
		return fmt.Errorf("load conversations: %w", err)
	}
	in.mu.Lock()
	in.items = slices.Clone(convs)
	in.mu.Unlock()
	in.notify()
	return nil
}

// Watch binds conversation:updated on the admin inbox topic.
func (in *Inbox) Watch() {
	if in.client == nil {
		return
	}
	in.mu.Lock()
	if in.sub != nil {
		in.mu.Unlock()
		return
	}
	tok := in.guard.Begin(wire.AdminInboxTopic)
	in.mu.Unlock()

	sub := in.client.Subscribe(wire.AdminInboxTopic)
	channel.BindJSON(sub, wire.EventConversationUpdated, in.logger, func(u wire.ConversationUpdated) {
		if tok.Current() {
			in.ApplyUpdate(u)
		}
	})

	in.mu.Lock()
	in.sub = sub
	in.mu.Unlock()
}

// Close stops watching.
func (in *Inbox) Close() {
	in.mu.Lock()
	sub := in.sub
	in.sub = nil
	in.guard.End()
	in.mu.Unlock()
	if sub != nil {
		in.client.Unsubscribe(sub)
	}
}

// ApplyUpdate patches the matching row. Updates for conversations that are
// not in the list are ignored until the next Load.
func (in *Inbox) ApplyUpdate(u wire.ConversationUpdated) bool {
	in.mu.Lock()
	i := in.indexOf(u.ConversationID)
	if i < 0 {
		in.mu.Unlock()
		in.logger.Info("update for conversation not in inbox, reload to see it",
			zap.String("conversation", u.ConversationID))
		return false
	}
	in.items[i].LastMessage = u.LastMessage
	in.items[i].UnreadByAdmin = u.UnreadByAdmin
	in.items[i].LastMessageAt = in.now()
	in.mu.Unlock()
	in.notify()
	return true
}

// MarkRead clears the unread flag locally.
func (in *Inbox) MarkRead(conversationID string) bool {
	in.mu.Lock()
	i := in.indexOf(conversationID)
	if i < 0 || !in.items[i].UnreadByAdmin {
		in.mu.Unlock()
		return false
	}
	in.items[i].UnreadByAdmin = false
	in.mu.Unlock()
	in.notify()
	return true
}

// Acknowledge marks the conversation read locally, then tells the server.
// The local patch stays even if the server call fails.
func (in *Inbox) Acknowledge(ctx context.Context, conversationID string) error {
	in.MarkRead(conversationID)
	if err := in.backend.MarkRead(ctx, conversationID); err != nil {
		in.logger.Warn("mark read failed", zap.String("conversation", conversationID), zap.Error(err))
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// NoteOutgoing records a message the admin just sent.
func (in *Inbox) NoteOutgoing(conversationID, text string) bool {
	in.mu.Lock()
	i := in.indexOf(conversationID)
	if i < 0 {
		in.mu.Unlock()
		return false
	}
	in.items[i].LastMessage = text
	in.items[i].LastMessageAt = in.now()
	in.mu.Unlock()
	in.notify()
	return true
}

// NoteSent records m on the row of the conversation it was posted to, which
// may no longer be the one on screen.
func (in *Inbox) NoteSent(m *wire.Message) bool {
	if m == nil {
		return false
	}
	return in.NoteOutgoing(m.ConversationID, m.Text)
}

// Conversations returns a copy of the list.
func (in *Inbox) Conversations() []wire.Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.items)
}

// Unread counts conversations awaiting an admin.
func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, c := range in.items {
		if c.UnreadByAdmin {
			n++
		}
	}
	return n
}

// OnChange registers fn to run after every list change.
func (in *Inbox) OnChange(fn func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.listeners = append(in.listeners, fn)
}

// indexOf must be called with in.mu held.
func (in *Inbox) indexOf(id string) int {
	return slices.IndexFunc(in.items, func(c wire.Conversation) bool { return c.ID == id })
}

func (in *Inbox) notify() {
	in.mu.Lock()
	listeners := slices.Clone(in.listeners)
	in.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
