package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/store"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

// ErrUnknownConversation is returned when a message targets a conversation
// that does not exist.
var ErrUnknownConversation = errors.New("unknown conversation")

// Engine persists uploads and messages and publishes the matching relay
// events. Every write goes to the store before anything is published, so a
// client that refetches after an event always sees the new state.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a new ingestion engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// RecordUpload stores a checkpoint photo and publishes photo:uploaded on the
// owner's progress topic.
func (e *Engine) RecordUpload(ownerID string, page int, imageURL string) error {
	if err := e.db.RecordUpload(ownerID, page, imageURL); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}

	e.bus.Publish(bus.Event{
		Topic:     wire.ProgressTopic(ownerID),
		Name:      wire.EventPhotoUploaded,
		Timestamp: e.now(),
		Payload:   wire.PhotoUploaded{PageNumber: page, ImageURL: imageURL},
	})
	e.logger.Info("checkpoint photo recorded", zap.String("owner", ownerID), zap.Int("page", page))
	return nil
}

// IngestMessage stores a new message, updates the conversation summary and
// publishes message:new plus conversation:updated.
func (e *Engine) IngestMessage(conversationID string, sender wire.Sender, text string) (*store.Message, error) {
	conv, err := e.db.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrUnknownConversation
	}

	now := e.now()
	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         string(sender),
		Text:           text,
		CreatedAt:      now.UnixMilli(),
	}
	if _, err := e.db.InsertMessage(msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// A learner message leaves the thread unread for admins; an admin reply clears it.
	unread := sender == wire.SenderUser
	preview := truncate(text, 100)
	if err := e.db.TouchConversation(conversationID, preview, msg.CreatedAt, unread); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	e.bus.Publish(bus.Event{
		Topic:     wire.ChatTopic(conversationID),
		Name:      wire.EventMessageNew,
		Timestamp: now,
		Payload:   WireMessage(*msg),
	})
	e.bus.Publish(bus.Event{
		Topic:     wire.AdminInboxTopic,
		Name:      wire.EventConversationUpdated,
		Timestamp: now,
		Payload: wire.ConversationUpdated{
			ConversationID: conversationID,
			LastMessage:    preview,
			UnreadByAdmin:  unread,
		},
	})

	e.logger.Debug("message ingested",
		zap.String("conversation", conversationID),
		zap.String("msg_id", msg.ID),
		zap.String("sender", msg.Sender))
	return msg, nil
}

// MarkRead clears the admin unread flag.
func (e *Engine) MarkRead(conversationID string) error {
	return e.db.MarkConversationRead(conversationID)
}

// WireMessage converts a stored message to its JSON shape.
func WireMessage(m store.Message) wire.Message {
	return wire.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Text:           m.Text,
		Sender:         wire.Sender(m.Sender),
		CreatedAt:      time.UnixMilli(m.CreatedAt).UTC(),
	}
}

// WireConversation converts a stored conversation to its summary shape.
func WireConversation(c store.Conversation) wire.Conversation {
	out := wire.Conversation{
		ID:            c.ID,
		UserID:        c.UserID,
		UserName:      c.UserName,
		LastMessage:   c.LastMessage,
		UnreadByAdmin: c.UnreadByAdmin,
	}
	if c.LastMessageAt > 0 {
		out.LastMessageAt = time.UnixMilli(c.LastMessageAt).UTC()
	}
	return out
}

func truncate(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}
