// Package wire holds the JSON shapes shared by the content API, the event
// relay and their clients.
package wire

import (
	"encoding/json"
	"strconv"
	"time"
)

// Sender identifies which side of a support conversation wrote a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// Counterpart returns the opposite role.
func (s Sender) Counterpart() Sender {
	if s == SenderAdmin {
		return SenderUser
	}
	return SenderAdmin
}

// Valid reports whether s is a known role.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAdmin
}

// MessageStatus is only set on messages a client originated.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
)

// Message is a single chat message.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Text           string        `json:"text"`
	Sender         Sender        `json:"sender"`
	CreatedAt      time.Time     `json:"createdAt"`
	Status         MessageStatus `json:"status,omitempty"`
}

// Conversation is the summary row shown in the admin inbox.
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadByAdmin bool      `json:"unreadByAdmin"`
}

// Identity answers GET /me.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Sender `json:"role"`
}

// CheckpointStatus answers GET /progress-checkpoints/{id}.
type CheckpointStatus struct {
	Uploaded bool   `json:"uploaded"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// MessageList answers GET /messages.
type MessageList struct {
	Messages []Message `json:"messages"`
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// PhotoUploaded is the payload of the photo:uploaded relay event.
type PhotoUploaded struct {
	PageNumber int    `json:"pageNumber"`
	ImageURL   string `json:"imageUrl"`
}

// ConversationUpdated is the payload of the conversation:updated relay event.
type ConversationUpdated struct {
	ConversationID string `json:"conversationId"`
	LastMessage    string `json:"lastMessage"`
	UnreadByAdmin  bool   `json:"unreadByAdmin"`
}

// ErrorBody is returned by the API on non-2xx responses.
type ErrorBody struct {
	Error string `json:"error"`
}

// Relay event names.
const (
	EventPhotoUploaded       = "photo:uploaded"
	EventMessageNew          = "message:new"
	EventConversationUpdated = "conversation:updated"
)

// AdminInboxTopic carries conversation:updated events for every admin.
const AdminInboxTopic = "admin-inbox"

// ProgressTopic returns the per-learner progress topic.
func ProgressTopic(ownerID string) string {
	return "progress-" + ownerID
}

// ChatTopic returns the per-conversation chat topic.
func ChatTopic(conversationID string) string {
	return "chat-" + conversationID
}

// Relay client operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// ClientFrame is sent by relay clients.
type ClientFrame struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

// ServerFrame is pushed by the relay for every event on a subscribed topic.
type ServerFrame struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PageID formats a checkpoint page number for URLs.
func PageID(page int) string {
	return strconv.Itoa(page)
}
