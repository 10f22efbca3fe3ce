package store

// Role values stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a learner or an admin.
type User struct {
	ID        string
	Name      string
	Role      string
	CreatedAt int64
}

// Upload records a confirmed checkpoint photo.
type Upload struct {
	OwnerID   string
	Page      int
	ImageURL  string
	CreatedAt int64
}

// Conversation is the single support thread owned by a learner.
type Conversation struct {
	ID            string
	UserID        string
	UserName      string
	LastMessage   string
	LastMessageAt int64
	UnreadByAdmin bool
}

// Message is a persisted chat message. Timestamps are unix milliseconds.
type Message struct {
	Seq            int64
	ID             string
	ConversationID string
	Sender         string
	Text           string
	CreatedAt      int64
}
