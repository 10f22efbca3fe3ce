package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const conversationColumns = `
	c.id, c.user_id, COALESCE(u.name, ''), c.last_message, c.last_message_at, c.unread_by_admin`

// GetOrCreateConversation returns the learner's conversation, creating it on first use.
func (db *DB) GetOrCreateConversation(userID string) (*Conversation, error) {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, user_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		uuid.NewString(), userID, now)
	if err != nil {
		return nil, err
	}
	return db.scanConversation(db.QueryRow(`
		SELECT`+conversationColumns+`
		FROM conversations c LEFT JOIN users u ON u.id = c.user_id
		WHERE c.user_id = ?`, userID))
}

// GetConversation returns a conversation by id, or nil if it does not exist.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	return db.scanConversation(db.QueryRow(`
		SELECT`+conversationColumns+`
		FROM conversations c LEFT JOIN users u ON u.id = c.user_id
		WHERE c.id = ?`, id))
}

// ListConversations returns conversations sorted by last message timestamp descending.
func (db *DB) ListConversations(limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT`+conversationColumns+`
		FROM conversations c LEFT JOIN users u ON u.id = c.user_id
		ORDER BY c.last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.UserName, &c.LastMessage, &c.LastMessageAt, &c.UnreadByAdmin); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// TouchConversation records the latest message preview and unread flag.
// Older timestamps never overwrite a newer preview.
func (db *DB) TouchConversation(id, lastMessage string, at int64, unreadByAdmin bool) error {
	_, err := db.Exec(`
		UPDATE conversations SET
			last_message = CASE WHEN ? >= last_message_at THEN ? ELSE last_message END,
			last_message_at = MAX(last_message_at, ?),
			unread_by_admin = ?,
			updated_at = ?
		WHERE id = ?`,
		at, lastMessage, at, unreadByAdmin, time.Now().UnixMilli(), id)
	return err
}

// MarkConversationRead clears the admin unread flag.
func (db *DB) MarkConversationRead(id string) error {
	_, err := db.Exec(`UPDATE conversations SET unread_by_admin = 0, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	return err
}

func (db *DB) scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.UserName, &c.LastMessage, &c.LastMessageAt, &c.UnreadByAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
