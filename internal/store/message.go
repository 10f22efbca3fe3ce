package store

// InsertMessage stores a message. Re-inserting an existing id is a no-op and
// reports inserted=false.
func (db *DB) InsertMessage(m *Message) (inserted bool, err error) {
	res, err := db.Exec(`
		INSERT INTO messages (id, conversation_id, sender, text, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.ConversationID, m.Sender, m.Text, m.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if seq, err := res.LastInsertId(); err == nil {
		m.Seq = seq
	}
	return true, nil
}

// ListMessages returns the most recent messages of a conversation, oldest
// first. Ties on created_at keep insertion order.
func (db *DB) ListMessages(conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT seq, id, conversation_id, sender, text, created_at FROM (
			SELECT seq, id, conversation_id, sender, text, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
