package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateUser inserts a new user with a generated id.
func (db *DB) CreateUser(name, role string) (*User, error) {
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	u := &User{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err := db.Exec(`INSERT INTO users (id, name, role, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Role, u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns a user by id, or nil if it does not exist.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, role, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IssueToken creates a new bearer token for the user.
func (db *DB) IssueToken(userID string) (string, error) {
	token := uuid.NewString()
	_, err := db.Exec(`INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return token, nil
}

// UserByToken resolves a bearer token. Returns nil for unknown tokens.
func (db *DB) UserByToken(token string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT u.id, u.name, u.role, u.created_at
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token = ?`, token).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
