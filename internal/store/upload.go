package store

import (
	"database/sql"
	"time"
)

// RecordUpload stores a checkpoint photo (idempotent on owner_id + page; the
// latest image wins).
func (db *DB) RecordUpload(ownerID string, page int, imageURL string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO uploads (owner_id, page, image_url, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, page) DO UPDATE SET
			image_url = excluded.image_url,
			created_at = excluded.created_at`,
		ownerID, page, imageURL, now)
	return err
}

// GetUpload returns the upload for a checkpoint page, or nil if none exists.
func (db *DB) GetUpload(ownerID string, page int) (*Upload, error) {
	var u Upload
	err := db.QueryRow(`
		SELECT owner_id, page, image_url, created_at
		FROM uploads WHERE owner_id = ? AND page = ?`, ownerID, page).
		Scan(&u.OwnerID, &u.Page, &u.ImageURL, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUploads returns all uploads for an owner ordered by page.
func (db *DB) ListUploads(ownerID string) ([]Upload, error) {
	rows, err := db.Query(`
		SELECT owner_id, page, image_url, created_at
		FROM uploads WHERE owner_id = ? ORDER BY page ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.OwnerID, &u.Page, &u.ImageURL, &u.CreatedAt); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
