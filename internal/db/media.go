package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

const mediaColumns = `id, url, filename, storage_key, hash, title, alt, caption, description, mime_type, size, created_at`

// CreateMedia inserts a media row and returns its ID.
func CreateMedia(db *sql.DB, m *model.Media) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := db.Exec(
		`INSERT INTO media (url, filename, storage_key, hash, title, alt, caption, description, mime_type, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.URL, m.Filename, m.StorageKey, m.Hash, m.Title, m.Alt, m.Caption,
		m.Description, m.MimeType, m.Size, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting media id: %w", err)
	}
	m.ID = id
	return id, nil
}

// GetMedia retrieves a media row by ID.
func GetMedia(db *sql.DB, id int64) (*model.Media, error) {
	m, err := scanMediaFrom(db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning media: %w", err)
	}
	return m, nil
}

// FindMediaByHash returns the ID of the oldest media row whose content hash
// equals hash.
func FindMediaByHash(db *sql.DB, hash string) (int64, error) {
	if hash == "" {
		return 0, ErrNotFound
	}
	var id int64
	err := db.QueryRow(`SELECT id FROM media WHERE hash = ? ORDER BY id LIMIT 1`, hash).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("querying media by hash: %w", err)
	}
	return id, nil
}

// SetMediaHash records the content hash of an existing media row.
func SetMediaHash(db *sql.DB, id int64, hash string) error {
	res, err := db.Exec(`UPDATE media SET hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("updating media hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMedia returns the number of stored media rows.
func CountMedia(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM media`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting media: %w", err)
	}
	return n, nil
}

func scanMediaFrom(s scanner) (*model.Media, error) {
	var m model.Media
	var createdAt string
	if err := s.Scan(
		&m.ID, &m.URL, &m.Filename, &m.StorageKey, &m.Hash, &m.Title, &m.Alt,
		&m.Caption, &m.Description, &m.MimeType, &m.Size, &createdAt,
	); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	m.CreatedAt = t
	return &m, nil
}
