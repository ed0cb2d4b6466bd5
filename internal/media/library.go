package media

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Library is the media store: rows in the media table, bytes in a BlobStore.
// It implements catalog.MediaStore.
type Library struct {
	DB    *sql.DB
	Blobs BlobStore
	now   func() time.Time
}

// NewLibrary returns a Library over conn and blobs.
func NewLibrary(conn *sql.DB, blobs BlobStore) *Library {
	return &Library{DB: conn, Blobs: blobs, now: time.Now}
}

func (l *Library) Media(ctx context.Context, id int64) (*model.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return db.GetMedia(l.DB, id)
}

// Open returns the stored bytes of media id. Media registered without a
// storage key has no readable bytes and reports ErrBlobNotFound.
func (l *Library) Open(ctx context.Context, id int64) (io.ReadCloser, error) {
	m, err := l.Media(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.StorageKey == "" {
		return nil, fmt.Errorf("media %d: %w", id, ErrBlobNotFound)
	}
	return l.Blobs.Open(ctx, m.StorageKey)
}

func (l *Library) FindByHash(ctx context.Context, hash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return db.FindMediaByHash(l.DB, hash)
}

// Store writes data to the blob store and registers it. Missing hash, mime
// type, title and URL are derived from the content and key. If the row
// cannot be written the blob is removed again.
func (l *Library) Store(ctx context.Context, m *model.Media, data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("storing media %q: empty content", m.Filename)
	}
	if m.Hash == "" {
		m.Hash = Hash(data)
	}
	if m.MimeType == "" {
		m.MimeType, _ = DetectType(data)
	}
	if m.Filename == "" {
		m.Filename = m.Hash + extensionFor(m.MimeType)
	}
	if m.Title == "" {
		m.Title = strings.TrimSuffix(m.Filename, path.Ext(m.Filename))
	}
	m.Size = int64(len(data))
	m.StorageKey = StorageKey(l.now().UTC(), m.Hash, m.Filename)

	if err := l.Blobs.Put(ctx, m.StorageKey, data, m.MimeType); err != nil {
		return 0, err
	}
	if m.URL == "" {
		m.URL = l.Blobs.URL(m.StorageKey)
	}

	id, err := db.CreateMedia(l.DB, m)
	if err != nil {
		_ = l.Blobs.Delete(ctx, m.StorageKey)
		return 0, err
	}
	return id, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
