package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobStore holds media bytes under slash-separated keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL returns the address the stored blob is served from.
	URL(key string) string
}

// StoreConfig selects and configures a BlobStore.
type StoreConfig struct {
	Backend string // "local" or "s3"
	Dir     string
	BaseURL string
	S3      S3Options
}

// NewBlobStore builds the BlobStore named by cfg.Backend.
func NewBlobStore(ctx context.Context, cfg StoreConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir, cfg.BaseURL), nil
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported media backend %q", cfg.Backend)
	}
}

// StorageKey returns the key new media is stored under: a year/month
// directory and the content hash, or a random name when no hash is known.
func StorageKey(now time.Time, hash, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "jpg"
	}
	name := hash
	if name == "" {
		name = uuid.NewString()
	}
	return fmt.Sprintf("%04d/%02d/%s.%s", now.Year(), int(now.Month()), name, ext)
}

// LocalStore is a BlobStore rooted at a filesystem directory.
type LocalStore struct {
	Root    string
	BaseURL string
}

// NewLocalStore returns a LocalStore rooted at root. Blob URLs are baseURL
// joined with the key, or file:// paths when baseURL is empty.
func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{Root: root, BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing media %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("media %s: %w", key, ErrBlobNotFound)
		}
		return nil, fmt.Errorf("opening media %s: %w", key, err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting media %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	if s.BaseURL != "" {
		return s.BaseURL + "/" + key
	}
	return "file://" + filepath.ToSlash(filepath.Join(s.Root, filepath.FromSlash(key)))
}

// path maps key into Root, refusing keys that would escape it.
func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || clean != "/"+strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// ErrBlobNotFound is returned when a key has no stored bytes.
var ErrBlobNotFound = errors.New("blob not found")
