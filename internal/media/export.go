package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// ArchiveDir is the directory media is materialized under inside an export
// archive.
const ArchiveDir = "images"

// ExportResolver materializes the distinct media of one export run into a
// directory, one file per content key.
type ExportResolver struct {
	store   catalog.MediaStore
	fetcher BlobFetcher
	dir     string
	log     *zap.Logger

	written map[string]string
}

// NewExportResolver returns a resolver writing into dir. Either source may be
// nil.
func NewExportResolver(store catalog.MediaStore, fetcher BlobFetcher, dir string, log *zap.Logger) *ExportResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExportResolver{
		store:   store,
		fetcher: fetcher,
		dir:     dir,
		log:     log,
		written: make(map[string]string),
	}
}

// Key returns the content key of ref: its hash, or the md5 of its URL.
func Key(ref *model.MediaReference) string {
	if ref.Hash != "" {
		return ref.Hash
	}
	if ref.URL == "" {
		return ""
	}
	return HashURL(ref.URL)
}

// Materialize writes the bytes of ref into the output directory unless a
// reference with the same key was written earlier in the run. On success it
// sets and returns ref.LocalPath ("images/<key>.<ext>").
func (r *ExportResolver) Materialize(ctx context.Context, ref *model.MediaReference) (string, error) {
	if ref == nil {
		return "", nil
	}
	key := Key(ref)
	if key == "" {
		return "", errors.New("media reference has neither hash nor url")
	}
	if local, ok := r.written[key]; ok {
		ref.LocalPath = local
		return local, nil
	}

	data, err := r.read(ctx, ref)
	if err != nil {
		return "", err
	}

	name := key + "." + exportExtension(ref)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating image directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing image %s: %w", name, err)
	}

	local := ArchiveDir + "/" + name
	r.written[key] = local
	ref.LocalPath = local
	r.log.Debug("materialized image", zap.String("key", key), zap.Int("bytes", len(data)))
	return local, nil
}

// Count returns the number of distinct files written.
func (r *ExportResolver) Count() int {
	return len(r.written)
}

// read prefers the media store's copy and falls back to the URL.
func (r *ExportResolver) read(ctx context.Context, ref *model.MediaReference) ([]byte, error) {
	if r.store != nil && ref.ID > 0 {
		data, err := r.readStored(ctx, ref.ID)
		if err == nil {
			return data, nil
		}
		r.log.Debug("media store miss, falling back to url", zap.Int64("media_id", ref.ID), zap.Error(err))
	}
	if r.fetcher == nil || ref.URL == "" {
		return nil, fmt.Errorf("media %d: no readable source", ref.ID)
	}
	blob, err := r.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

func (r *ExportResolver) readStored(ctx context.Context, id int64) ([]byte, error) {
	rc, err := r.store.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrBlobNotFound
	}
	return data, nil
}

// exportExtension takes the extension from the URL path, then the filename,
// defaulting to jpg.
func exportExtension(ref *model.MediaReference) string {
	if u, err := url.Parse(ref.URL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
			return ext
		}
	}
	if ext := strings.TrimPrefix(path.Ext(ref.Filename), "."); ext != "" {
		return ext
	}
	return "jpg"
}
