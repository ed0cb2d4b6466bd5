package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Outcome reports how an import resolution was satisfied.
type Outcome int

const (
	// Unresolved means no media could be produced for the reference.
	Unresolved Outcome = iota
	// Imported means new media was stored.
	Imported
	// Deduplicated means existing media was reused.
	Deduplicated
)

func (o Outcome) String() string {
	switch o {
	case Imported:
		return "imported"
	case Deduplicated:
		return "deduplicated"
	default:
		return "unresolved"
	}
}

// ImportConfig configures an ImportResolver.
type ImportConfig struct {
	Store   catalog.MediaStore
	Fetcher BlobFetcher
	// MediaDir is the extracted images directory of an archive import, or "".
	MediaDir string
	// Dedupe enables lookups in the persisted hash index.
	Dedupe bool
	// Seen seeds the in-run cache with media resolved by earlier batches
	// of the same import, keyed by content hash.
	Seen   map[string]int64
	Logger *zap.Logger
}

// ImportResolver turns media references from an import document into local
// media ids. It lives for one import batch and is safe for concurrent use.
type ImportResolver struct {
	cfg ImportConfig
	log *zap.Logger

	mu    sync.Mutex
	cache map[string]int64
	group singleflight.Group
}

// NewImportResolver returns a resolver for cfg.
func NewImportResolver(cfg ImportConfig) *ImportResolver {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cache := make(map[string]int64, len(cfg.Seen))
	for h, id := range cfg.Seen {
		cache[h] = id
	}
	return &ImportResolver{cfg: cfg, log: log, cache: cache}
}

// Seen returns a copy of the hashes resolved so far and their media ids.
func (r *ImportResolver) Seen() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.cache))
	for h, id := range r.cache {
		out[h] = id
	}
	return out
}

// Resolve returns the local media id for ref. Sources are tried in order:
// media already resolved in this run, the persisted hash index, the
// extracted archive file, then the network. A failure of every source
// yields (0, Unresolved) and is logged, never returned.
func (r *ImportResolver) Resolve(ctx context.Context, ref *model.MediaReference) (int64, Outcome) {
	if ref == nil || (ref.URL == "" && ref.LocalPath == "" && ref.Filename == "") {
		return 0, Unresolved
	}

	if id, ok := r.lookup(ctx, ref.Hash); ok {
		return id, Deduplicated
	}

	key := flightKey(ref)
	ran := false
	v, err, _ := r.group.Do(key, func() (any, error) {
		ran = true
		// A concurrent flight for the same key may have finished between
		// the lookup above and this one starting.
		if id, ok := r.cached(ref.Hash); ok {
			return id, errAlreadyCached
		}
		return r.load(ctx, ref)
	})

	switch {
	case errors.Is(err, errAlreadyCached):
		return v.(int64), Deduplicated
	case err != nil:
		r.log.Warn("image import failed",
			zap.String("url", ref.URL),
			zap.String("local_path", ref.LocalPath),
			zap.Error(err))
		return 0, Unresolved
	case !ran:
		return v.(int64), Deduplicated
	}
	return v.(int64), Imported
}

var errAlreadyCached = errors.New("already cached")

func flightKey(ref *model.MediaReference) string {
	switch {
	case ref.Hash != "":
		return "hash:" + ref.Hash
	case ref.LocalPath != "":
		return "local:" + ref.LocalPath
	case ref.URL != "":
		return "url:" + ref.URL
	}
	return "file:" + ref.Filename
}

func (r *ImportResolver) cached(hash string) (int64, bool) {
	if hash == "" {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.cache[hash]
	return id, ok
}

func (r *ImportResolver) remember(hash string, id int64) {
	if hash == "" {
		return
	}
	r.mu.Lock()
	r.cache[hash] = id
	r.mu.Unlock()
}

// lookup checks the in-run cache, then the persisted index when enabled.
func (r *ImportResolver) lookup(ctx context.Context, hash string) (int64, bool) {
	if id, ok := r.cached(hash); ok {
		return id, true
	}
	if !r.cfg.Dedupe || hash == "" || r.cfg.Store == nil {
		return 0, false
	}
	id, err := r.cfg.Store.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			r.log.Warn("media hash lookup failed", zap.String("hash", hash), zap.Error(err))
		}
		return 0, false
	}
	r.remember(hash, id)
	r.log.Debug("image deduplicated", zap.String("hash", hash), zap.Int64("media_id", id))
	return id, true
}

// load reads the bytes from the archive or the network and stores them.
func (r *ImportResolver) load(ctx context.Context, ref *model.MediaReference) (int64, error) {
	if r.cfg.Store == nil {
		return 0, errors.New("no media store configured")
	}

	data, filename, mimeType, err := r.readLocal(ref)
	if err != nil {
		r.log.Debug("local image unavailable", zap.String("local_path", ref.LocalPath), zap.Error(err))
		data = nil
	}
	if data == nil {
		if r.cfg.Fetcher == nil || ref.URL == "" {
			return 0, fmt.Errorf("no local file and no fetchable url for %q", ref.Filename)
		}
		blob, err := r.cfg.Fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			return 0, err
		}
		data, filename, mimeType = blob.Data, blob.Filename, blob.MimeType
	}

	// The reference hash is kept as the index key so a later import of the
	// same document finds this media again.
	hash := ref.Hash
	if hash == "" {
		hash = Hash(data)
		if id, ok := r.lookup(ctx, hash); ok {
			return id, errAlreadyCached
		}
	}

	if ref.Filename != "" {
		filename = ref.Filename
	}
	m := &model.Media{
		Filename:    filename,
		Hash:        hash,
		Title:       ref.Title,
		Alt:         ref.Alt,
		Caption:     ref.Caption,
		Description: ref.Description,
		MimeType:    mimeType,
	}
	id, err := r.cfg.Store.Store(ctx, m, data)
	if err != nil {
		return 0, err
	}
	r.remember(hash, id)
	r.log.Info("image imported", zap.String("hash", hash), zap.Int64("media_id", id))
	return id, nil
}

// readLocal reads the archive copy of ref, named by the base of LocalPath
// and then by Filename. It returns nil data when there is no archive.
func (r *ImportResolver) readLocal(ref *model.MediaReference) ([]byte, string, string, error) {
	if r.cfg.MediaDir == "" {
		return nil, "", "", nil
	}
	var candidates []string
	if ref.LocalPath != "" {
		candidates = append(candidates, path.Base(filepath.ToSlash(ref.LocalPath)))
	}
	if ref.Filename != "" {
		candidates = append(candidates, path.Base(filepath.ToSlash(ref.Filename)))
	}

	for _, name := range candidates {
		if name == "." || name == "/" || strings.HasPrefix(name, "..") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.cfg.MediaDir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", "", err
		}
		mimeType, err := DetectType(data)
		if err != nil {
			return nil, "", "", fmt.Errorf("%s: %w", name, err)
		}
		return data, name, mimeType, nil
	}
	return nil, "", "", fmt.Errorf("no file for %q in %s", ref.LocalPath, r.cfg.MediaDir)
}
