// Package importer drives a batched catalog import: an uploaded archive or
// JSON document is staged in a per-session work directory, and its records
// are reconciled against the store a page at a time.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/archive"
	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/media"
	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/session"
)

// DefaultMaxExtractBytes bounds the content unpacked from one archive.
const DefaultMaxExtractBytes = 512 << 20

// Config locates import staging.
type Config struct {
	// Dir holds one work directory per import session.
	Dir string
	// MaxExtractBytes bounds archive extraction. Zero selects
	// DefaultMaxExtractBytes; a negative value disables the bound.
	MaxExtractBytes int64
}

// Importer runs import sessions.
type Importer struct {
	repo     catalog.Repository
	terms    catalog.Terms
	media    catalog.MediaStore
	fetcher  media.BlobFetcher
	sessions *session.Manager
	cfg      Config
	log      *zap.Logger
}

// New returns an Importer. fetcher may be nil, in which case media is only
// taken from the store's hash index and the uploaded archive.
func New(repo catalog.Repository, terms catalog.Terms, store catalog.MediaStore, fetcher media.BlobFetcher, sessions *session.Manager, cfg Config, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxExtractBytes == 0 {
		cfg.MaxExtractBytes = DefaultMaxExtractBytes
	}
	return &Importer{
		repo:     repo,
		terms:    terms,
		media:    store,
		fetcher:  fetcher,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

// InitResult describes a newly opened import session.
type InitResult struct {
	Total      int    `json:"total"`
	Token      string `json:"token"`
	BatchSize  int    `json:"batch_size"`
	IsArchive  bool   `json:"is_archive"`
	Version    string `json:"version"`
	ExportDate string `json:"export_date"`
}

// BatchRequest selects the page to import and how to import it.
type BatchRequest struct {
	Page      int                 `validate:"gte=1"`
	BatchSize int                 `validate:"gte=0"`
	Options   model.ImportOptions `validate:"-"`
}

// BatchResult reports one import batch. Results covers this batch only;
// Summary accumulates every batch of the session.
type BatchResult struct {
	Results    model.ImportResult `json:"results"`
	Summary    model.ImportResult `json:"summary"`
	Percentage int                `json:"percentage"`
	Processed  int                `json:"processed"`
	Total      int                `json:"total"`
	IsComplete bool               `json:"is_complete"`
}

// Init stages the upload at path and opens a session for it. A .zip is
// extracted into an isolated directory; a .json file is copied. Documents
// that are not a products list, or hold no records, are rejected and leave
// nothing behind.
func (im *Importer) Init(ctx context.Context, operator, path string) (*InitResult, error) {
	const op = "import init"

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".zip" && ext != ".json" {
		return nil, model.Ef(model.KindValidation, op, "unsupported file type %q: only .zip and .json files can be imported", ext)
	}
	if info, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.Ef(model.KindValidation, op, "file %s does not exist", path)
		}
		return nil, model.E(model.KindInfrastructure, op, err)
	} else if !info.Mode().IsRegular() {
		return nil, model.Ef(model.KindValidation, op, "%s is not a regular file", path)
	}

	token := uuid.NewString()
	workDir, err := filepath.Abs(filepath.Join(im.cfg.Dir, "import-"+token))
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}

	s := &model.ImportSession{
		Token:     token,
		Operator:  operator,
		WorkDir:   workDir,
		BatchSize: model.DefaultImportBatchSize,
		IsArchive: ext == ".zip",
	}
	doc, err := im.stage(s, path)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	s.Total = len(doc.Products)
	s.Version = doc.Version
	s.ExportDate = doc.ExportDate

	im.discardPrevious(ctx, operator)

	if err := im.sessions.SaveImport(ctx, s); err != nil {
		os.RemoveAll(workDir)
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("saving session: %w", err))
	}

	im.log.Info("import started",
		zap.String("operator", operator),
		zap.String("token", token),
		zap.String("source", path),
		zap.Bool("archive", s.IsArchive),
		zap.Int("total", s.Total))

	return &InitResult{
		Total:      s.Total,
		Token:      token,
		BatchSize:  s.BatchSize,
		IsArchive:  s.IsArchive,
		Version:    s.Version,
		ExportDate: s.ExportDate,
	}, nil
}

// stage places the upload's data file (and media) under s.WorkDir and
// validates the document.
func (im *Importer) stage(s *model.ImportSession, path string) (*document, error) {
	const op = "import init"

	if s.IsArchive {
		ex, err := archive.Extract(path, filepath.Join(s.WorkDir, "archive"), im.cfg.MaxExtractBytes)
		if err != nil {
			if errors.Is(err, archive.ErrUnsafePath) || errors.Is(err, archive.ErrNoDataFile) || errors.Is(err, archive.ErrTooLarge) {
				return nil, model.E(model.KindValidation, op, err)
			}
			return nil, model.E(model.KindValidation, op, fmt.Errorf("%w: %v", model.ErrInvalidFormat, err))
		}
		s.ExtractRoot = ex.Root
		s.DataPath = ex.DataPath
		s.MediaDir = ex.MediaDir
	} else {
		s.DataPath = filepath.Join(s.WorkDir, archive.DataFileNames[0])
		if err := copyFile(s.DataPath, path); err != nil {
			return nil, model.E(model.KindInfrastructure, op, err)
		}
	}

	doc, err := readDocument(s.DataPath)
	if err != nil {
		return nil, model.E(model.KindValidation, op, err)
	}
	if len(doc.Products) == 0 {
		return nil, model.E(model.KindValidation, op, model.ErrNoProductsFound)
	}
	return doc, nil
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("staging upload: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("staging upload: %w", err)
	}
	return out.Close()
}

// discardPrevious removes the files of an import session the operator is
// abandoning by starting a new one.
func (im *Importer) discardPrevious(ctx context.Context, operator string) {
	prev, err := im.sessions.PendingImport(ctx, operator)
	if err != nil || prev == nil {
		return
	}
	for _, p := range prev.Paths() {
		if err := os.RemoveAll(p); err != nil {
			im.log.Warn("removing abandoned import files", zap.String("path", p), zap.Error(err))
		}
	}
}

// document is an import document with its records left undecoded, so a
// malformed record fails on its own.
type document struct {
	Version    string
	ExportDate string
	SiteURL    string
	Products   []json.RawMessage
}

// readDocument decodes the data file at path. A bare array of records is
// accepted as the products list.
func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))

	doc := &document{}
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &doc.Products); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
		}
		return doc, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}
	raw, ok := top["products"]
	if !ok {
		return nil, fmt.Errorf("%w: missing products list", model.ErrInvalidFormat)
	}
	if err := json.Unmarshal(raw, &doc.Products); err != nil {
		return nil, fmt.Errorf("%w: products is not a list", model.ErrInvalidFormat)
	}
	doc.Version = stringField(top["version"])
	doc.ExportDate = stringField(top["export_date"])
	doc.SiteURL = stringField(top["site_url"])
	return doc, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Batch reconciles page (1-based) of the session's records. Record
// failures, panics included, are itemized in the result and never abort
// the batch. When the last record has been processed the session and its
// files are removed.
func (im *Importer) Batch(ctx context.Context, operator, token string, req BatchRequest) (*BatchResult, error) {
	const op = "import batch"

	s, err := im.sessions.LoadImport(ctx, operator, token)
	if err != nil {
		return nil, err
	}
	if req.Page < 1 {
		return nil, model.Ef(model.KindValidation, op, "page must be at least 1, got %d", req.Page)
	}
	size := req.BatchSize
	if size <= 0 {
		size = s.BatchSize
	}
	size = min(size, model.MaxImportBatchSize)

	doc, err := readDocument(s.DataPath)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}

	total := len(doc.Products)
	start := min((req.Page-1)*size, total)
	end := min(start+size, total)

	var resolver *media.ImportResolver
	if !req.Options.SkipImages {
		resolver = media.NewImportResolver(media.ImportConfig{
			Store:    im.media,
			Fetcher:  im.fetcher,
			MediaDir: s.MediaDir,
			Dedupe:   req.Options.DedupeImages,
			Seen:     s.MediaIDs,
			Logger:   im.log,
		})
	}
	rc := NewReconciler(im.repo, im.terms, resolver, req.Options, model.Actor{Operator: operator, SessionToken: token}, im.log)

	var res model.ImportResult
	res.Errors = []string{}
	for _, raw := range doc.Products[start:end] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		im.importOne(ctx, rc, raw, &res)
	}

	s.Result.Merge(res)
	if resolver != nil {
		s.MediaIDs = resolver.Seen()
	}
	s.Processed = max(s.Processed, end)
	s.Total = total
	complete := s.Processed >= total

	if complete {
		im.cleanup(ctx, s)
	} else if err := im.sessions.SaveImport(ctx, s); err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("saving session: %w", err))
	}

	im.log.Info("import batch done",
		zap.String("token", token),
		zap.Int("page", req.Page),
		zap.Int("imported", res.Imported),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Int("images_imported", res.ImagesImported),
		zap.Int("images_deduplicated", res.ImagesDeduplicated),
		zap.Bool("complete", complete))

	summary := s.Result
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	return &BatchResult{
		Results:    res,
		Summary:    summary,
		Percentage: model.Progress(s.Processed, total),
		Processed:  s.Processed,
		Total:      total,
		IsComplete: complete,
	}, nil
}

// importOne decodes and reconciles one record, folding its outcome into res.
func (im *Importer) importOne(ctx context.Context, rc *Reconciler, raw json.RawMessage, res *model.ImportResult) {
	var rec model.CatalogRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		res.AddFailure(model.RecordFailure{Name: "(unreadable record)", Reason: err.Error()})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			im.log.Error("importing record panicked",
				zap.String("sku", rec.SKU),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res.AddFailure(model.RecordFailure{Name: rec.DisplayName(), SKU: rec.SKU, Reason: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	out, err := rc.Reconcile(ctx, &rec)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, model.ErrConflict) {
			reason = "already exists (enable update_existing to overwrite)"
		}
		im.log.Warn("record not imported", zap.String("sku", rec.SKU), zap.String("name", rec.Name), zap.Error(err))
		res.AddFailure(model.RecordFailure{Name: rec.DisplayName(), SKU: rec.SKU, Reason: reason})
		return
	}

	switch out.Action {
	case ActionUpdated:
		res.Updated++
	default:
		res.Imported++
	}
	res.ImagesImported += out.ImagesImported
	res.ImagesDeduplicated += out.ImagesDeduplicated
	for _, f := range out.VariationFailures {
		res.AddNotice(f)
	}
}

func (im *Importer) cleanup(ctx context.Context, s *model.ImportSession) {
	for _, p := range s.Paths() {
		if err := os.RemoveAll(p); err != nil {
			im.log.Warn("removing import files", zap.String("path", p), zap.Error(err))
		}
	}
	if err := im.sessions.DeleteImport(ctx, s.Operator); err != nil {
		im.log.Warn("deleting import session", zap.String("token", s.Token), zap.Error(err))
	}
	im.log.Info("import finished",
		zap.String("operator", s.Operator),
		zap.String("token", s.Token),
		zap.Int("imported", s.Result.Imported),
		zap.Int("updated", s.Result.Updated),
		zap.Int("failed", s.Result.Failed),
		zap.Duration("elapsed", time.Since(s.CreatedAt)))
}

// Analyze inspects an upload without staging it.
func (im *Importer) Analyze(path string) (*archive.Analysis, error) {
	return archive.Analyze(path)
}
