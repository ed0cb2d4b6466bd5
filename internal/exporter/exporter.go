// Package exporter drives a batched catalog export: a session is opened for
// the matching products, records are appended to a flat JSON file a batch at
// a time, and the finished document is packaged with its media into a zip
// archive.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/archive"
	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/filter"
	"github.com/ALT-F4-LLC/porter/internal/media"
	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/serializer"
	"github.com/ALT-F4-LLC/porter/internal/session"
)

// PreviewSize is the number of sample records returned by Preview.
const PreviewSize = 5

// Config locates export output.
type Config struct {
	// Dir receives the flat data files and the finished archives.
	Dir string
	// TmpDir holds per-export staging directories.
	TmpDir string
	// SiteURL is written into the document header.
	SiteURL string
	// DownloadBaseURL prefixes archive names in FinishResult.DownloadURL.
	// Without it the URL is a file:// URL.
	DownloadBaseURL string
}

// Exporter runs export sessions.
type Exporter struct {
	repo       catalog.Repository
	serializer *serializer.Serializer
	media      catalog.MediaStore
	fetcher    media.BlobFetcher
	sessions   *session.Manager
	cfg        Config
	log        *zap.Logger
	now        func() time.Time

	locks sync.Map // data file path -> *sync.Mutex
}

// New returns an Exporter. fetcher may be nil, in which case media that is
// not readable from the store is left out of archives.
func New(repo catalog.Repository, terms catalog.Terms, store catalog.MediaStore, fetcher media.BlobFetcher, sessions *session.Manager, cfg Config, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		repo:       repo,
		serializer: serializer.New(repo, terms, store, log),
		media:      store,
		fetcher:    fetcher,
		sessions:   sessions,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// InitResult describes a newly opened export session.
type InitResult struct {
	Total     int    `json:"total"`
	Token     string `json:"token"`
	BatchSize int    `json:"batch_size"`
	Filename  string `json:"filename"`
}

// BatchResult reports progress after one export batch.
type BatchResult struct {
	ProcessedCount int      `json:"processed_count"`
	Total          int      `json:"total"`
	Percentage     int      `json:"percentage"`
	Done           bool     `json:"done"`
	NextPage       *int     `json:"next_page"`
	Errors         []string `json:"errors"`
}

// FinishResult describes a packaged export.
type FinishResult struct {
	DownloadURL   string `json:"download_url"`
	Filename      string `json:"filename"`
	Path          string `json:"path"`
	FileSize      int64  `json:"file_size"`
	ImagesCount   int    `json:"images_count"`
	ProductsCount int    `json:"products_count"`
}

// Sample is a summary of one product matched by a preview.
type Sample struct {
	ID     int64            `json:"id"`
	Name   string           `json:"name"`
	SKU    string           `json:"sku"`
	Type   model.RecordType `json:"type"`
	Status model.Status     `json:"status"`
	Price  model.Decimal    `json:"price"`
}

// PreviewResult is the match count of a filter and a few sample records.
type PreviewResult struct {
	Total   int      `json:"total"`
	Samples []Sample `json:"samples"`
}

// Init resolves the filter into the ordered list of product ids, writes the
// document prefix to a new data file and persists the session. An empty
// match is a validation error and leaves nothing behind.
func (e *Exporter) Init(ctx context.Context, operator string, filters map[string]any, opts model.ExportOptions) (*InitResult, error) {
	const op = "export init"

	ids, err := e.repo.QueryIDs(ctx, filter.Build(filters))
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("querying products: %w", err))
	}
	if len(ids) == 0 {
		return nil, model.E(model.KindValidation, op, model.ErrNoProductsFound)
	}

	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}
	dir, err := filepath.Abs(e.cfg.Dir)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}

	now := e.now().UTC()
	token := uuid.NewString()
	filename := fmt.Sprintf("porter-export-%s-%s.json", now.Format("2006-01-02-150405"), token[:8])
	path := filepath.Join(dir, filename)

	prefix, err := documentPrefix(now, e.cfg.SiteURL)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}
	if err := os.WriteFile(path, prefix, 0o644); err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("writing data file: %w", err))
	}

	e.discardPrevious(ctx, operator)

	s := &model.ExportSession{
		Token:     token,
		Operator:  operator,
		Filename:  filename,
		FilePath:  path,
		IDs:       ids,
		Filters:   filters,
		Options:   opts,
		Total:     len(ids),
		BatchSize: model.ExportBatchSize,
	}
	if err := e.sessions.SaveExport(ctx, s); err != nil {
		os.Remove(path)
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("saving session: %w", err))
	}

	e.log.Info("export started",
		zap.String("operator", operator),
		zap.String("token", token),
		zap.Int("total", len(ids)),
		zap.String("file", path))

	return &InitResult{
		Total:     len(ids),
		Token:     token,
		BatchSize: model.ExportBatchSize,
		Filename:  filename,
	}, nil
}

// documentPrefix renders the opening of an export document up to and
// including the products array bracket.
func documentPrefix(now time.Time, siteURL string) ([]byte, error) {
	date, err := json.Marshal(now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	site, err := json.Marshal(siteURL)
	if err != nil {
		return nil, err
	}
	version, _ := json.Marshal(model.FormatVersion)
	return fmt.Appendf(nil, "{\"version\":%s,\"export_date\":%s,\"site_url\":%s,\"products\":[\n", version, date, site), nil
}

// discardPrevious removes the data file of an export session the operator
// is abandoning by starting a new one.
func (e *Exporter) discardPrevious(ctx context.Context, operator string) {
	rec, err := e.sessions.Store().Get(ctx, model.SessionExport, operator)
	if err != nil {
		return
	}
	paths, err := rec.Paths()
	if err != nil {
		e.log.Warn("decoding abandoned export session", zap.Error(err))
		return
	}
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			e.log.Warn("removing abandoned export file", zap.String("path", p), zap.Error(err))
		}
	}
}

// Batch serializes page (1-based) of the session's ids and appends them to
// the data file. A page at or below the last completed one returns the
// recorded progress without writing; skipping ahead is a validation error.
// Records that fail to serialize are itemized in the result.
func (e *Exporter) Batch(ctx context.Context, operator, token string, page int) (*BatchResult, error) {
	const op = "export batch"

	s, err := e.sessions.LoadExport(ctx, operator, token)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, model.Ef(model.KindValidation, op, "page must be at least 1, got %d", page)
	}
	if page <= s.LastPage {
		return progress(s, nil), nil
	}
	if s.Processed >= s.Total {
		return progress(s, nil), nil
	}
	if page > s.LastPage+1 {
		return nil, model.Ef(model.KindValidation, op, "page %d requested before page %d completed", page, s.LastPage+1)
	}
	if s.Closed {
		return nil, model.Ef(model.KindValidation, op, "export is already finished")
	}

	start := (page - 1) * s.BatchSize
	end := min(start+s.BatchSize, s.Total)

	var errs []string
	written, size, err := e.appendRecords(ctx, s, s.IDs[start:end], &errs)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}

	s.RecordsWritten += written
	s.Processed = end
	s.LastPage = page
	if err := e.sessions.SaveExport(ctx, s); err != nil {
		e.truncate(s.FilePath, size)
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("saving session: %w", err))
	}

	e.log.Debug("export batch written",
		zap.String("token", token),
		zap.Int("page", page),
		zap.Int("written", written),
		zap.Int("failed", len(errs)))

	return progress(s, errs), nil
}

func progress(s *model.ExportSession, errs []string) *BatchResult {
	done := s.Processed >= s.Total
	var next *int
	if !done {
		n := s.LastPage + 1
		next = &n
	}
	if errs == nil {
		errs = []string{}
	}
	return &BatchResult{
		ProcessedCount: s.Processed,
		Total:          s.Total,
		Percentage:     model.Progress(s.Processed, s.Total),
		Done:           done,
		NextPage:       next,
		Errors:         errs,
	}
}

// appendRecords serializes ids and appends each record to the session's
// data file while holding the file's lock. It returns the number written and
// the file size before the batch. On error the file is truncated back to
// that size, so a retried page starts from the same state.
func (e *Exporter) appendRecords(ctx context.Context, s *model.ExportSession, ids []int64, errs *[]string) (written int, size int64, err error) {
	unlock := e.lock(s.FilePath)
	defer unlock()

	f, err := os.OpenFile(s.FilePath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	size, err = f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("sizing data file: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if terr := f.Truncate(size); terr != nil {
			e.log.Error("rolling back data file", zap.String("path", s.FilePath), zap.Error(terr))
		}
		written = 0
	}()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return written, size, err
		}
		rec := e.serializer.Serialize(ctx, id, s.Options)
		if rec == nil {
			*errs = append(*errs, fmt.Sprintf("product %d: could not be serialized", id))
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("%s (%s): %v", rec.DisplayName(), rec.SKUOrNA(), err))
			continue
		}
		if s.RecordsWritten+written > 0 {
			data = append([]byte(",\n"), data...)
		}
		if _, err := f.Write(data); err != nil {
			return written, size, fmt.Errorf("appending record %d: %w", id, err)
		}
		written++
	}
	return written, size, nil
}

// truncate drops whatever a batch appended past size.
func (e *Exporter) truncate(path string, size int64) {
	unlock := e.lock(path)
	defer unlock()
	if err := os.Truncate(path, size); err != nil {
		e.log.Error("rolling back data file", zap.String("path", path), zap.Error(err))
	}
}

func (e *Exporter) lock(path string) func() {
	v, _ := e.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Finish closes the data file, materializes the distinct media it
// references, rewrites it pretty-printed with archive-relative media paths
// and packages it into a zip archive. On success the session, the staging
// directory and the flat file are removed. If the archive cannot be written
// the flat file is left in place.
func (e *Exporter) Finish(ctx context.Context, operator, token string) (*FinishResult, error) {
	const op = "export finish"

	s, err := e.sessions.LoadExport(ctx, operator, token)
	if err != nil {
		return nil, err
	}

	if !s.Closed {
		if err := e.closeDocument(s.FilePath); err != nil {
			return nil, model.E(model.KindInfrastructure, op, err)
		}
		s.Closed = true
		if err := e.sessions.SaveExport(ctx, s); err != nil {
			return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("saving session: %w", err))
		}
	}

	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("reading data file: %w", err))
	}
	var doc model.ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("parsing data file: %w", err))
	}

	staging := filepath.Join(e.cfg.TmpDir, "export-"+s.Token)
	defer os.RemoveAll(staging)
	imagesDir := filepath.Join(staging, archive.ImagesDir)

	resolver := media.NewExportResolver(e.media, e.fetcher, imagesDir, e.log)
	if s.Options.IncludeImages {
		for _, rec := range doc.Products {
			for _, ref := range rec.MediaReferences() {
				if _, err := resolver.Materialize(ctx, ref); err != nil {
					e.log.Warn("media left out of export",
						zap.String("url", ref.URL),
						zap.Int64("media_id", ref.ID),
						zap.Error(err))
				}
			}
		}
	}

	pretty, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("encoding document: %w", err))
	}
	if err := os.WriteFile(s.FilePath, pretty, 0o644); err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("rewriting data file: %w", err))
	}

	images, err := archive.DirEntries(imagesDir, archive.ImagesDir)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}
	entries := []archive.Entry{{Name: archive.DataFileNames[0], Path: s.FilePath}}
	entries = append(entries, images...)
	entries = append(entries, archive.Entry{Name: "README.txt", Data: readme(&doc, resolver.Count())})

	zipName := strings.TrimSuffix(s.Filename, filepath.Ext(s.Filename)) + ".zip"
	dest := filepath.Join(filepath.Dir(s.FilePath), zipName)
	size, err := archive.Create(dest, entries)
	if err != nil {
		e.log.Error("export archive failed",
			zap.String("token", token),
			zap.String("data_file", s.FilePath),
			zap.Error(err))
		return nil, model.E(model.KindInfrastructure, op, err)
	}

	if err := e.sessions.DeleteExport(ctx, operator); err != nil {
		e.log.Warn("deleting export session", zap.String("token", token), zap.Error(err))
	}
	if err := os.Remove(s.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Warn("removing data file", zap.String("path", s.FilePath), zap.Error(err))
	}
	e.locks.Delete(s.FilePath)

	e.log.Info("export finished",
		zap.String("operator", operator),
		zap.String("token", token),
		zap.String("archive", dest),
		zap.Int("products", len(doc.Products)),
		zap.Int("images", resolver.Count()))

	return &FinishResult{
		DownloadURL:   e.downloadURL(dest),
		Filename:      zipName,
		Path:          dest,
		FileSize:      size,
		ImagesCount:   resolver.Count(),
		ProductsCount: len(doc.Products),
	}, nil
}

func (e *Exporter) closeDocument(path string) error {
	unlock := e.lock(path)
	defer unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("opening data file: %w", err)
	}
	if _, err := f.WriteString("\n]}\n"); err != nil {
		f.Close()
		return fmt.Errorf("closing document: %w", err)
	}
	return f.Close()
}

func (e *Exporter) downloadURL(dest string) string {
	if e.cfg.DownloadBaseURL != "" {
		return strings.TrimRight(e.cfg.DownloadBaseURL, "/") + "/" + filepath.Base(dest)
	}
	return "file://" + filepath.ToSlash(dest)
}

func readme(doc *model.ExportDocument, images int) []byte {
	var b strings.Builder
	b.WriteString("Catalog export\n")
	b.WriteString("==============\n\n")
	fmt.Fprintf(&b, "Format version: %s\n", doc.Version)
	fmt.Fprintf(&b, "Exported:       %s\n", doc.ExportDate)
	if doc.SiteURL != "" {
		fmt.Fprintf(&b, "Source site:    %s\n", doc.SiteURL)
	}
	fmt.Fprintf(&b, "Products:       %d\n", len(doc.Products))
	fmt.Fprintf(&b, "Images:         %d\n\n", images)
	b.WriteString("Contents\n--------\n\n")
	b.WriteString("products.json  The catalog records. Variations are nested under\n")
	b.WriteString("               their parent's \"variations\" list.\n")
	b.WriteString("images/        One file per distinct image, named <hash>.<ext>.\n")
	b.WriteString("               Records point at them through \"local_path\".\n\n")
	b.WriteString("Import this archive with: porter import run <archive.zip>\n")
	return []byte(b.String())
}

// Preview returns the number of products filters match and up to
// PreviewSize of them, in export order. Nothing is persisted.
func (e *Exporter) Preview(ctx context.Context, filters map[string]any) (*PreviewResult, error) {
	const op = "export preview"

	ids, err := e.repo.QueryIDs(ctx, filter.Build(filters))
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, fmt.Errorf("querying products: %w", err))
	}

	res := &PreviewResult{Total: len(ids), Samples: []Sample{}}
	for _, id := range ids[:min(PreviewSize, len(ids))] {
		p, err := e.repo.Product(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, model.E(model.KindInfrastructure, op, err)
		}
		price := p.Price
		if price.IsZero() {
			price = p.RegularPrice
		}
		res.Samples = append(res.Samples, Sample{
			ID:     p.ID,
			Name:   p.Name,
			SKU:    p.SKU,
			Type:   p.EffectiveType(),
			Status: p.Status,
			Price:  price,
		})
	}
	return res, nil
}
