package importer

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/porter/internal/archive"
	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/media"
	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/session"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), []byte("importer test image")...)

type fixture struct {
	conn     *sql.DB
	cat      *db.Catalog
	lib      *media.Library
	sessions *session.Manager
	im       *Importer
	dir      string
	uploads  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Initialize(conn))

	root := t.TempDir()
	f := &fixture{
		conn:     conn,
		cat:      db.NewCatalog(conn),
		lib:      media.NewLibrary(conn, media.NewLocalStore(filepath.Join(root, "media"), "")),
		sessions: session.NewManager(session.NewSQLStore(conn), 0),
		dir:      filepath.Join(root, "imports"),
		uploads:  filepath.Join(root, "uploads"),
	}
	require.NoError(t, os.MkdirAll(f.uploads, 0o755))
	f.im = f.importer(f.cat)
	return f
}

func (f *fixture) importer(repo catalog.Repository) *Importer {
	return New(repo, f.cat, f.lib, nil, f.sessions, Config{Dir: f.dir}, nil)
}

func (f *fixture) writeJSON(t *testing.T, name string, v any) string {
	t.Helper()
	var data []byte
	if s, ok := v.(string); ok {
		data = []byte(s)
	} else {
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	path := filepath.Join(f.uploads, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (f *fixture) writeArchive(t *testing.T, name string, doc any, images map[string][]byte) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	entries := []archive.Entry{{Name: "products.json", Data: data}}
	for img, body := range images {
		entries = append(entries, archive.Entry{Name: "images/" + img, Data: body})
	}
	path := filepath.Join(f.uploads, name)
	_, err = archive.Create(path, entries)
	require.NoError(t, err)
	return path
}

func (f *fixture) workDirs(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func (f *fixture) productBySKU(t *testing.T, sku string) *model.Product {
	t.Helper()
	id, err := db.GetProductIDBySKU(f.conn, sku)
	require.NoError(t, err, "sku %s", sku)
	p, err := db.GetProduct(f.conn, id)
	require.NoError(t, err)
	return p
}

func doc(products ...map[string]any) map[string]any {
	list := make([]any, len(products))
	for i, p := range products {
		list[i] = p
	}
	return map[string]any{
		"version":     "1.0.0",
		"export_date": "2024-05-01T12:00:00Z",
		"site_url":    "https://old.example.com",
		"products":    list,
	}
}

func simple(sku, name string) map[string]any {
	return map[string]any{"name": name, "sku": sku, "type": "simple", "status": "publish", "regular_price": "12.50"}
}

// runAll drives every page of the session and returns the last result.
func runAll(t *testing.T, im *Importer, token string, opts model.ImportOptions, size int) *BatchResult {
	t.Helper()
	ctx := context.Background()
	for page := 1; page < 1000; page++ {
		res, err := im.Batch(ctx, "alice", token, BatchRequest{Page: page, BatchSize: size, Options: opts})
		require.NoError(t, err, "page %d", page)
		if res.IsComplete {
			return res
		}
	}
	t.Fatal("import never completed")
	return nil
}

func TestInitRejectsUnsupportedFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	csv := f.writeJSON(t, "products.csv", "name,sku")
	_, err := f.im.Init(ctx, "alice", csv)
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = f.im.Init(ctx, "alice", filepath.Join(f.uploads, "missing.json"))
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestInitRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", "{products:", model.ErrInvalidFormat},
		{"no products key", `{"version":"1.0.0","items":[]}`, model.ErrInvalidFormat},
		{"products not a list", `{"products":{"a":1}}`, model.ErrInvalidFormat},
		{"empty products", `{"version":"1.0.0","products":[]}`, model.ErrNoProductsFound},
		{"empty bare array", `[]`, model.ErrNoProductsFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			path := f.writeJSON(t, "upload.json", tt.body)

			_, err := f.im.Init(context.Background(), "alice", path)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
			assert.Empty(t, f.workDirs(t), "work directory left behind")

			pending, err := f.sessions.PendingImport(context.Background(), "alice")
			require.NoError(t, err)
			assert.Nil(t, pending)
		})
	}
}

func TestInitAcceptsBareArray(t *testing.T) {
	f := newFixture(t)
	path := f.writeJSON(t, "bare.json", []any{simple("A", "Alpha"), simple("B", "Beta")})

	res, err := f.im.Init(context.Background(), "alice", path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, model.DefaultImportBatchSize, res.BatchSize)
	assert.False(t, res.IsArchive)
	assert.Empty(t, res.Version)
}

func TestImportCreatesCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	variable := map[string]any{
		"name": "Tee", "sku": "TEE", "type": "variable", "status": "publish",
		"categories": []any{
			map[string]any{"name": "Shirts", "slug": "shirts", "parent": "clothing"},
			map[string]any{"name": "Clothing", "slug": "clothing"},
		},
		"tags": []any{map[string]any{"name": "Summer", "slug": "summer"}},
		"attributes": []any{
			map[string]any{"name": "Size", "taxonomy": "pa_size", "options": []any{"Small", "Large"}, "variation": true, "visible": true},
			map[string]any{"name": "Fabric", "taxonomy": false, "options": []any{"cotton"}, "visible": true},
		},
		"variations": []any{
			map[string]any{"sku": "TEE-S", "regular_price": "10", "stock_quantity": 3, "stock_status": "instock",
				"attributes": []any{map[string]any{"name": "pa_size", "option": "Small"}}},
			map[string]any{"sku": "TEE-M", "regular_price": "11", "sale_price": "9",
				"attributes": []any{map[string]any{"name": "pa_size", "option": "Medium"}}},
		},
	}
	path := f.writeJSON(t, "catalog.json", doc(simple("A", "Alpha"), simple("B", "Beta"), variable))

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	assert.Equal(t, 3, init.Total)
	assert.Equal(t, "1.0.0", init.Version)

	opts := model.DefaultImportOptions()
	first, err := f.im.Batch(ctx, "alice", init.Token, BatchRequest{Page: 1, BatchSize: 2, Options: opts})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Results.Imported)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 67, first.Percentage)
	assert.False(t, first.IsComplete)

	second, err := f.im.Batch(ctx, "alice", init.Token, BatchRequest{Page: 2, BatchSize: 2, Options: opts})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Results.Imported)
	assert.Equal(t, 3, second.Summary.Imported)
	assert.Zero(t, second.Summary.Failed, "errors: %v", second.Summary.Errors)
	assert.Equal(t, 100, second.Percentage)
	assert.True(t, second.IsComplete)

	assert.Empty(t, f.workDirs(t), "work directory left behind")
	_, err = f.im.Batch(ctx, "alice", init.Token, BatchRequest{Page: 3, Options: opts})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	alpha := f.productBySKU(t, "A")
	assert.Equal(t, model.Decimal("12.50"), alpha.RegularPrice)
	assert.Equal(t, model.Decimal("12.50"), alpha.Price)

	clothing, err := db.GetTermBySlug(f.conn, model.TaxonomyCategory, "clothing")
	require.NoError(t, err)
	shirts, err := db.GetTermBySlug(f.conn, model.TaxonomyCategory, "shirts")
	require.NoError(t, err)
	assert.Equal(t, clothing.ID, shirts.ParentID)

	tee := f.productBySKU(t, "TEE")
	assert.Equal(t, model.TypeVariable, tee.EffectiveType())
	assert.ElementsMatch(t, []int64{shirts.ID, clothing.ID}, tee.Terms(model.TaxonomyCategory))
	assert.Len(t, tee.Terms(model.TaxonomyTag), 1)
	assert.Len(t, tee.Terms("pa_size"), 3, "variation option Medium should be added to the parent")

	size := tee.Attribute("pa_size")
	require.NotNil(t, size)
	assert.True(t, size.IsTaxonomy)
	fabric := tee.Attribute("Fabric")
	require.NotNil(t, fabric)
	assert.Equal(t, []string{"cotton"}, fabric.Options)

	at, err := db.GetAttributeTaxonomy(f.conn, "pa_size")
	require.NoError(t, err)
	assert.Equal(t, "Size", at.Label)

	children, err := db.GetChildIDs(f.conn, tee.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	small := f.productBySKU(t, "TEE-S")
	assert.Equal(t, tee.ID, small.ParentID)
	assert.Equal(t, model.TypeVariation, small.Type)
	assert.True(t, small.ManageStock)
	assert.Equal(t, model.IntOf(3), small.StockQuantity)
	assert.Empty(t, small.StockStatus)
	require.Len(t, small.Attributes, 1)
	assert.Equal(t, []string{"small"}, small.Attributes[0].Options)

	medium := f.productBySKU(t, "TEE-M")
	assert.Equal(t, model.Decimal("9"), medium.Price)
	assert.Equal(t, model.Decimal("11"), medium.RegularPrice)
	assert.False(t, medium.ManageStock)
}

func TestConflictAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing := model.NewProduct(model.TypeSimple)
	existing.Name = "Original"
	existing.SKU = "SKU-1"
	_, err := db.CreateProduct(f.conn, existing, model.Actor{Operator: "seed"})
	require.NoError(t, err)

	path := f.writeJSON(t, "dup.json", doc(simple("SKU-1", "Incoming")))

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	res := runAll(t, f.im, init.Token, model.DefaultImportOptions(), 0)
	assert.Equal(t, 1, res.Summary.Failed)
	require.Len(t, res.Summary.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Summary.Errors[0], "Incoming (SKU-1): "), res.Summary.Errors[0])
	assert.Equal(t, "Original", f.productBySKU(t, "SKU-1").Name)

	init, err = f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	res = runAll(t, f.im, init.Token, model.ImportOptions{UpdateExisting: true, DedupeImages: true}, 0)
	assert.Equal(t, 1, res.Summary.Updated)
	assert.Zero(t, res.Summary.Failed)

	updated := f.productBySKU(t, "SKU-1")
	assert.Equal(t, "Incoming", updated.Name)
	assert.Equal(t, existing.ID, updated.ID)

	activity, err := db.GetActivity(f.conn, updated.ID, 10)
	require.NoError(t, err)
	var found bool
	for _, a := range activity {
		if a.Action == model.ActionUpdated && a.SessionToken == init.Token && a.Operator == "alice" {
			found = true
		}
	}
	assert.True(t, found, "no update activity recorded for the session: %+v", activity)
}

func TestPreserveIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := simple("KEEP", "Kept")
	rec["id"] = 500
	path := f.writeJSON(t, "ids.json", doc(rec))

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	res := runAll(t, f.im, init.Token, model.ImportOptions{PreserveIDs: true, DedupeImages: true}, 0)
	assert.Equal(t, 1, res.Summary.Imported)
	assert.Equal(t, int64(500), f.productBySKU(t, "KEEP").ID)
}

func TestArchiveImportDeduplicatesMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash := media.Hash(pngBytes)
	image := func() map[string]any {
		return map[string]any{
			"url":        "https://old.example.com/uploads/front.png",
			"filename":   "front.png",
			"hash":       hash,
			"local_path": "images/" + hash + ".png",
		}
	}
	a := simple("IMG-A", "Pictured A")
	a["image"] = image()
	a["gallery_images"] = []any{image()}
	b := simple("IMG-B", "Pictured B")
	b["image"] = image()

	path := f.writeArchive(t, "export.zip", doc(a, b), map[string][]byte{hash + ".png": pngBytes})

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	assert.True(t, init.IsArchive)

	// One record per batch: the second batch must reuse the first batch's
	// media even with the persisted index disabled.
	res := runAll(t, f.im, init.Token, model.ImportOptions{DedupeImages: false}, 1)
	assert.Equal(t, 2, res.Summary.Imported)
	assert.Equal(t, 1, res.Summary.ImagesImported)
	assert.Equal(t, 2, res.Summary.ImagesDeduplicated)

	n, err := db.CountMedia(f.conn)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pa := f.productBySKU(t, "IMG-A")
	pb := f.productBySKU(t, "IMG-B")
	assert.NotZero(t, pa.ImageID)
	assert.Equal(t, pa.ImageID, pb.ImageID)
	assert.Equal(t, []int64{pa.ImageID}, pa.GalleryIDs)
	assert.Empty(t, f.workDirs(t))
}

func TestPersistedIndexAcrossImports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash := media.Hash(pngBytes)
	_, err := f.lib.Store(ctx, &model.Media{Filename: "front.png", Hash: hash}, pngBytes)
	require.NoError(t, err)

	rec := simple("IDX", "Indexed")
	rec["image"] = map[string]any{"url": "https://unreachable.invalid/front.png", "hash": hash}
	path := f.writeJSON(t, "idx.json", doc(rec))

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	res := runAll(t, f.im, init.Token, model.DefaultImportOptions(), 0)
	assert.Equal(t, 1, res.Summary.ImagesDeduplicated)
	assert.Zero(t, res.Summary.ImagesImported)

	init, err = f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	res = runAll(t, f.im, init.Token, model.ImportOptions{UpdateExisting: true, SkipImages: true}, 0)
	assert.Equal(t, 1, res.Summary.Updated)
	assert.Zero(t, res.Summary.ImagesDeduplicated)
	assert.NotZero(t, f.productBySKU(t, "IDX").ImageID, "skip_images must leave the image alone")
}

func TestInitRejectsZipSlip(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(f.uploads, "evil.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("../escaped.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"products":[{"name":"x"}]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	_, err = f.im.Init(context.Background(), "alice", path)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.Empty(t, f.workDirs(t))
	_, statErr := os.Stat(filepath.Join(f.dir, "escaped.json"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestBatchErrorsAreBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var records []map[string]any
	for i := range 60 {
		sku := fmt.Sprintf("DUP-%02d", i)
		p := model.NewProduct(model.TypeSimple)
		p.Name = sku
		p.SKU = sku
		_, err := db.CreateProduct(f.conn, p, model.Actor{Operator: "seed"})
		require.NoError(t, err)
		records = append(records, simple(sku, sku))
	}
	path := f.writeJSON(t, "dups.json", doc(records...))

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	res, err := f.im.Batch(ctx, "alice", init.Token, BatchRequest{Page: 1, BatchSize: 60, Options: model.DefaultImportOptions()})
	require.NoError(t, err)
	assert.Equal(t, 60, res.Results.Failed)
	assert.Len(t, res.Results.Errors, model.MaxBatchErrors)
	assert.True(t, res.IsComplete)
}

func TestLegacyTermIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local, err := db.CreateTerm(f.conn, &model.Term{Taxonomy: model.TaxonomyCategory, Name: "Local"})
	require.NoError(t, err)
	tag, err := db.CreateTerm(f.conn, &model.Term{Taxonomy: model.TaxonomyTag, Name: "Wrong Taxonomy"})
	require.NoError(t, err)

	rec := simple("LEG", "Legacy")
	rec["category_ids"] = []any{local, tag, 9999}
	path := f.writeJSON(t, "legacy.json", doc(rec))

	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	runAll(t, f.im, init.Token, model.DefaultImportOptions(), 0)

	assert.Equal(t, []int64{local}, f.productBySKU(t, "LEG").Terms(model.TaxonomyCategory))
}

func TestUnreadableRecordDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := f.writeJSON(t, "mixed.json", `{"products":[{"name":"Good","sku":"G"},{"name":"Bad","stock_quantity":"lots"}]}`)
	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)

	res := runAll(t, f.im, init.Token, model.DefaultImportOptions(), 0)
	assert.Equal(t, 1, res.Summary.Imported)
	assert.Equal(t, 1, res.Summary.Failed)
}

// panicRepo fails every SKU lookup by panicking.
type panicRepo struct {
	*db.Catalog
}

func (panicRepo) IDBySKU(context.Context, string) (int64, error) {
	panic("sku index corrupted")
}

func TestRecordPanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	im := f.importer(panicRepo{f.cat})

	path := f.writeJSON(t, "panic.json", doc(simple("P", "Panicky"), simple("Q", "Also")))
	init, err := im.Init(ctx, "alice", path)
	require.NoError(t, err)

	res := runAll(t, im, init.Token, model.DefaultImportOptions(), 0)
	assert.Equal(t, 2, res.Summary.Failed)
	require.Len(t, res.Summary.Errors, 2)
	assert.Contains(t, res.Summary.Errors[0], "Panicky (P): internal error")
}

func TestBatchSessionChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := f.writeJSON(t, "one.json", doc(simple("ONE", "One")))
	init, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)

	_, err = f.im.Batch(ctx, "bob", init.Token, BatchRequest{Page: 1})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = f.im.Batch(ctx, "alice", "other", BatchRequest{Page: 1})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = f.im.Batch(ctx, "alice", init.Token, BatchRequest{Page: 0})
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	// A new upload replaces the pending session and its files.
	second, err := f.im.Init(ctx, "alice", path)
	require.NoError(t, err)
	assert.Len(t, f.workDirs(t), 1)
	_, err = f.im.Batch(ctx, "alice", init.Token, BatchRequest{Page: 1})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = f.im.Batch(ctx, "alice", second.Token, BatchRequest{Page: 1, Options: model.DefaultImportOptions()})
	assert.NoError(t, err)
}

func TestVariationFailuresAreItemized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taken := model.NewProduct(model.TypeSimple)
	taken.Name = "Loose small tee"
	taken.SKU = "TEE-S"
	_, err := db.CreateProduct(f.conn, taken, model.Actor{Operator: "seed"})
	require.NoError(t, err)

	variable := map[string]any{
		"name": "Tee", "sku": "TEE", "type": "variable", "status": "publish",
		"attributes": []any{
			map[string]any{"name": "Size", "taxonomy": "pa_size", "options": []any{"Small", "Medium"}, "variation": true},
		},
		"variations": []any{
			map[string]any{"sku": "TEE-S", "regular_price": "10",
				"attributes": []any{map[string]any{"name": "pa_size", "option": "Small"}}},
			map[string]any{"sku": "TEE-M", "regular_price": "11",
				"attributes": []any{map[string]any{"name": "pa_size", "option": "Medium"}}},
		},
	}
	init, err := f.im.Init(ctx, "alice", f.writeJSON(t, "tee.json", doc(variable)))
	require.NoError(t, err)
	res := runAll(t, f.im, init.Token, model.DefaultImportOptions(), 0)

	assert.Equal(t, 1, res.Summary.Imported)
	assert.Zero(t, res.Summary.Failed, "a variation failure must not fail the parent")
	require.Len(t, res.Summary.Errors, 1)
	assert.Equal(t, "variation of Tee (TEE-S): variation already exists (enable update_existing to overwrite)", res.Summary.Errors[0])

	assert.Equal(t, "Loose small tee", f.productBySKU(t, "TEE-S").Name)
	assert.Equal(t, f.productBySKU(t, "TEE").ID, f.productBySKU(t, "TEE-M").ParentID)
}
