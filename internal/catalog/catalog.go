// Package catalog declares the store collaborators the export and import
// pipeline works against: the product repository, the taxonomy term
// repository and the media store. The SQLite-backed implementations live in
// internal/db and internal/media.
package catalog

import (
	"context"
	"io"

	"github.com/ALT-F4-LLC/porter/internal/filter"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Repository is the product store. Lookups of absent records return an
// error wrapping model.ErrNotFound.
type Repository interface {
	QueryIDs(ctx context.Context, q filter.Query) ([]int64, error)
	Product(ctx context.Context, id int64) (*model.Product, error)
	ChildIDs(ctx context.Context, parentID int64) ([]int64, error)
	IDBySKU(ctx context.Context, sku string) (int64, error)
	Exists(ctx context.Context, id int64) (bool, error)

	// Create inserts p and returns its ID. A non-zero p.ID asks for that
	// identifier to be kept.
	Create(ctx context.Context, p *model.Product, actor model.Actor) (int64, error)
	Update(ctx context.Context, p *model.Product, actor model.Actor) error
}

// Terms is the hierarchical taxonomy store. Terms are matched across stores
// by slug; IDs are store-local.
type Terms interface {
	Term(ctx context.Context, id int64) (*model.Term, error)
	TermBySlug(ctx context.Context, taxonomy, slug string) (*model.Term, error)
	TermByName(ctx context.Context, taxonomy, name string) (*model.Term, error)
	CreateTerm(ctx context.Context, t *model.Term) (int64, error)

	AttributeTaxonomy(ctx context.Context, name string) (*model.AttributeTaxonomy, error)
	RegisterAttributeTaxonomy(ctx context.Context, name, label string) (*model.AttributeTaxonomy, error)
}

// MediaStore holds media assets and the persisted content-hash index used
// for deduplication across import runs.
type MediaStore interface {
	Media(ctx context.Context, id int64) (*model.Media, error)
	Open(ctx context.Context, id int64) (io.ReadCloser, error)
	FindByHash(ctx context.Context, hash string) (int64, error)

	// Store saves data as a new asset described by m, records m.Hash in
	// the hash index, and returns the new ID.
	Store(ctx context.Context, m *model.Media, data []byte) (int64, error)
}
