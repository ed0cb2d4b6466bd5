package db

import (
	"context"
	"database/sql"

	"github.com/ALT-F4-LLC/porter/internal/filter"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Catalog adapts the package functions to the catalog.Repository and
// catalog.Terms collaborators.
type Catalog struct {
	DB *sql.DB
}

// NewCatalog returns a Catalog backed by conn.
func NewCatalog(conn *sql.DB) *Catalog {
	return &Catalog{DB: conn}
}

func (c *Catalog) QueryIDs(ctx context.Context, q filter.Query) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return QueryProductIDs(c.DB, q)
}

func (c *Catalog) Product(ctx context.Context, id int64) (*model.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetProduct(c.DB, id)
}

func (c *Catalog) ChildIDs(ctx context.Context, parentID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetChildIDs(c.DB, parentID)
}

func (c *Catalog) IDBySKU(ctx context.Context, sku string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return GetProductIDBySKU(c.DB, sku)
}

func (c *Catalog) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return ProductExists(c.DB, id)
}

func (c *Catalog) Create(ctx context.Context, p *model.Product, actor model.Actor) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return CreateProduct(c.DB, p, actor)
}

func (c *Catalog) Update(ctx context.Context, p *model.Product, actor model.Actor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return UpdateProduct(c.DB, p, actor)
}

func (c *Catalog) Term(ctx context.Context, id int64) (*model.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetTerm(c.DB, id)
}

func (c *Catalog) TermBySlug(ctx context.Context, taxonomy, slug string) (*model.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetTermBySlug(c.DB, taxonomy, slug)
}

func (c *Catalog) TermByName(ctx context.Context, taxonomy, name string) (*model.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetTermByName(c.DB, taxonomy, name)
}

func (c *Catalog) CreateTerm(ctx context.Context, t *model.Term) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return CreateTerm(c.DB, t)
}

func (c *Catalog) AttributeTaxonomy(ctx context.Context, name string) (*model.AttributeTaxonomy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetAttributeTaxonomy(c.DB, name)
}

func (c *Catalog) RegisterAttributeTaxonomy(ctx context.Context, name, label string) (*model.AttributeTaxonomy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return RegisterAttributeTaxonomy(c.DB, name, label)
}
