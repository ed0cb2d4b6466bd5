// Package serializer converts stored products into portable catalog records.
package serializer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/media"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Serializer reads products, their terms and media from the store
// collaborators and produces CatalogRecords.
type Serializer struct {
	repo  catalog.Repository
	terms catalog.Terms
	media catalog.MediaStore
	log   *zap.Logger
}

// New returns a Serializer. A nil logger discards log output.
func New(repo catalog.Repository, terms catalog.Terms, store catalog.MediaStore, log *zap.Logger) *Serializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Serializer{repo: repo, terms: terms, media: store, log: log}
}

// Serialize returns the portable record for product id, or nil when the id
// does not resolve or the record cannot be built. Failures, panics included,
// are logged and never propagated.
func (s *Serializer) Serialize(ctx context.Context, id int64, opts model.ExportOptions) (rec *model.CatalogRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("serializing product panicked",
				zap.Int64("id", id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			rec = nil
		}
	}()

	rec, err := s.serialize(ctx, id, opts)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.log.Debug("product not found", zap.Int64("id", id))
		} else {
			s.log.Error("serializing product failed", zap.Int64("id", id), zap.Error(err))
		}
		return nil
	}
	return rec
}

func (s *Serializer) serialize(ctx context.Context, id int64, opts model.ExportOptions) (*model.CatalogRecord, error) {
	p, err := s.repo.Product(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := baseRecord(p)

	if rec.Categories, err = s.termRefs(ctx, p.Terms(model.TaxonomyCategory)); err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	if rec.Tags, err = s.termRefs(ctx, p.Terms(model.TaxonomyTag)); err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	if p.ShippingClassID > 0 {
		refs, err := s.termRefs(ctx, []int64{p.ShippingClassID})
		if err != nil {
			return nil, fmt.Errorf("shipping class: %w", err)
		}
		if len(refs) == 1 {
			rec.ShippingClass = &refs[0]
		}
	}

	if opts.IncludeImages {
		rec.Image = s.mediaRef(ctx, p.ImageID)
		for _, gid := range p.GalleryIDs {
			if ref := s.mediaRef(ctx, gid); ref != nil {
				rec.GalleryImages = append(rec.GalleryImages, ref)
			}
		}
	}

	if opts.IncludeAttributes {
		if rec.Attributes, err = s.attributes(ctx, p); err != nil {
			return nil, fmt.Errorf("attributes: %w", err)
		}
		if len(p.DefaultAttributes) > 0 {
			rec.DefaultAttributes = p.DefaultAttributes
		}
	}

	if opts.IncludeMeta && len(p.Meta) > 0 {
		rec.MetaData = p.Meta
	}

	if opts.IncludeVariations && p.EffectiveType().HasChildren() {
		childIDs, err := s.repo.ChildIDs(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("variations: %w", err)
		}
		for _, cid := range childIDs {
			if child := s.Serialize(ctx, cid, opts); child != nil {
				child.Children = []*model.CatalogRecord{}
				rec.Children = append(rec.Children, child)
			}
		}
	}

	return rec, nil
}

func baseRecord(p *model.Product) *model.CatalogRecord {
	rec := &model.CatalogRecord{
		ID:                p.ID,
		Name:              p.Name,
		Slug:              p.Slug,
		Type:              p.EffectiveType(),
		Status:            p.Status,
		Featured:          p.Featured,
		CatalogVisibility: p.CatalogVisibility,
		Description:       p.Description,
		ShortDescription:  p.ShortDescription,
		SKU:               p.SKU,
		Price:             p.Price,
		RegularPrice:      p.RegularPrice,
		SalePrice:         p.SalePrice,
		DateOnSaleFrom:    p.SaleFrom,
		DateOnSaleTo:      p.SaleTo,
		TotalSales:        p.TotalSales,
		TaxStatus:         p.TaxStatus,
		TaxClass:          p.TaxClass,
		ManageStock:       p.ManageStock,
		StockQuantity:     p.StockQuantity,
		StockStatus:       p.StockStatus,
		Backorders:        p.Backorders,
		LowStockAmount:    p.LowStockAmount,
		SoldIndividually:  p.SoldIndividually,
		Weight:            p.Weight,
		Length:            p.Length,
		Width:             p.Width,
		Height:            p.Height,
		UpsellIDs:         model.IDList(p.UpsellIDs),
		CrossSellIDs:      model.IDList(p.CrossSellIDs),
		ParentID:          p.ParentID,
		ReviewsAllowed:    p.ReviewsAllowed,
		PurchaseNote:      p.PurchaseNote,
		MenuOrder:         p.MenuOrder,
		Virtual:           p.Virtual,
		Downloadable:      p.Downloadable,
		CategoryIDs:       model.IDList(p.Terms(model.TaxonomyCategory)),
		TagIDs:            model.IDList(p.Terms(model.TaxonomyTag)),
		ShippingClassID:   p.ShippingClassID,
		Children:          []*model.CatalogRecord{},
	}
	if !rec.Type.HasStock() {
		rec.ManageStock = false
		rec.StockQuantity = model.NullInt{}
		rec.StockStatus = ""
		rec.Backorders = ""
		rec.LowStockAmount = model.NullInt{}
	}
	return rec
}

// termRefs resolves term ids to portable references. Terms that no longer
// exist are skipped.
func (s *Serializer) termRefs(ctx context.Context, ids []int64) ([]model.TermRef, error) {
	var refs []model.TermRef
	for _, id := range ids {
		t, err := s.terms.Term(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, err
		}
		ref := model.TermRef{
			ID:          t.ID,
			Name:        t.Name,
			Slug:        t.Slug,
			ParentID:    t.ParentID,
			Description: t.Description,
		}
		if t.ParentID > 0 {
			if parent, err := s.terms.Term(ctx, t.ParentID); err == nil {
				ref.Parent = parent.Slug
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// mediaRef describes media id for export. The hash is the digest of the
// stored bytes when they are readable, else the digest of the URL.
func (s *Serializer) mediaRef(ctx context.Context, id int64) *model.MediaReference {
	if id <= 0 || s.media == nil {
		return nil
	}
	m, err := s.media.Media(ctx, id)
	if err != nil {
		s.log.Debug("media not found", zap.Int64("media_id", id), zap.Error(err))
		return nil
	}
	if m.URL == "" {
		return nil
	}

	hash := media.HashURL(m.URL)
	if rc, err := s.media.Open(ctx, id); err == nil {
		if h, err := media.HashReader(rc); err == nil {
			hash = h
		}
		rc.Close()
	}

	filename := m.Filename
	if filename == "" {
		filename = path.Base(m.URL)
	}
	return &model.MediaReference{
		ID:          m.ID,
		URL:         m.URL,
		Filename:    filename,
		Hash:        hash,
		Title:       m.Title,
		Alt:         m.Alt,
		Caption:     m.Caption,
		Description: m.Description,
		MimeType:    m.MimeType,
	}
}

// attributes normalizes stored attributes into the portable shape. Taxonomy
// options are reported as term names.
func (s *Serializer) attributes(ctx context.Context, p *model.Product) ([]model.Attribute, error) {
	var out []model.Attribute
	for _, a := range p.Attributes {
		attr := model.Attribute{
			Name:      a.Name,
			Position:  a.Position,
			Visible:   a.Visible,
			Variation: a.Variation,
		}
		if !a.IsTaxonomy {
			attr.Options = append([]string(nil), a.Options...)
			out = append(out, attr)
			continue
		}

		attr.IsTaxonomy = true
		attr.Taxonomy = a.Name
		if at, err := s.terms.AttributeTaxonomy(ctx, a.Name); err == nil {
			attr.ID = at.ID
		} else if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}

		if p.EffectiveType() == model.TypeVariation {
			// A variation holds one selected term slug.
			if v := firstOption(a.Options); v != "" {
				name := v
				if t, err := s.terms.TermBySlug(ctx, a.Name, v); err == nil {
					name = t.Name
				}
				attr.Options = []string{name}
			}
			out = append(out, attr)
			continue
		}

		for _, tid := range p.Terms(a.Name) {
			t, err := s.terms.Term(ctx, tid)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					continue
				}
				return nil, err
			}
			attr.Options = append(attr.Options, t.Name)
		}
		out = append(out, attr)
	}
	return out, nil
}

func firstOption(opts []string) string {
	if len(opts) == 0 {
		return ""
	}
	return opts[0]
}
