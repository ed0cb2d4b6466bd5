package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ALT-F4-LLC/porter/internal/catalog"
	"github.com/ALT-F4-LLC/porter/internal/media"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// mediaConcurrency bounds the concurrent media resolutions for one record.
const mediaConcurrency = 4

// maxTermDepth guards parent resolution against cyclic term references.
const maxTermDepth = 16

// Action is what reconciling a record did to the store.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Outcome is the result of reconciling one top-level record.
type Outcome struct {
	ID                 int64
	Action             Action
	ImagesImported     int
	ImagesDeduplicated int
	// VariationFailures lists the variations that were not applied. They do
	// not fail the parent.
	VariationFailures []model.RecordFailure
}

// Reconciler applies incoming catalog records to the store: it matches
// existing products, creates or updates them with their terms, media and
// attributes, and then reconciles their variations.
type Reconciler struct {
	repo     catalog.Repository
	terms    catalog.Terms
	resolver *media.ImportResolver
	opts     model.ImportOptions
	actor    model.Actor
	log      *zap.Logger
}

// NewReconciler returns a Reconciler. resolver may be nil when images are
// skipped.
func NewReconciler(repo catalog.Repository, terms catalog.Terms, resolver *media.ImportResolver, opts model.ImportOptions, actor model.Actor, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		repo:     repo,
		terms:    terms,
		resolver: resolver,
		opts:     opts,
		actor:    actor,
		log:      log,
	}
}

// Reconcile applies rec. A record matching an existing product when
// updates are not allowed fails with a conflict and leaves the product
// untouched. Variation failures are reported in the Outcome and do not fail
// the parent.
func (r *Reconciler) Reconcile(ctx context.Context, rec *model.CatalogRecord) (*Outcome, error) {
	existingID, err := r.match(ctx, rec)
	if err != nil {
		return nil, err
	}
	if existingID > 0 && !r.opts.UpdateExisting {
		return nil, model.E(model.KindConflict, fmt.Sprintf("product %d", existingID), model.ErrConflict)
	}

	var p *model.Product
	out := &Outcome{Action: ActionCreated}
	if existingID > 0 {
		p, err = r.repo.Product(ctx, existingID)
		if err != nil {
			return nil, fmt.Errorf("loading product %d: %w", existingID, err)
		}
		out.Action = ActionUpdated
	} else {
		p = model.NewProduct(rec.Type)
		if r.opts.PreserveIDs && rec.ID > 0 {
			p.ID = rec.ID
		}
	}

	applyScalars(p, rec)

	if err := r.applyTerms(ctx, p, rec); err != nil {
		return nil, err
	}

	if !r.opts.SkipImages && r.resolver != nil {
		imported, deduped := r.applyImages(ctx, p, rec)
		out.ImagesImported += imported
		out.ImagesDeduplicated += deduped
	}

	if p.EffectiveType() == model.TypeVariable && len(rec.Attributes) > 0 {
		if err := r.applyAttributes(ctx, p, rec.Attributes); err != nil {
			return nil, err
		}
	}
	if len(rec.DefaultAttributes) > 0 {
		p.DefaultAttributes = rec.DefaultAttributes
	}
	if len(rec.MetaData) > 0 {
		p.Meta = rec.MetaData
	}

	if err := r.save(ctx, p, existingID > 0); err != nil {
		return nil, err
	}
	out.ID = p.ID

	if p.EffectiveType() == model.TypeVariable && len(rec.Children) > 0 {
		imported, deduped, failures := r.reconcileVariations(ctx, p, rec.Children)
		out.ImagesImported += imported
		out.ImagesDeduplicated += deduped
		out.VariationFailures = failures
	}

	return out, nil
}

// match returns the id of the product rec corresponds to, or 0. SKU takes
// precedence over a preserved id.
func (r *Reconciler) match(ctx context.Context, rec *model.CatalogRecord) (int64, error) {
	if rec.SKU != "" {
		id, err := r.repo.IDBySKU(ctx, rec.SKU)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return 0, fmt.Errorf("looking up sku %q: %w", rec.SKU, err)
		}
	}
	if r.opts.PreserveIDs && rec.ID > 0 {
		ok, err := r.repo.Exists(ctx, rec.ID)
		if err != nil {
			return 0, fmt.Errorf("looking up id %d: %w", rec.ID, err)
		}
		if ok {
			return rec.ID, nil
		}
	}
	return 0, nil
}

func (r *Reconciler) save(ctx context.Context, p *model.Product, exists bool) error {
	if exists {
		if err := r.repo.Update(ctx, p, r.actor); err != nil {
			return fmt.Errorf("updating product %d: %w", p.ID, err)
		}
		return nil
	}
	id, err := r.repo.Create(ctx, p, r.actor)
	if errors.Is(err, model.ErrConflict) && p.ID > 0 {
		// The preserved id was taken between matching and inserting.
		p.ID = 0
		id, err = r.repo.Create(ctx, p, r.actor)
	}
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	p.ID = id
	return nil
}

// applyScalars copies the plain fields of rec onto p. Prices, the sale
// window and dimensions are only applied when present.
func applyScalars(p *model.Product, rec *model.CatalogRecord) {
	p.Name = rec.Name
	if rec.Slug != "" {
		p.Slug = rec.Slug
	}
	if model.ValidateStatus(rec.Status) == nil {
		p.Status = rec.Status
	}
	p.Featured = rec.Featured
	if rec.CatalogVisibility != "" {
		p.CatalogVisibility = rec.CatalogVisibility
	}
	p.Description = rec.Description
	p.ShortDescription = rec.ShortDescription
	p.SKU = rec.SKU
	if rec.TaxStatus != "" {
		p.TaxStatus = rec.TaxStatus
	}
	p.TaxClass = rec.TaxClass
	p.ReviewsAllowed = rec.ReviewsAllowed
	p.PurchaseNote = rec.PurchaseNote
	p.MenuOrder = rec.MenuOrder
	p.Virtual = rec.Virtual
	p.Downloadable = rec.Downloadable
	p.SoldIndividually = rec.SoldIndividually

	applyPricing(p, rec)
	applyDimensions(p, rec)

	if p.EffectiveType().HasStock() {
		p.ManageStock = rec.ManageStock
		p.StockQuantity = rec.StockQuantity
		p.LowStockAmount = rec.LowStockAmount
		if model.ValidateStockStatus(rec.StockStatus) == nil {
			p.StockStatus = rec.StockStatus
		}
		if rec.Backorders != "" {
			p.Backorders = rec.Backorders
		}
	}
}

// applyPricing sets prices present in rec. The active price is the sale
// price when there is one, otherwise the regular price.
func applyPricing(p *model.Product, rec *model.CatalogRecord) {
	if !rec.RegularPrice.IsZero() {
		p.RegularPrice = rec.RegularPrice
	}
	if !rec.SalePrice.IsZero() {
		p.SalePrice = rec.SalePrice
	}
	switch {
	case !rec.SalePrice.IsZero():
		p.Price = rec.SalePrice
	case !rec.RegularPrice.IsZero():
		p.Price = rec.RegularPrice
	case !rec.Price.IsZero():
		p.Price = rec.Price
	}
	if rec.DateOnSaleFrom != "" {
		p.SaleFrom = rec.DateOnSaleFrom
	}
	if rec.DateOnSaleTo != "" {
		p.SaleTo = rec.DateOnSaleTo
	}
}

func applyDimensions(p *model.Product, rec *model.CatalogRecord) {
	for _, d := range []struct {
		src model.Decimal
		dst *model.Decimal
	}{
		{rec.Weight, &p.Weight},
		{rec.Length, &p.Length},
		{rec.Width, &p.Width},
		{rec.Height, &p.Height},
	} {
		if !d.src.IsZero() {
			*d.dst = d.src
		}
	}
}

// applyTerms resolves categories, tags and the shipping class. Full term
// data is preferred; bare legacy ids are kept only when they name a local
// term of the right taxonomy.
func (r *Reconciler) applyTerms(ctx context.Context, p *model.Product, rec *model.CatalogRecord) error {
	for _, set := range []struct {
		taxonomy string
		refs     []model.TermRef
		legacy   []int64
	}{
		{model.TaxonomyCategory, rec.Categories, rec.CategoryIDs},
		{model.TaxonomyTag, rec.Tags, rec.TagIDs},
	} {
		var ids []int64
		var err error
		if len(set.refs) > 0 {
			ids, err = r.ensureTerms(ctx, set.taxonomy, set.refs)
		} else if len(set.legacy) > 0 {
			ids, err = r.localTerms(ctx, set.taxonomy, set.legacy)
		} else {
			continue
		}
		if err != nil {
			return err
		}
		p.SetTerms(set.taxonomy, ids)
	}

	switch {
	case rec.ShippingClass != nil && (rec.ShippingClass.Slug != "" || rec.ShippingClass.Name != ""):
		ids, err := r.ensureTerms(ctx, model.TaxonomyShippingClass, []model.TermRef{*rec.ShippingClass})
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			p.ShippingClassID = ids[0]
		}
	case rec.ShippingClassID > 0:
		ids, err := r.localTerms(ctx, model.TaxonomyShippingClass, []int64{rec.ShippingClassID})
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			p.ShippingClassID = ids[0]
		}
	}
	return nil
}

// ensureTerms returns local ids for refs, creating missing terms. Parents
// named in the same list are resolved first.
func (r *Reconciler) ensureTerms(ctx context.Context, taxonomy string, refs []model.TermRef) ([]int64, error) {
	bySlug := make(map[string]model.TermRef, len(refs))
	for _, ref := range refs {
		if slug := termSlug(ref); slug != "" {
			bySlug[slug] = ref
		}
	}

	resolved := make(map[string]int64)
	var ids []int64
	for _, ref := range refs {
		slug := termSlug(ref)
		if slug == "" {
			continue
		}
		id, err := r.ensureTerm(ctx, taxonomy, slug, bySlug, resolved, 0)
		if err != nil {
			return nil, err
		}
		ids = appendID(ids, id)
	}
	return ids, nil
}

func (r *Reconciler) ensureTerm(ctx context.Context, taxonomy, slug string, bySlug map[string]model.TermRef, resolved map[string]int64, depth int) (int64, error) {
	if id, ok := resolved[slug]; ok {
		return id, nil
	}

	existing, err := r.terms.TermBySlug(ctx, taxonomy, slug)
	if err == nil {
		resolved[slug] = existing.ID
		return existing.ID, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, fmt.Errorf("looking up %s term %q: %w", taxonomy, slug, err)
	}

	ref, ok := bySlug[slug]
	if !ok {
		return 0, nil
	}

	var parentID int64
	if ref.Parent != "" && ref.Parent != slug && depth < maxTermDepth {
		if _, listed := bySlug[ref.Parent]; listed {
			parentID, err = r.ensureTerm(ctx, taxonomy, ref.Parent, bySlug, resolved, depth+1)
			if err != nil {
				return 0, err
			}
		} else if parent, err := r.terms.TermBySlug(ctx, taxonomy, ref.Parent); err == nil {
			parentID = parent.ID
		}
	}

	name := ref.Name
	if name == "" {
		name = slug
	}
	id, err := r.terms.CreateTerm(ctx, &model.Term{
		Taxonomy:    taxonomy,
		Name:        name,
		Slug:        slug,
		ParentID:    parentID,
		Description: ref.Description,
	})
	if err != nil {
		return 0, fmt.Errorf("creating %s term %q: %w", taxonomy, slug, err)
	}
	r.log.Debug("created term", zap.String("taxonomy", taxonomy), zap.String("slug", slug), zap.Int64("id", id))
	resolved[slug] = id
	return id, nil
}

func termSlug(ref model.TermRef) string {
	if ref.Slug != "" {
		return ref.Slug
	}
	return model.Slugify(ref.Name)
}

// localTerms keeps the ids that name an existing term in taxonomy.
func (r *Reconciler) localTerms(ctx context.Context, taxonomy string, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		t, err := r.terms.Term(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				r.log.Debug("dropping unknown legacy term", zap.String("taxonomy", taxonomy), zap.Int64("id", id))
				continue
			}
			return nil, fmt.Errorf("looking up term %d: %w", id, err)
		}
		if t.Taxonomy == taxonomy {
			out = appendID(out, t.ID)
		}
	}
	return out, nil
}

func appendID(ids []int64, id int64) []int64 {
	if id <= 0 {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// applyImages resolves the main image and gallery concurrently and
// returns the imported and deduplicated counts.
func (r *Reconciler) applyImages(ctx context.Context, p *model.Product, rec *model.CatalogRecord) (imported, deduped int) {
	refs := make([]*model.MediaReference, 0, 1+len(rec.GalleryImages))
	refs = append(refs, rec.Image)
	refs = append(refs, rec.GalleryImages...)

	ids := make([]int64, len(refs))
	outcomes := make([]media.Outcome, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mediaConcurrency)
	for i, ref := range refs {
		if ref == nil {
			continue
		}
		g.Go(func() error {
			ids[i], outcomes[i] = r.resolver.Resolve(gctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case media.Imported:
			imported++
		case media.Deduplicated:
			deduped++
		}
	}

	if rec.Image != nil && ids[0] > 0 {
		p.ImageID = ids[0]
	}
	if len(rec.GalleryImages) > 0 {
		var gallery []int64
		for _, id := range ids[1:] {
			if id > 0 {
				gallery = append(gallery, id)
			}
		}
		if len(gallery) > 0 {
			p.GalleryIDs = gallery
		}
	}
	return imported, deduped
}

// applyAttributes replaces p's attributes with attrs. Taxonomy attributes
// get their taxonomy registered and their options resolved to terms; local
// attributes are keyed by their sanitized name.
func (r *Reconciler) applyAttributes(ctx context.Context, p *model.Product, attrs []model.Attribute) error {
	var out []model.ProductAttribute
	index := make(map[string]int)

	for _, a := range attrs {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}

		pa := model.ProductAttribute{
			Position:  a.Position,
			Visible:   a.Visible,
			Variation: a.Variation,
		}
		key := a.TaxonomyKey()
		if key != "" {
			if err := r.ensureAttributeTaxonomy(ctx, key, name); err != nil {
				return err
			}
			var termIDs []int64
			for _, opt := range a.Options {
				t, err := r.ensureOptionTerm(ctx, key, opt)
				if err != nil {
					return err
				}
				termIDs = appendID(termIDs, t.ID)
			}
			p.SetTerms(key, termIDs)
			pa.Name = key
			pa.IsTaxonomy = true
		} else {
			key = model.Slugify(name)
			pa.Name = name
			pa.Options = a.Options
		}

		if i, ok := index[key]; ok {
			out[i] = pa
			continue
		}
		index[key] = len(out)
		out = append(out, pa)
	}

	p.Attributes = out
	return nil
}

func (r *Reconciler) ensureAttributeTaxonomy(ctx context.Context, key, name string) error {
	label := name
	if label == key {
		label = model.AttributeLabel(key)
	}
	if _, err := r.terms.RegisterAttributeTaxonomy(ctx, key, label); err != nil {
		return fmt.Errorf("registering attribute %q: %w", key, err)
	}
	return nil
}

// ensureOptionTerm finds the term for an attribute option by name, then by
// slug, and creates it when neither matches.
func (r *Reconciler) ensureOptionTerm(ctx context.Context, taxonomy, value string) (*model.Term, error) {
	t, err := r.terms.TermByName(ctx, taxonomy, value)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("looking up %s option %q: %w", taxonomy, value, err)
	}
	t, err = r.terms.TermBySlug(ctx, taxonomy, value)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("looking up %s option %q: %w", taxonomy, value, err)
	}

	id, err := r.terms.CreateTerm(ctx, &model.Term{Taxonomy: taxonomy, Name: value})
	if err != nil {
		return nil, fmt.Errorf("creating %s option %q: %w", taxonomy, value, err)
	}
	return r.terms.Term(ctx, id)
}

// reconcileVariations applies children to the variable parent. Option terms
// the variations introduce are added to the parent, which is saved again
// when that happens. Variations that could not be applied are returned as
// failures.
func (r *Reconciler) reconcileVariations(ctx context.Context, parent *model.Product, children []*model.CatalogRecord) (imported, deduped int, failures []model.RecordFailure) {
	parentChanged := false
	for _, child := range children {
		if child == nil {
			continue
		}
		i, d, changed, err := r.reconcileVariation(ctx, parent, child)
		imported += i
		deduped += d
		parentChanged = parentChanged || changed
		if err != nil {
			r.log.Warn("variation not imported",
				zap.Int64("parent_id", parent.ID),
				zap.String("sku", child.SKU),
				zap.Error(err))
			failures = append(failures, variationFailure(parent, child, err))
		}
	}

	if parentChanged {
		if err := r.repo.Update(ctx, parent, r.actor); err != nil {
			r.log.Warn("saving variation terms on parent", zap.Int64("parent_id", parent.ID), zap.Error(err))
		}
	}
	return imported, deduped, failures
}

// variationFailure names a failed variation after its parent, since
// variations are often unnamed.
func variationFailure(parent *model.Product, child *model.CatalogRecord, err error) model.RecordFailure {
	name := child.Name
	if strings.TrimSpace(name) == "" {
		name = "variation of " + parent.Name
	}
	reason := err.Error()
	if errors.Is(err, model.ErrConflict) {
		reason = "variation already exists (enable update_existing to overwrite)"
	}
	return model.RecordFailure{Name: name, SKU: child.SKU, Reason: reason}
}

func (r *Reconciler) reconcileVariation(ctx context.Context, parent *model.Product, rec *model.CatalogRecord) (imported, deduped int, parentChanged bool, err error) {
	var existingID int64
	if rec.SKU != "" {
		existingID, err = r.repo.IDBySKU(ctx, rec.SKU)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return 0, 0, false, fmt.Errorf("looking up sku %q: %w", rec.SKU, err)
		}
		err = nil
	}
	if existingID > 0 && !r.opts.UpdateExisting {
		return 0, 0, false, fmt.Errorf("variation %d: %w", existingID, model.ErrConflict)
	}

	var v *model.Product
	if existingID > 0 {
		if v, err = r.repo.Product(ctx, existingID); err != nil {
			return 0, 0, false, fmt.Errorf("loading variation %d: %w", existingID, err)
		}
	} else {
		v = model.NewProduct(model.TypeVariation)
	}
	v.Type = model.TypeVariation
	v.ParentID = parent.ID

	if len(rec.Attributes) > 0 {
		var attrs []model.ProductAttribute
		for _, a := range rec.Attributes {
			pa, changed, err := r.variationAttribute(ctx, parent, a)
			if err != nil {
				return 0, 0, parentChanged, err
			}
			parentChanged = parentChanged || changed
			if pa != nil {
				attrs = append(attrs, *pa)
			}
		}
		v.Attributes = attrs
	}

	if rec.Name != "" {
		v.Name = rec.Name
	} else if v.Name == "" {
		v.Name = parent.Name
	}
	if model.ValidateStatus(rec.Status) == nil {
		v.Status = rec.Status
	}
	if rec.SKU != "" {
		v.SKU = rec.SKU
	}
	if rec.Description != "" {
		v.Description = rec.Description
	}
	if rec.TaxClass != "" {
		v.TaxClass = rec.TaxClass
	}
	v.MenuOrder = rec.MenuOrder
	v.Virtual = rec.Virtual
	v.Downloadable = rec.Downloadable
	applyPricing(v, rec)
	applyDimensions(v, rec)

	switch {
	case rec.StockQuantity.Valid:
		v.ManageStock = true
		v.StockQuantity = rec.StockQuantity
		v.StockStatus = ""
	case rec.StockStatus != "":
		v.ManageStock = false
		v.StockStatus = rec.StockStatus
	default:
		v.ManageStock = false
	}

	if len(rec.MetaData) > 0 {
		v.Meta = rec.MetaData
	}

	if !r.opts.SkipImages && r.resolver != nil && rec.Image != nil {
		id, outcome := r.resolver.Resolve(ctx, rec.Image)
		if id > 0 {
			v.ImageID = id
		}
		switch outcome {
		case media.Imported:
			imported++
		case media.Deduplicated:
			deduped++
		}
	}

	if err := r.save(ctx, v, existingID > 0); err != nil {
		return imported, deduped, parentChanged, err
	}
	return imported, deduped, parentChanged, nil
}

// variationAttribute resolves one selected attribute value of a variation.
// Taxonomy values are matched against the parent's taxonomy, created when
// missing, and added to the parent's terms; the variation stores the term
// slug. Local values are stored as given.
func (r *Reconciler) variationAttribute(ctx context.Context, parent *model.Product, a model.Attribute) (*model.ProductAttribute, bool, error) {
	name := strings.TrimSpace(a.Name)
	value := a.FirstOption()
	if name == "" || value == "" {
		return nil, false, nil
	}

	key := a.TaxonomyKey()
	if key == "" {
		if candidate := model.AttributeTaxonomyPrefix + model.Slugify(name); parent.Attribute(candidate) != nil {
			key = candidate
		}
	}
	if key == "" {
		return &model.ProductAttribute{Name: name, Options: []string{value}, Variation: true}, false, nil
	}

	if err := r.ensureAttributeTaxonomy(ctx, key, name); err != nil {
		return nil, false, err
	}
	t, err := r.ensureOptionTerm(ctx, key, value)
	if err != nil {
		return nil, false, err
	}
	changed := parent.AddTerm(key, t.ID)
	if parent.Attribute(key) == nil {
		parent.Attributes = append(parent.Attributes, model.ProductAttribute{
			Name:       key,
			IsTaxonomy: true,
			Position:   len(parent.Attributes),
			Visible:    true,
			Variation:  true,
		})
		changed = true
	}
	return &model.ProductAttribute{Name: key, IsTaxonomy: true, Options: []string{t.Slug}, Variation: true}, changed, nil
}
