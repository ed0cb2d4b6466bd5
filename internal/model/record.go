package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CatalogRecord is the portable, versioned form of one product or variation
// as it appears in an export document.
type CatalogRecord struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Slug              string            `json:"slug"`
	Type              RecordType        `json:"type"`
	Status            Status            `json:"status"`
	Featured          bool              `json:"featured"`
	CatalogVisibility string            `json:"catalog_visibility"`
	Description       string            `json:"description"`
	ShortDescription  string            `json:"short_description"`
	SKU               string            `json:"sku"`
	Price             Decimal           `json:"price"`
	RegularPrice      Decimal           `json:"regular_price"`
	SalePrice         Decimal           `json:"sale_price"`
	DateOnSaleFrom    string            `json:"date_on_sale_from,omitempty"`
	DateOnSaleTo      string            `json:"date_on_sale_to,omitempty"`
	TotalSales        int               `json:"total_sales"`
	TaxStatus         string            `json:"tax_status"`
	TaxClass          string            `json:"tax_class"`
	ManageStock       bool              `json:"manage_stock"`
	StockQuantity     NullInt           `json:"stock_quantity"`
	StockStatus       StockStatus       `json:"stock_status"`
	Backorders        string            `json:"backorders"`
	LowStockAmount    NullInt           `json:"low_stock_amount"`
	SoldIndividually  bool              `json:"sold_individually"`
	Weight            Decimal           `json:"weight"`
	Length            Decimal           `json:"length"`
	Width             Decimal           `json:"width"`
	Height            Decimal           `json:"height"`
	UpsellIDs         IDList            `json:"upsell_ids"`
	CrossSellIDs      IDList            `json:"cross_sell_ids"`
	ParentID          int64             `json:"parent_id"`
	ReviewsAllowed    bool              `json:"reviews_allowed"`
	PurchaseNote      string            `json:"purchase_note"`
	MenuOrder         int               `json:"menu_order"`
	Virtual           bool              `json:"virtual"`
	Downloadable      bool              `json:"downloadable"`
	CategoryIDs       IDList            `json:"category_ids"`
	TagIDs            IDList            `json:"tag_ids"`
	ShippingClassID   int64             `json:"shipping_class_id"`
	Categories        []TermRef         `json:"categories,omitempty"`
	Tags              []TermRef         `json:"tags,omitempty"`
	ShippingClass     *TermRef          `json:"shipping_class,omitempty"`
	Image             *MediaReference   `json:"image,omitempty"`
	GalleryImages     []*MediaReference `json:"gallery_images,omitempty"`
	Attributes        []Attribute       `json:"attributes,omitempty"`
	DefaultAttributes map[string]string `json:"default_attributes,omitempty"`
	MetaData          []MetaEntry       `json:"meta_data,omitempty"`
	Children          []*CatalogRecord  `json:"variations"`
}

// DisplayName returns the record's name, or a placeholder for unnamed records.
func (r *CatalogRecord) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return "(unnamed)"
	}
	return r.Name
}

// SKUOrNA returns the SKU, or "N/A" when the record has none.
func (r *CatalogRecord) SKUOrNA() string {
	if r.SKU == "" {
		return "N/A"
	}
	return r.SKU
}

// MediaReferences returns every media reference embedded in the record and
// its variations, depth-first with the parent before its children.
func (r *CatalogRecord) MediaReferences() []*MediaReference {
	var refs []*MediaReference
	if r.Image != nil {
		refs = append(refs, r.Image)
	}
	for _, g := range r.GalleryImages {
		if g != nil {
			refs = append(refs, g)
		}
	}
	for _, child := range r.Children {
		if child != nil {
			refs = append(refs, child.MediaReferences()...)
		}
	}
	return refs
}

// MediaReference is an image attached to a catalog record.
type MediaReference struct {
	ID          int64  `json:"id,omitempty"`
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Title       string `json:"title,omitempty"`
	Alt         string `json:"alt,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
}

// TermRef is a portable reference to a taxonomy term. Slug is the
// cross-store matching key; ID is store-local.
type TermRef struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Parent      string `json:"parent,omitempty"`
	ParentID    int64  `json:"parent_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Attribute is the portable form of both global (taxonomy) attributes and
// local or variation attributes. IsTaxonomy discriminates between the two;
// Taxonomy carries the taxonomy key (for example "pa_size") and encodes as
// false for local attributes.
type Attribute struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Options    []string `json:"options"`
	Position   int      `json:"position"`
	Visible    bool     `json:"visible"`
	Variation  bool     `json:"variation"`
	Taxonomy   string   `json:"-"`
	IsTaxonomy bool     `json:"is_taxonomy"`
}

type attributeAlias Attribute

type attributeJSON struct {
	attributeAlias
	Options  json.RawMessage `json:"options"`
	Option   json.RawMessage `json:"option,omitempty"`
	Taxonomy json.RawMessage `json:"taxonomy"`
}

// MarshalJSON implements json.Marshaler.
func (a Attribute) MarshalJSON() ([]byte, error) {
	var tax any = false
	if a.Taxonomy != "" {
		tax = a.Taxonomy
	}
	opts := a.Options
	if opts == nil {
		opts = []string{}
	}
	return json.Marshal(struct {
		attributeAlias
		Options  []string `json:"options"`
		Taxonomy any      `json:"taxonomy"`
	}{attributeAlias(a), opts, tax})
}

// UnmarshalJSON implements json.Unmarshaler. It accepts options as a list or
// a single string, the single-value "option" key used by variation payloads,
// and a taxonomy given as a string, true, or false.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var j attributeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*a = Attribute(j.attributeAlias)
	a.Options = decodeOptions(j.Options)
	if len(a.Options) == 0 {
		a.Options = decodeOptions(j.Option)
	}

	var tax any
	if len(j.Taxonomy) > 0 {
		_ = json.Unmarshal(j.Taxonomy, &tax)
	}
	switch v := tax.(type) {
	case string:
		a.Taxonomy = v
		if v != "" {
			a.IsTaxonomy = true
		}
	case bool:
		if v {
			a.IsTaxonomy = true
		}
	}
	return nil
}

// TaxonomyKey returns the attribute taxonomy the attribute belongs to, or ""
// for a local attribute. A name carrying the pa_ namespace is a taxonomy
// attribute even when the payload did not flag it.
func (a Attribute) TaxonomyKey() string {
	switch {
	case a.Taxonomy != "":
		return a.Taxonomy
	case strings.HasPrefix(a.Name, AttributeTaxonomyPrefix):
		return a.Name
	case a.IsTaxonomy:
		return AttributeTaxonomyPrefix + Slugify(a.Name)
	}
	return ""
}

func decodeOptions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		var single any
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		list = []any{single}
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch x := v.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
		}
	}
	return out
}

// FirstOption returns the first option value, or "".
func (a Attribute) FirstOption() string {
	if len(a.Options) == 0 {
		return ""
	}
	return a.Options[0]
}
