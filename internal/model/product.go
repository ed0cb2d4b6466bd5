package model

import (
	"fmt"
	"time"
)

// RecordType is the type tag of a catalog record.
type RecordType string

const (
	TypeSimple    RecordType = "simple"
	TypeVariable  RecordType = "variable"
	TypeGrouped   RecordType = "grouped"
	TypeExternal  RecordType = "external"
	TypeVariation RecordType = "variation"
)

var validRecordTypes = []RecordType{
	TypeSimple,
	TypeVariable,
	TypeGrouped,
	TypeExternal,
	TypeVariation,
}

// TopLevelTypes is the universe of types a product listing can be filtered by.
// Variations are never listed on their own.
var TopLevelTypes = []RecordType{
	TypeSimple,
	TypeVariable,
	TypeGrouped,
	TypeExternal,
}

// ValidateRecordType returns an error if t is not a recognized record type.
func ValidateRecordType(t RecordType) error {
	for _, v := range validRecordTypes {
		if t == v {
			return nil
		}
	}
	return fmt.Errorf("invalid record type %q: must be one of %v", t, validRecordTypes)
}

// Normalize maps an absent or unrecognized type tag to TypeSimple.
func (t RecordType) Normalize() RecordType {
	if ValidateRecordType(t) != nil {
		return TypeSimple
	}
	return t
}

// HasStock reports whether inventory fields are meaningful for the type.
func (t RecordType) HasStock() bool {
	switch t.Normalize() {
	case TypeGrouped, TypeExternal:
		return false
	default:
		return true
	}
}

// HasChildren reports whether records of this type own variations.
func (t RecordType) HasChildren() bool {
	return t == TypeVariable
}

// Color returns a color name string suitable for terminal rendering.
func (t RecordType) Color() string {
	switch t.Normalize() {
	case TypeVariable:
		return "magenta"
	case TypeGrouped:
		return "blue"
	case TypeExternal:
		return "yellow"
	case TypeVariation:
		return "gray"
	default:
		return "white"
	}
}

// Status is the lifecycle status of a catalog record.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPrivate Status = "private"
	StatusPublish Status = "publish"
	StatusTrash   Status = "trash"
)

var validStatuses = []Status{
	StatusDraft,
	StatusPending,
	StatusPrivate,
	StatusPublish,
	StatusTrash,
}

// ValidateStatus returns an error if s is not a recognized status.
func ValidateStatus(s Status) error {
	for _, v := range validStatuses {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("invalid status %q: must be one of %v", s, validStatuses)
}

// Color returns a color name string suitable for terminal rendering.
func (s Status) Color() string {
	switch s {
	case StatusPublish:
		return "green"
	case StatusDraft, StatusPending:
		return "yellow"
	case StatusPrivate:
		return "blue"
	case StatusTrash:
		return "red"
	default:
		return "white"
	}
}

// StockStatus is the availability state of a record.
type StockStatus string

const (
	StockInStock     StockStatus = "instock"
	StockOutOfStock  StockStatus = "outofstock"
	StockOnBackorder StockStatus = "onbackorder"
)

// StockStatuses is the universe of stock statuses.
var StockStatuses = []StockStatus{
	StockInStock,
	StockOutOfStock,
	StockOnBackorder,
}

// ValidateStockStatus returns an error if s is not a recognized stock status.
func ValidateStockStatus(s StockStatus) error {
	for _, v := range StockStatuses {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("invalid stock status %q: must be one of %v", s, StockStatuses)
}

// Well-known taxonomies.
const (
	TaxonomyCategory      = "product_cat"
	TaxonomyTag           = "product_tag"
	TaxonomyShippingClass = "product_shipping_class"

	// AttributeTaxonomyPrefix namespaces global attribute taxonomies.
	AttributeTaxonomyPrefix = "pa_"
)

// ProductAttribute is an attribute as stored on a product. For taxonomy
// attributes the option values live in the product's term set for Name and
// Options is empty; local attributes carry literal Options. Variations store
// a single selected value (a term slug or a literal) in Options[0].
type ProductAttribute struct {
	Name       string
	IsTaxonomy bool
	Options    []string
	Position   int
	Visible    bool
	Variation  bool
}

// Product is the store-side catalog record as held by the catalog repository.
type Product struct {
	ID                int64
	ParentID          int64
	Type              RecordType // empty when no type tag is stored
	Name              string
	Slug              string
	Status            Status
	Featured          bool
	CatalogVisibility string
	Description       string
	ShortDescription  string
	SKU               string
	Price             Decimal
	RegularPrice      Decimal
	SalePrice         Decimal
	SaleFrom          string
	SaleTo            string
	TaxStatus         string
	TaxClass          string
	ManageStock       bool
	StockQuantity     NullInt
	StockStatus       StockStatus
	Backorders        string
	LowStockAmount    NullInt
	SoldIndividually  bool
	Weight            Decimal
	Length            Decimal
	Width             Decimal
	Height            Decimal
	UpsellIDs         []int64
	CrossSellIDs      []int64
	ShippingClassID   int64
	ImageID           int64
	GalleryIDs        []int64
	Virtual           bool
	Downloadable      bool
	ReviewsAllowed    bool
	PurchaseNote      string
	MenuOrder         int
	TotalSales        int
	DefaultAttributes map[string]string
	Attributes        []ProductAttribute
	Meta              []MetaEntry
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// TermIDs holds every taxonomy term assigned to the product, keyed by
	// taxonomy (product_cat, product_tag, pa_size, ...).
	TermIDs map[string][]int64
}

// NewProduct is the record factory: it returns an empty product of the
// concrete subtype named by t, with that subtype's defaults applied.
// Unrecognized or empty tags produce a simple product.
func NewProduct(t RecordType) *Product {
	p := &Product{
		Type:              t.Normalize(),
		Status:            StatusPublish,
		CatalogVisibility: "visible",
		TaxStatus:         "taxable",
		StockStatus:       StockInStock,
		Backorders:        "no",
		ReviewsAllowed:    true,
		TermIDs:           make(map[string][]int64),
	}
	switch p.Type {
	case TypeVariation:
		p.CatalogVisibility = ""
		p.ReviewsAllowed = false
	case TypeGrouped, TypeExternal:
		p.StockStatus = ""
		p.Backorders = ""
	}
	return p
}

// EffectiveType returns the type tag with the untyped fallback applied.
func (p *Product) EffectiveType() RecordType {
	return p.Type.Normalize()
}

// Terms returns the term IDs assigned in the given taxonomy.
func (p *Product) Terms(taxonomy string) []int64 {
	if p.TermIDs == nil {
		return nil
	}
	return p.TermIDs[taxonomy]
}

// SetTerms replaces the term IDs assigned in the given taxonomy.
func (p *Product) SetTerms(taxonomy string, ids []int64) {
	if p.TermIDs == nil {
		p.TermIDs = make(map[string][]int64)
	}
	if len(ids) == 0 {
		delete(p.TermIDs, taxonomy)
		return
	}
	p.TermIDs[taxonomy] = ids
}

// AddTerm appends a term to the taxonomy's set unless it is already present.
// It reports whether the set changed.
func (p *Product) AddTerm(taxonomy string, id int64) bool {
	for _, existing := range p.Terms(taxonomy) {
		if existing == id {
			return false
		}
	}
	p.SetTerms(taxonomy, append(p.Terms(taxonomy), id))
	return true
}

// Attribute returns the named attribute, or nil.
func (p *Product) Attribute(name string) *ProductAttribute {
	for i := range p.Attributes {
		if p.Attributes[i].Name == name {
			return &p.Attributes[i]
		}
	}
	return nil
}
