package model

// FormatVersion is the version string written into every export document.
const FormatVersion = "1.0.0"

// ExportDocument is the top-level structure of products.json.
type ExportDocument struct {
	Version    string           `json:"version"`
	ExportDate string           `json:"export_date"`
	SiteURL    string           `json:"site_url"`
	Products   []*CatalogRecord `json:"products"`
}

// ExportOptions selects which parts of a record the serializer includes.
// The zero value includes nothing; use DefaultExportOptions.
type ExportOptions struct {
	IncludeImages     bool `json:"include_images"`
	IncludeVariations bool `json:"include_variations"`
	IncludeAttributes bool `json:"include_attributes"`
	IncludeMeta       bool `json:"include_meta"`
}

// DefaultExportOptions returns options with every section included.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludeImages:     true,
		IncludeVariations: true,
		IncludeAttributes: true,
		IncludeMeta:       true,
	}
}

// ExportOptionsFrom reads export options from a loosely typed payload.
// Absent keys keep their default of true; present keys are normalized with
// Truthy.
func ExportOptionsFrom(raw map[string]any) ExportOptions {
	opts := DefaultExportOptions()
	set := func(key string, dst *bool) {
		if v, ok := raw[key]; ok {
			*dst = Truthy(v)
		}
	}
	set("include_images", &opts.IncludeImages)
	set("include_variations", &opts.IncludeVariations)
	set("include_attributes", &opts.IncludeAttributes)
	set("include_meta", &opts.IncludeMeta)
	return opts
}

// ImportOptions controls how the reconciliation engine treats incoming records.
type ImportOptions struct {
	UpdateExisting bool `json:"update_existing"`
	SkipImages     bool `json:"skip_images"`
	PreserveIDs    bool `json:"preserve_ids"`
	DedupeImages   bool `json:"dedupe_images"`
}

// DefaultImportOptions returns the import defaults: create-only, images on,
// image deduplication on.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{DedupeImages: true}
}

// ImportOptionsFrom reads import options from a loosely typed payload.
func ImportOptionsFrom(raw map[string]any) ImportOptions {
	opts := DefaultImportOptions()
	set := func(key string, dst *bool) {
		if v, ok := raw[key]; ok {
			*dst = Truthy(v)
		}
	}
	set("update_existing", &opts.UpdateExisting)
	set("skip_images", &opts.SkipImages)
	set("preserve_ids", &opts.PreserveIDs)
	set("dedupe_images", &opts.DedupeImages)
	return opts
}
