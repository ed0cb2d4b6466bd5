package model

import "fmt"

// MaxBatchErrors bounds the itemized error strings reported per batch.
const MaxBatchErrors = 50

// RecordFailure identifies one record that could not be exported or imported.
type RecordFailure struct {
	Name   string `json:"name"`
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

// String renders the failure as "<name> (<sku>): <reason>".
func (f RecordFailure) String() string {
	sku := f.SKU
	if sku == "" {
		sku = "N/A"
	}
	return fmt.Sprintf("%s (%s): %s", f.Name, sku, f.Reason)
}

// ImportResult accumulates import outcomes across batches.
type ImportResult struct {
	Imported           int      `json:"imported"`
	Updated            int      `json:"updated"`
	Failed             int      `json:"failed"`
	ImagesImported     int      `json:"images_imported"`
	ImagesDeduplicated int      `json:"images_deduplicated"`
	Errors             []string `json:"errors"`
}

// AddFailure counts a failed record and itemizes it while under the bound.
func (r *ImportResult) AddFailure(f RecordFailure) {
	r.Failed++
	if len(r.Errors) < MaxBatchErrors {
		r.Errors = append(r.Errors, f.String())
	}
}

// AddNotice itemizes a failure without counting a failed record, for parts
// of a record, such as one variation, that did not import while the record
// itself did.
func (r *ImportResult) AddNotice(f RecordFailure) {
	if len(r.Errors) < MaxBatchErrors {
		r.Errors = append(r.Errors, f.String())
	}
}

// Merge adds the counts of other into r. Error strings are appended up to
// the bound.
func (r *ImportResult) Merge(other ImportResult) {
	r.Imported += other.Imported
	r.Updated += other.Updated
	r.Failed += other.Failed
	r.ImagesImported += other.ImagesImported
	r.ImagesDeduplicated += other.ImagesDeduplicated
	for _, e := range other.Errors {
		if len(r.Errors) >= MaxBatchErrors {
			break
		}
		r.Errors = append(r.Errors, e)
	}
}

// Processed returns the number of records the result accounts for.
func (r *ImportResult) Processed() int {
	return r.Imported + r.Updated + r.Failed
}
