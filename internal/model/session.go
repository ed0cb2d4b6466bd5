package model

import "time"

// Session kinds as used for keying the session store.
const (
	SessionExport = "export"
	SessionImport = "import"
)

// ExportBatchSize is the fixed number of records appended per export batch.
const ExportBatchSize = 5

// DefaultImportBatchSize is used when an import batch request names no size.
const DefaultImportBatchSize = 5

// MaxImportBatchSize bounds the batch size accepted from callers.
const MaxImportBatchSize = 100

// ExportSession is the transient state of one export in progress.
type ExportSession struct {
	Token          string         `json:"token"`
	Operator       string         `json:"operator"`
	Filename       string         `json:"filename"`
	FilePath       string         `json:"file_path"`
	IDs            []int64        `json:"ids"`
	Filters        map[string]any `json:"filters"`
	Options        ExportOptions  `json:"options"`
	Total          int            `json:"total"`
	BatchSize      int            `json:"batch_size"`
	Processed      int            `json:"processed"`
	RecordsWritten int            `json:"records_written"`
	LastPage       int            `json:"last_page"`
	Closed         bool           `json:"closed,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// ImportSession is the transient state of one import in progress.
type ImportSession struct {
	Token       string       `json:"token"`
	Operator    string       `json:"operator"`
	DataPath    string       `json:"data_path"`
	MediaDir    string       `json:"media_dir,omitempty"`
	ExtractRoot string       `json:"extract_root,omitempty"`
	WorkDir     string       `json:"work_dir,omitempty"`
	Total       int          `json:"total"`
	BatchSize   int          `json:"batch_size"`
	Processed   int          `json:"processed"`
	IsArchive   bool         `json:"is_archive"`
	Version     string       `json:"version"`
	ExportDate  string       `json:"export_date"`
	Result      ImportResult `json:"result"`
	// MediaIDs maps content hashes resolved by earlier batches to media ids.
	MediaIDs  map[string]int64 `json:"media_ids,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Paths returns every filesystem path owned by the session, for cleanup.
func (s *ImportSession) Paths() []string {
	var paths []string
	for _, p := range []string{s.DataPath, s.ExtractRoot, s.WorkDir} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Progress reports the integer percentage of processed over total, capped at 100.
func Progress(processed, total int) int {
	if total <= 0 {
		return 100
	}
	pct := (processed*100 + total/2) / total
	if pct > 100 {
		return 100
	}
	return pct
}
