package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

// ImageExtensions are the file extensions counted as images in an archive.
var ImageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// Analysis summarises an import file without importing it.
type Analysis struct {
	FileName          string      `json:"file_name"`
	FileSize          int64       `json:"file_size"`
	FileType          string      `json:"file_type"`
	ContainsJSON      bool        `json:"contains_json"`
	ContainsImages    bool        `json:"contains_images"`
	JSONFiles         []string    `json:"json_files,omitempty"`
	ImageFiles        []string    `json:"image_files,omitempty"`
	TotalFiles        int         `json:"total_files,omitempty"`
	EstimatedProducts int         `json:"estimated_products"`
	ExportInfo        *ExportInfo `json:"export_info,omitempty"`
}

// ExportInfo is the header of an export document.
type ExportInfo struct {
	Version    string `json:"version,omitempty"`
	ExportDate string `json:"export_date,omitempty"`
	SiteURL    string `json:"site_url,omitempty"`
}

// header decodes just enough of an export document to describe it. A bare
// array of records is counted as products.
type header struct {
	ExportInfo
	Products []json.RawMessage
}

func (h *header) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimLeft(string(data), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &h.Products)
	}
	var doc struct {
		Version    any               `json:"version"`
		ExportDate string            `json:"export_date"`
		SiteURL    string            `json:"site_url"`
		Products   []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Version != nil {
		h.Version = fmt.Sprint(doc.Version)
	}
	h.ExportDate = doc.ExportDate
	h.SiteURL = doc.SiteURL
	h.Products = doc.Products
	return nil
}

// Analyze inspects a .zip or .json import file.
func Analyze(filePath string) (*Analysis, error) {
	const op = "analyze"
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	if ext != "zip" && ext != "json" {
		return nil, model.Ef(model.KindValidation, op, "invalid file type %q: only zip and json files are allowed", ext)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, model.E(model.KindValidation, op, err)
	}
	a := &Analysis{
		FileName: filepath.Base(filePath),
		FileSize: info.Size(),
		FileType: ext,
	}

	if ext == "zip" {
		if err := analyzeZip(filePath, a); err != nil {
			return nil, model.E(model.KindValidation, op, err)
		}
		return a, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, model.E(model.KindInfrastructure, op, err)
	}
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, model.Ef(model.KindValidation, op, "invalid JSON format: %v", err)
	}
	a.ContainsJSON = true
	a.EstimatedProducts = len(h.Products)
	if h.ExportInfo != (ExportInfo{}) {
		info := h.ExportInfo
		a.ExportInfo = &info
	}
	return a, nil
}

func analyzeZip(filePath string, a *Analysis) error {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	a.TotalFiles = len(zr.File)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), ".")); {
		case ext == "json":
			a.ContainsJSON = true
			a.JSONFiles = append(a.JSONFiles, f.Name)
			if h, err := readHeader(f); err == nil && len(h.Products) > 0 {
				a.EstimatedProducts = len(h.Products)
				if h.ExportInfo != (ExportInfo{}) {
					info := h.ExportInfo
					a.ExportInfo = &info
				}
			}
		case isImageExt(ext):
			a.ContainsImages = true
			a.ImageFiles = append(a.ImageFiles, f.Name)
		}
	}
	return nil
}

func readHeader(f *zip.File) (*header, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func isImageExt(ext string) bool {
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
