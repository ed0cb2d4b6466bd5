package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/ALT-F4-LLC/porter/internal/archive"
	"github.com/ALT-F4-LLC/porter/internal/exporter"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

func TestProgressBar(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		processed, total int
		want             string
	}{
		{0, 10, "[----------]   0% (0/10)"},
		{5, 10, "[#####-----]  50% (5/10)"},
		{5, 7, "[#######---]  71% (5/7)"},
		{10, 10, "[##########] 100% (10/10)"},
		{0, 0, "[##########] 100% (0/0)"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.processed, tt.total, 10); got != tt.want {
			t.Errorf("ProgressBar(%d, %d) = %q, want %q", tt.processed, tt.total, got, tt.want)
		}
	}
}

func TestProgressWritesLinesOffTerminal(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	p := NewProgress(&buf, "export")
	p.Update(5, 7)
	p.Update(7, 7)
	p.Done()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), "\r") {
		t.Error("carriage return written to a non-terminal")
	}
	if !strings.HasPrefix(lines[1], "export [") || !strings.HasSuffix(lines[1], "100% (7/7)") {
		t.Errorf("line = %q", lines[1])
	}
}

func TestRenderImportSummary(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	res := model.ImportResult{Imported: 3, Updated: 1, ImagesImported: 2, ImagesDeduplicated: 4}
	for i := range model.MaxBatchErrors + 2 {
		res.AddFailure(model.RecordFailure{Name: fmt.Sprintf("P%d", i), Reason: "bad"})
	}

	got := RenderImportSummary(res)
	for _, want := range []string{"Created:", " 3", "Updated:", "Failed:", "52", "Images reused:", "P0 (N/A): bad", "... and 2 more"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
}

func TestRenderImportSummaryWithoutErrors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if got := RenderImportSummary(model.ImportResult{Imported: 1}); strings.Contains(got, "Errors") {
		t.Errorf("unexpected errors section:\n%s", got)
	}
}

func TestRenderExportFinish(t *testing.T) {
	got := RenderExportFinish(&exporter.FinishResult{
		Filename:      "porter-export.zip",
		FileSize:      2048,
		ProductsCount: 12,
		ImagesCount:   3,
		DownloadURL:   "https://files.example.com/porter-export.zip",
	})
	for _, want := range []string{"12 products", "3 images", "porter-export.zip", "2.0 kB", "https://files.example.com/"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestRenderPreview(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderPreview(&exporter.PreviewResult{
		Total:   1200,
		Samples: []exporter.Sample{{ID: 1, Name: "Mug", SKU: "MUG", Type: "simple", Status: "publish", Price: "9.50"}},
	})
	for _, want := range []string{"1,200 products match", "#1", "MUG", "9.50", "and 1,199 more"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}

	if got := RenderPreview(&exporter.PreviewResult{}); !strings.Contains(got, "No products match") {
		t.Errorf("got %q, want empty state", got)
	}
}

func TestAnalysisMarkdown(t *testing.T) {
	got := AnalysisMarkdown(&archive.Analysis{
		FileName:          "catalog.zip",
		FileSize:          1 << 20,
		FileType:          "zip",
		EstimatedProducts: 1500,
		TotalFiles:        4,
		ImageFiles:        []string{"images/a.png", "images/b.png"},
		JSONFiles:         []string{"products.json"},
		ExportInfo:        &archive.ExportInfo{Version: "1.0.0", SiteURL: "https://shop.example.com"},
	})
	for _, want := range []string{"# catalog.zip", "1.0 MB", "1,500", "4 (2 images)", "Format version:** 1.0.0", "https://shop.example.com", "`products.json`"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
}

func TestRenderAnalysisPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	a := &archive.Analysis{FileName: "products.json", FileType: "json"}
	if got := RenderAnalysis(a); got != AnalysisMarkdown(a) {
		t.Errorf("plain rendering should be the markdown itself, got:\n%s", got)
	}
}
