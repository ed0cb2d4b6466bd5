package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ALT-F4-LLC/porter/internal/archive"
	"github.com/ALT-F4-LLC/porter/internal/exporter"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

const (
	defaultBarWidth  = 30
	defaultTermWidth = 100
)

// ProgressBar renders "[#####-----]  50% (5/10)" for processed over total.
func ProgressBar(processed, total, width int) string {
	if width <= 0 {
		width = defaultBarWidth
	}
	pct := model.Progress(processed, total)
	filled := pct * width / 100

	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	if ColorsEnabled() {
		bar = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(strings.Repeat("█", filled)) +
			lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(strings.Repeat("░", width-filled))
	}
	return fmt.Sprintf("[%s] %3d%% (%d/%d)", bar, pct, processed, total)
}

// Progress writes a progress line that redraws in place on a terminal and
// prints one line per update elsewhere.
type Progress struct {
	w     io.Writer
	label string
	tty   bool
	width int
	drawn bool
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer, label string) *Progress {
	p := &Progress{w: w, label: label, width: defaultTermWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			p.width = width
		}
	}
	return p
}

// Update draws processed over total. A nil Progress draws nothing.
func (p *Progress) Update(processed, total int) {
	if p == nil {
		return
	}
	barWidth := p.width - len(p.label) - 20
	if barWidth > defaultBarWidth {
		barWidth = defaultBarWidth
	}
	if barWidth < 10 {
		barWidth = 10
	}
	line := p.label + " " + ProgressBar(processed, total, barWidth)
	if p.tty {
		fmt.Fprintf(p.w, "\r\033[K%s", line)
		p.drawn = true
		return
	}
	fmt.Fprintln(p.w, line)
}

// Done ends an in-place line.
func (p *Progress) Done() {
	if p != nil && p.tty && p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

// RenderImportSummary renders the counts of an import and its itemized
// failures.
func RenderImportSummary(res model.ImportResult) string {
	var b strings.Builder
	rows := [][2]string{
		{"Created", fmt.Sprint(res.Imported)},
		{"Updated", fmt.Sprint(res.Updated)},
		{"Failed", fmt.Sprint(res.Failed)},
		{"Images imported", fmt.Sprint(res.ImagesImported)},
		{"Images reused", fmt.Sprint(res.ImagesDeduplicated)},
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", StyledText(fmt.Sprintf("%-16s", r[0]+":"), labelStyle), r[1])
	}
	if len(res.Errors) > 0 {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		b.WriteString("\n" + StyledText("Errors", lipgloss.NewStyle().Bold(true)) + "\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  %s %s\n", StyledText("✘", errStyle), e)
		}
		if hidden := res.Failed - len(res.Errors); hidden > 0 {
			fmt.Fprintf(&b, "  %s\n", StyledText(fmt.Sprintf("... and %d more", hidden), labelStyle))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderExportFinish describes a finished export archive.
func RenderExportFinish(f *exporter.FinishResult) string {
	return fmt.Sprintf("Exported %d products and %d images to %s (%s)\n%s",
		f.ProductsCount, f.ImagesCount, f.Filename, humanize.Bytes(uint64(f.FileSize)), f.DownloadURL)
}

// RenderPreview renders the match count of an export and its samples.
func RenderPreview(p *exporter.PreviewResult) string {
	if p.Total == 0 {
		return EmptyState("No products match these filters.", "", false)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s products match\n\n", humanize.Comma(int64(p.Total)))
	for _, s := range p.Samples {
		fmt.Fprintf(&b, "  %-8s %-16s %-40s %-10s %-8s %s\n",
			FormatID(s.ID), orDash(s.SKU), truncate(s.Name, maxNameWidth), s.Type, s.Status, orDash(string(s.Price)))
	}
	if more := p.Total - len(p.Samples); more > 0 {
		fmt.Fprintf(&b, "  ... and %s more\n", humanize.Comma(int64(more)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// AnalysisMarkdown describes an import file as markdown.
func AnalysisMarkdown(a *archive.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.FileName)
	fmt.Fprintf(&b, "- **Type:** %s\n", a.FileType)
	fmt.Fprintf(&b, "- **Size:** %s\n", humanize.Bytes(uint64(a.FileSize)))
	fmt.Fprintf(&b, "- **Products:** %s\n", humanize.Comma(int64(a.EstimatedProducts)))
	if a.TotalFiles > 0 {
		fmt.Fprintf(&b, "- **Files:** %d (%d images)\n", a.TotalFiles, len(a.ImageFiles))
	}
	if info := a.ExportInfo; info != nil {
		b.WriteString("\n## Export\n\n")
		if info.Version != "" {
			fmt.Fprintf(&b, "- **Format version:** %s\n", info.Version)
		}
		if info.ExportDate != "" {
			fmt.Fprintf(&b, "- **Exported:** %s\n", info.ExportDate)
		}
		if info.SiteURL != "" {
			fmt.Fprintf(&b, "- **Source:** %s\n", info.SiteURL)
		}
	}
	if len(a.JSONFiles) > 0 {
		b.WriteString("\n## Data files\n\n")
		for _, f := range a.JSONFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}

// RenderAnalysis renders AnalysisMarkdown for the terminal.
func RenderAnalysis(a *archive.Analysis) string {
	md := AnalysisMarkdown(a)
	out, err := RenderMarkdown(md)
	if err != nil {
		return md
	}
	return out
}
