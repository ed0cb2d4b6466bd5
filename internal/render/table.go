package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

const maxNameWidth = 40

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// ColorFromName maps model color name strings to lipgloss colors.
func ColorFromName(name string) lipgloss.Color {
	switch name {
	case "red":
		return lipgloss.Color("9")
	case "yellow":
		return lipgloss.Color("11")
	case "blue":
		return lipgloss.Color("12")
	case "green":
		return lipgloss.Color("10")
	case "magenta":
		return lipgloss.Color("13")
	case "gray":
		return lipgloss.Color("8")
	default:
		return lipgloss.Color("15")
	}
}

func stockColor(s model.StockStatus) string {
	switch s {
	case model.StockInStock:
		return "green"
	case model.StockOnBackorder:
		return "yellow"
	case model.StockOutOfStock:
		return "red"
	}
	return "gray"
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When colors are enabled the message is rendered in dim gray and the hint is italic.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	if !ColorsEnabled() {
		if quiet || hint == "" {
			return message
		}
		return message + "\n" + hint
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	result := dimStyle.Render(message)
	if !quiet && hint != "" {
		result += "\n" + hintStyle.Render(hint)
	}
	return result
}

const emptyCatalogHint = "Import one with: porter import run <file>"

// FormatID renders a product id for display.
func FormatID(id int64) string {
	return fmt.Sprintf("#%d", id)
}

// displayPrice is the active price, else the regular price.
func displayPrice(p *model.Product) string {
	if p.Price != "" {
		return string(p.Price)
	}
	return string(p.RegularPrice)
}

func stockLabel(p *model.Product) string {
	if !p.EffectiveType().HasStock() {
		return "-"
	}
	label := string(p.StockStatus)
	if p.ManageStock && p.StockQuantity.Valid {
		label = fmt.Sprintf("%s (%d)", label, p.StockQuantity.Int)
	}
	return label
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RenderTable renders products as a formatted table. If treeMode is true,
// variations are nested under their parents instead.
func RenderTable(products []*model.Product, treeMode bool) string {
	if len(products) == 0 {
		return EmptyState("No products found.", emptyCatalogHint, false)
	}

	if treeMode {
		return RenderTreeList(products)
	}

	if !ColorsEnabled() {
		return renderPlainTable(products)
	}

	headers := []string{"ID", "SKU", "Name", "Type", "Status", "Price", "Stock", "Updated"}

	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, productToRow(p))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if row < 0 || row >= len(products) {
				return s
			}

			p := products[row]
			switch col {
			case 2: // Name
				return s.Bold(true)
			case 3: // Type
				return s.Foreground(ColorFromName(p.EffectiveType().Color()))
			case 4: // Status
				return s.Foreground(ColorFromName(p.Status.Color()))
			case 6: // Stock
				return s.Foreground(ColorFromName(stockColor(p.StockStatus)))
			default:
				return s
			}
		})

	return t.Render()
}

func productToRow(p *model.Product) []string {
	return []string{
		FormatID(p.ID),
		orDash(p.SKU),
		truncate(p.Name, maxNameWidth),
		string(p.EffectiveType()),
		string(p.Status),
		orDash(displayPrice(p)),
		stockLabel(p),
		humanize.Time(p.UpdatedAt),
	}
}

func renderPlainTable(products []*model.Product) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-8s %-16s %-40s %-10s %-8s %-10s %-18s %s\n",
		"ID", "SKU", "Name", "Type", "Status", "Price", "Stock", "Updated")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 124))

	for _, p := range products {
		row := productToRow(p)
		fmt.Fprintf(&b, "%-8s %-16s %-40s %-10s %-8s %-10s %-18s %s\n",
			row[0], row[1], row[2], row[3], row[4], row[5], row[6], row[7])
	}

	return b.String()
}

// splitFamilies groups variations under their parents. Variations whose
// parent is not in the list are shown as roots.
func splitFamilies(products []*model.Product) ([]*model.Product, map[int64][]*model.Product) {
	present := make(map[int64]bool, len(products))
	for _, p := range products {
		present[p.ID] = true
	}
	children := make(map[int64][]*model.Product)
	var roots []*model.Product
	for _, p := range products {
		if p.ParentID > 0 && present[p.ParentID] {
			children[p.ParentID] = append(children[p.ParentID], p)
			continue
		}
		roots = append(roots, p)
	}
	return roots, children
}

// RenderTreeList renders products as a hierarchy with variations under
// their parent.
func RenderTreeList(products []*model.Product) string {
	if len(products) == 0 {
		return EmptyState("No products found.", emptyCatalogHint, false)
	}

	roots, children := splitFamilies(products)

	if !ColorsEnabled() {
		var b strings.Builder
		for _, root := range roots {
			renderPlainTreeNode(&b, root, children, 0)
		}
		return b.String()
	}

	t := tree.New().Root("Catalog")
	for _, root := range roots {
		node := tree.Root(formatTreeNode(root))
		for _, child := range children[root.ID] {
			node.Child(formatTreeNode(child))
		}
		t.Child(node)
	}
	return t.String()
}

func formatTreeNode(p *model.Product) string {
	label := fmt.Sprintf("%s %s %s", FormatID(p.ID), orDash(p.SKU), truncate(p.Name, maxNameWidth))
	if !ColorsEnabled() {
		return fmt.Sprintf("%s %s %s", label, p.EffectiveType(), orDash(displayPrice(p)))
	}
	typeStyle := lipgloss.NewStyle().Foreground(ColorFromName(p.EffectiveType().Color()))
	priceStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	return fmt.Sprintf("%s %s %s",
		lipgloss.NewStyle().Bold(true).Render(label),
		typeStyle.Render(string(p.EffectiveType())),
		priceStyle.Render(orDash(displayPrice(p))),
	)
}

func renderPlainTreeNode(b *strings.Builder, p *model.Product, children map[int64][]*model.Product, depth int) {
	fmt.Fprintf(b, "%s%s\n", strings.Repeat("  ", depth), formatTreeNode(p))
	for _, child := range children[p.ID] {
		renderPlainTreeNode(b, child, children, depth+1)
	}
}
