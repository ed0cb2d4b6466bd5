package render

import (
	"fmt"
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Detail is everything the product view shows.
type Detail struct {
	Product *model.Product
	// Terms maps a taxonomy to the names of the product's terms in it.
	Terms      map[string][]string
	Variations []*model.Product
	Activity   []model.Activity
}

var taxonomyLabels = map[string]string{
	model.TaxonomyCategory:      "Categories",
	model.TaxonomyTag:           "Tags",
	model.TaxonomyShippingClass: "Shipping class",
}

func taxonomyLabel(tax string) string {
	if l, ok := taxonomyLabels[tax]; ok {
		return l
	}
	return model.AttributeLabel(tax)
}

// sortedTaxonomies lists the well-known taxonomies first, then attribute
// taxonomies by key.
func sortedTaxonomies(terms map[string][]string) []string {
	var known, attrs []string
	for _, tax := range []string{model.TaxonomyCategory, model.TaxonomyTag, model.TaxonomyShippingClass} {
		if len(terms[tax]) > 0 {
			known = append(known, tax)
		}
	}
	for tax, names := range terms {
		if _, ok := taxonomyLabels[tax]; !ok && len(names) > 0 {
			attrs = append(attrs, tax)
		}
	}
	sort.Strings(attrs)
	return append(known, attrs...)
}

// metadataLines are the label/value pairs of the metadata block.
func metadataLines(p *model.Product) [][2]string {
	lines := [][2]string{
		{"Type", string(p.EffectiveType())},
		{"Status", string(p.Status)},
		{"SKU", orDash(p.SKU)},
		{"Price", orDash(displayPrice(p))},
	}
	if p.SalePrice != "" {
		sale := string(p.SalePrice)
		if p.SaleFrom != "" || p.SaleTo != "" {
			sale = fmt.Sprintf("%s (%s to %s)", sale, orDash(p.SaleFrom), orDash(p.SaleTo))
		}
		lines = append(lines, [2]string{"Sale", sale})
	}
	if p.EffectiveType().HasStock() {
		lines = append(lines, [2]string{"Stock", stockLabel(p)})
	}
	if dims := dimensions(p); dims != "" {
		lines = append(lines, [2]string{"Dimensions", dims})
	}
	if p.ParentID > 0 {
		lines = append(lines, [2]string{"Parent", FormatID(p.ParentID)})
	}
	lines = append(lines,
		[2]string{"Created", humanize.Time(p.CreatedAt)},
		[2]string{"Updated", humanize.Time(p.UpdatedAt)},
	)
	return lines
}

func dimensions(p *model.Product) string {
	var parts []string
	if p.Length != "" || p.Width != "" || p.Height != "" {
		parts = append(parts, fmt.Sprintf("%s x %s x %s", orDash(string(p.Length)), orDash(string(p.Width)), orDash(string(p.Height))))
	}
	if p.Weight != "" {
		parts = append(parts, "weight "+string(p.Weight))
	}
	return strings.Join(parts, ", ")
}

func activityLine(a model.Activity) string {
	who := a.Operator
	if who == "" {
		who = "system"
	}
	line := fmt.Sprintf("%s by %s", a.Action, who)
	if a.Detail != "" {
		line += " (" + a.Detail + ")"
	}
	return line
}

// RenderDetail renders a full product view: metadata, terms, description,
// variations and recent activity.
func RenderDetail(d Detail) string {
	if !ColorsEnabled() {
		return renderPlainDetail(d)
	}
	p := d.Product

	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	var sections []string

	header := fmt.Sprintf("%s  %s\n%s",
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Render(FormatID(p.ID)),
		lipgloss.NewStyle().Bold(true).Render(p.Name),
		lipgloss.NewStyle().Foreground(ColorFromName(p.Status.Color())).Bold(true).Render(string(p.Status)),
	)
	sections = append(sections, header)

	var meta []string
	for _, kv := range metadataLines(p) {
		meta = append(meta, fmt.Sprintf("%s %s", labelStyle.Render(kv[0]+":"), kv[1]))
	}
	sections = append(sections, strings.Join(meta, "\n"))

	if taxes := sortedTaxonomies(d.Terms); len(taxes) > 0 {
		var lines []string
		for _, tax := range taxes {
			lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render(taxonomyLabel(tax)+":"), strings.Join(d.Terms[tax], ", ")))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if p.Description != "" {
		rendered, err := RenderMarkdown(p.Description)
		if err != nil {
			rendered = p.Description
		}
		sections = append(sections, sectionStyle.Render("Description")+"\n"+rendered)
	}

	if len(d.Variations) > 0 {
		t := tree.New().Root(sectionStyle.Render(fmt.Sprintf("Variations (%d)", len(d.Variations))))
		for _, v := range d.Variations {
			t.Child(formatTreeNode(v))
		}
		sections = append(sections, t.String())
	}

	if len(d.Activity) > 0 {
		var lines []string
		for _, a := range d.Activity {
			lines = append(lines, fmt.Sprintf("  %s  %s", activityLine(a), dimStyle.Render(humanize.Time(a.CreatedAt))))
		}
		sections = append(sections, sectionStyle.Render("Activity")+"\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// renderPlainDetail renders a detail view without any color or styling.
func renderPlainDetail(d Detail) string {
	p := d.Product
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n%s\n\n", FormatID(p.ID), p.Name, p.Status)
	for _, kv := range metadataLines(p) {
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}

	if taxes := sortedTaxonomies(d.Terms); len(taxes) > 0 {
		b.WriteString("\n")
		for _, tax := range taxes {
			fmt.Fprintf(&b, "%s: %s\n", taxonomyLabel(tax), strings.Join(d.Terms[tax], ", "))
		}
	}

	if p.Description != "" {
		fmt.Fprintf(&b, "\nDescription\n%s\n", p.Description)
	}

	if len(d.Variations) > 0 {
		fmt.Fprintf(&b, "\nVariations (%d)\n", len(d.Variations))
		for _, v := range d.Variations {
			fmt.Fprintf(&b, "  %s\n", formatTreeNode(v))
		}
	}

	if len(d.Activity) > 0 {
		b.WriteString("\nActivity\n")
		for _, a := range d.Activity {
			fmt.Fprintf(&b, "  %s  %s\n", activityLine(a), humanize.Time(a.CreatedAt))
		}
	}

	return b.String()
}
