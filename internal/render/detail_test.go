package render

import (
	"strings"
	"testing"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

func TestRenderPlainDetail(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	p := makeTestProduct(5, "Shirt", "SHIRT", model.TypeVariable, 0)
	p.Description = "Soft cotton."
	p.SalePrice = "8.00"
	p.SaleFrom = "2026-01-01"
	p.Weight = "0.3"
	v := makeTestProduct(6, "Shirt - S", "SHIRT-S", model.TypeVariation, 5)

	got := RenderDetail(Detail{
		Product: p,
		Terms: map[string][]string{
			"pa_size":              {"Small", "Large"},
			model.TaxonomyCategory: {"Clothing"},
		},
		Variations: []*model.Product{v},
		Activity: []model.Activity{
			{Action: model.ActionImported, Operator: "alice", Detail: "session abc", CreatedAt: time.Now()},
			{Action: model.ActionUpdated, CreatedAt: time.Now()},
		},
	})

	for _, want := range []string{
		"#5  Shirt",
		"Type: variable",
		"SKU: SHIRT",
		"Sale: 8.00 (2026-01-01 to -)",
		"Dimensions: weight 0.3",
		"Categories: Clothing",
		"Size: Small, Large",
		"Soft cotton.",
		"Variations (1)",
		"SHIRT-S",
		"imported by alice (session abc)",
		"updated by system",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
	if strings.Index(got, "Categories") > strings.Index(got, "Size:") {
		t.Errorf("categories should precede attribute taxonomies:\n%s", got)
	}
}

func TestRenderDetailOmitsStockForGrouped(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderDetail(Detail{Product: makeTestProduct(3, "Gift Box", "GIFT", model.TypeGrouped, 0)})
	if strings.Contains(got, "Stock:") {
		t.Errorf("unexpected stock line:\n%s", got)
	}
}

func TestRenderDetailColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "xterm")

	p := makeTestProduct(9, "Lamp", "LAMP", model.TypeSimple, 0)
	got := RenderDetail(Detail{Product: p})
	for _, want := range []string{"#9", "Lamp", "LAMP", "instock"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
}
