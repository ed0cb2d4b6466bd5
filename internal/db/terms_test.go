package db

import (
	"errors"
	"testing"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

func TestCreateTermDerivesSlugAndIsIdempotent(t *testing.T) {
	conn := mustInit(t)

	id, err := CreateTerm(conn, &model.Term{Taxonomy: model.TaxonomyCategory, Name: "Winter Coats"})
	if err != nil {
		t.Fatalf("CreateTerm: %v", err)
	}

	got, err := GetTermBySlug(conn, model.TaxonomyCategory, "winter-coats")
	if err != nil {
		t.Fatalf("GetTermBySlug: %v", err)
	}
	if got.ID != id || got.Name != "Winter Coats" {
		t.Errorf("got %+v, want id %d named Winter Coats", got, id)
	}

	again, err := CreateTerm(conn, &model.Term{Taxonomy: model.TaxonomyCategory, Name: "Winter  Coats!"})
	if err != nil {
		t.Fatalf("second CreateTerm: %v", err)
	}
	if again != id {
		t.Errorf("second CreateTerm id = %d, want existing %d", again, id)
	}

	// The same slug in another taxonomy is a different term.
	other, err := CreateTerm(conn, &model.Term{Taxonomy: model.TaxonomyTag, Name: "Winter Coats"})
	if err != nil {
		t.Fatalf("CreateTerm tag: %v", err)
	}
	if other == id {
		t.Error("tag term should not share the category term id")
	}
}

func TestCreateTermRequiresNameOrSlug(t *testing.T) {
	conn := mustInit(t)

	if _, err := CreateTerm(conn, &model.Term{Taxonomy: model.TaxonomyTag}); err == nil {
		t.Error("expected error for a term without name or slug")
	}
}

func TestTermHierarchy(t *testing.T) {
	conn := mustInit(t)

	parent, _ := CreateTerm(conn, &model.Term{Taxonomy: model.TaxonomyCategory, Name: "Clothing"})
	child, err := CreateTerm(conn, &model.Term{Taxonomy: model.TaxonomyCategory, Name: "Shirts", ParentID: parent})
	if err != nil {
		t.Fatalf("CreateTerm child: %v", err)
	}

	got, err := GetTerm(conn, child)
	if err != nil {
		t.Fatalf("GetTerm: %v", err)
	}
	if got.ParentID != parent {
		t.Errorf("ParentID = %d, want %d", got.ParentID, parent)
	}
}

func TestGetTermByNameIgnoresCase(t *testing.T) {
	conn := mustInit(t)

	id, _ := CreateTerm(conn, &model.Term{Taxonomy: "pa_size", Name: "Small"})
	got, err := GetTermByName(conn, "pa_size", "small")
	if err != nil {
		t.Fatalf("GetTermByName: %v", err)
	}
	if got.ID != id {
		t.Errorf("id = %d, want %d", got.ID, id)
	}

	if _, err := GetTermByName(conn, "pa_size", "Huge"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRegisterAttributeTaxonomy(t *testing.T) {
	conn := mustInit(t)

	at, err := RegisterAttributeTaxonomy(conn, "pa_size", "")
	if err != nil {
		t.Fatalf("RegisterAttributeTaxonomy: %v", err)
	}
	if at.Name != "pa_size" || at.Label != "Size" {
		t.Errorf("got %+v, want pa_size labelled Size", at)
	}

	again, err := RegisterAttributeTaxonomy(conn, "pa_size", "Other")
	if err != nil {
		t.Fatalf("second RegisterAttributeTaxonomy: %v", err)
	}
	if again.ID != at.ID || again.Label != "Size" {
		t.Errorf("re-register = %+v, want unchanged %+v", again, at)
	}

	prefixed, err := RegisterAttributeTaxonomy(conn, "Color", "")
	if err != nil {
		t.Fatalf("RegisterAttributeTaxonomy(Color): %v", err)
	}
	if prefixed.Name != "pa_color" {
		t.Errorf("Name = %q, want pa_color", prefixed.Name)
	}

	all, err := ListAttributeTaxonomies(conn)
	if err != nil {
		t.Fatalf("ListAttributeTaxonomies: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len = %d, want 2", len(all))
	}

	if _, err := GetAttributeTaxonomy(conn, "pa_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
