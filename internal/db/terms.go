package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

const termColumns = `id, taxonomy, name, slug, parent_id, description`

// GetTerm retrieves a term by ID.
func GetTerm(db *sql.DB, id int64) (*model.Term, error) {
	return scanTerm(db.QueryRow(`SELECT `+termColumns+` FROM terms WHERE id = ?`, id))
}

// GetTermBySlug retrieves a term by its slug within a taxonomy.
func GetTermBySlug(db *sql.DB, taxonomy, slug string) (*model.Term, error) {
	return scanTerm(db.QueryRow(
		`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? AND slug = ?`,
		taxonomy, slug,
	))
}

// GetTermByName retrieves a term by name within a taxonomy, ignoring case.
func GetTermByName(db *sql.DB, taxonomy, name string) (*model.Term, error) {
	return scanTerm(db.QueryRow(
		`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? AND name = ? COLLATE NOCASE ORDER BY id LIMIT 1`,
		taxonomy, strings.TrimSpace(name),
	))
}

// ListTerms returns every term of a taxonomy ordered by name.
func ListTerms(db *sql.DB, taxonomy string) ([]*model.Term, error) {
	rows, err := db.Query(`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? ORDER BY name`, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer rows.Close()

	var terms []*model.Term
	for rows.Next() {
		t, err := scanTermFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating term rows: %w", err)
	}
	return terms, nil
}

// CreateTerm inserts a term and returns its ID. An empty slug is derived
// from the name. If a term with the same slug already exists in the taxonomy
// its ID is returned instead.
func CreateTerm(db *sql.DB, t *model.Term) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := findOrCreateTerm(tx, t)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	t.ID = id
	return id, nil
}

// findOrCreateTerm looks up a term by taxonomy and slug, creating it if it
// doesn't exist, and returns the term ID.
func findOrCreateTerm(tx *sql.Tx, t *model.Term) (int64, error) {
	if strings.TrimSpace(t.Name) == "" && strings.TrimSpace(t.Slug) == "" {
		return 0, fmt.Errorf("term in %s: missing name and slug", t.Taxonomy)
	}
	if t.Slug == "" {
		t.Slug = model.Slugify(t.Name)
	}
	if t.Name == "" {
		t.Name = t.Slug
	}

	var id int64
	err := tx.QueryRow(`SELECT id FROM terms WHERE taxonomy = ? AND slug = ?`, t.Taxonomy, t.Slug).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("querying term: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO terms (taxonomy, name, slug, parent_id, description) VALUES (?, ?, ?, ?, ?)`,
		t.Taxonomy, t.Name, t.Slug, t.ParentID, t.Description,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting term: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting term id: %w", err)
	}
	return id, nil
}

// GetAttributeTaxonomy retrieves a registered attribute taxonomy by its
// pa_-prefixed name.
func GetAttributeTaxonomy(db *sql.DB, name string) (*model.AttributeTaxonomy, error) {
	var at model.AttributeTaxonomy
	err := db.QueryRow(
		`SELECT id, name, label FROM attribute_taxonomies WHERE name = ?`, name,
	).Scan(&at.ID, &at.Name, &at.Label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying attribute taxonomy: %w", err)
	}
	return &at, nil
}

// RegisterAttributeTaxonomy registers an attribute taxonomy if it is not
// already known and returns it. An empty label is derived from the name.
func RegisterAttributeTaxonomy(db *sql.DB, name, label string) (*model.AttributeTaxonomy, error) {
	if !strings.HasPrefix(name, model.AttributeTaxonomyPrefix) {
		name = model.AttributeTaxonomyPrefix + model.Slugify(name)
	}
	if label == "" {
		label = model.AttributeLabel(name)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO attribute_taxonomies (name, label) VALUES (?, ?)`,
		name, label,
	); err != nil {
		return nil, fmt.Errorf("registering attribute taxonomy %q: %w", name, err)
	}
	return GetAttributeTaxonomy(db, name)
}

// ListAttributeTaxonomies returns every registered attribute taxonomy.
func ListAttributeTaxonomies(db *sql.DB) ([]*model.AttributeTaxonomy, error) {
	rows, err := db.Query(`SELECT id, name, label FROM attribute_taxonomies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying attribute taxonomies: %w", err)
	}
	defer rows.Close()

	var out []*model.AttributeTaxonomy
	for rows.Next() {
		var at model.AttributeTaxonomy
		if err := rows.Scan(&at.ID, &at.Name, &at.Label); err != nil {
			return nil, fmt.Errorf("scanning attribute taxonomy: %w", err)
		}
		out = append(out, &at)
	}
	return out, rows.Err()
}

func scanTermFrom(s scanner) (*model.Term, error) {
	var t model.Term
	if err := s.Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &t.ParentID, &t.Description); err != nil {
		return nil, err
	}
	return &t, nil
}

// scanTerm scans a single term from a *sql.Row, returning ErrNotFound for
// sql.ErrNoRows.
func scanTerm(row *sql.Row) (*model.Term, error) {
	t, err := scanTermFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning term: %w", err)
	}
	return t, nil
}
