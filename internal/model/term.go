package model

import (
	"strings"
	"unicode"
)

// Term is a taxonomy node as stored by the term repository.
type Term struct {
	ID          int64
	Taxonomy    string
	Name        string
	Slug        string
	ParentID    int64
	Description string
}

// AttributeTaxonomy is a registered global attribute (for example pa_size).
type AttributeTaxonomy struct {
	ID    int64
	Name  string // taxonomy key, always pa_ prefixed
	Label string
}

// Slugify lowercases s and collapses every run of characters other than
// letters and digits into a single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// AttributeLabel returns the human label for an attribute taxonomy key,
// e.g. "pa_size" becomes "Size".
func AttributeLabel(taxonomy string) string {
	name := strings.TrimPrefix(taxonomy, AttributeTaxonomyPrefix)
	name = strings.ReplaceAll(name, "-", " ")
	if name == "" {
		return taxonomy
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
