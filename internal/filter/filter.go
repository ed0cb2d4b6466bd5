package filter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Payload keys understood by Build.
const (
	KeyStatus          = "product_status"
	KeyTypes           = "product_types"
	KeyStockStatus     = "stock_status"
	KeyCategories      = "product_categories"
	KeyTags            = "product_tags"
	KeyShippingClasses = "shipping_classes"
	KeyDateFrom        = "date_from"
	KeyDateTo          = "date_to"
)

// Query is the structured form of an export filter payload. Empty sets
// impose no constraint.
type Query struct {
	Statuses      []model.Status
	Types         []model.RecordType
	StockStatuses []model.StockStatus

	// MatchUntyped is set when simple products are selected: records with
	// no stored type tag, or an empty one, are simple.
	MatchUntyped bool

	// Term references within one taxonomy are OR'd; taxonomies are AND'd.
	// Each reference is a numeric term id or a slug.
	Categories      []string
	Tags            []string
	ShippingClasses []string

	// DateFrom and DateTo bound the creation time, both inclusive.
	DateFrom *time.Time
	DateTo   *time.Time
}

// Build translates a loosely typed filter payload into a Query. Every
// multi-value field accepts an array, a single (optionally comma-separated)
// string, a number, or nothing. Unknown keys and malformed values are
// ignored.
func Build(payload map[string]any) Query {
	var q Query

	for _, s := range StringList(payload[KeyStatus]) {
		st := model.Status(strings.ToLower(s))
		if model.ValidateStatus(st) == nil {
			q.Statuses = appendUnique(q.Statuses, st)
		}
	}
	if len(q.Statuses) == 0 {
		q.Statuses = []model.Status{model.StatusPublish}
	}

	for _, s := range StringList(payload[KeyTypes]) {
		q.Types = appendUnique(q.Types, model.RecordType(strings.ToLower(s)))
	}
	if coversAll(q.Types, model.TopLevelTypes) {
		q.Types = nil
	}
	for _, t := range q.Types {
		if t == model.TypeSimple {
			q.MatchUntyped = true
		}
	}

	for _, s := range StringList(payload[KeyStockStatus]) {
		q.StockStatuses = appendUnique(q.StockStatuses, model.StockStatus(strings.ToLower(s)))
	}
	if coversAll(q.StockStatuses, model.StockStatuses) {
		q.StockStatuses = nil
	}

	q.Categories = StringList(payload[KeyCategories])
	q.Tags = StringList(payload[KeyTags])
	q.ShippingClasses = StringList(payload[KeyShippingClasses])

	if s, ok := payload[KeyDateFrom].(string); ok {
		if t, _, ok := parseDate(s); ok {
			q.DateFrom = &t
		}
	}
	if s, ok := payload[KeyDateTo].(string); ok {
		if t, dateOnly, ok := parseDate(s); ok {
			if dateOnly {
				t = t.Add(24*time.Hour - time.Second)
			}
			q.DateTo = &t
		}
	}

	return q
}

// IsEmpty reports whether the query constrains nothing beyond status.
func (q Query) IsEmpty() bool {
	return len(q.Types) == 0 && len(q.StockStatuses) == 0 &&
		len(q.Categories) == 0 && len(q.Tags) == 0 && len(q.ShippingClasses) == 0 &&
		q.DateFrom == nil && q.DateTo == nil
}

// StringList normalizes a loosely typed multi-value field into a list of
// non-empty trimmed strings.
func StringList(v any) []string {
	var out []string
	add := func(s string) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	switch x := v.(type) {
	case nil:
	case string:
		add(x)
	case []string:
		for _, s := range x {
			add(s)
		}
	case []any:
		for _, item := range x {
			out = append(out, StringList(item)...)
		}
	case float64:
		out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
	case int:
		out = append(out, strconv.Itoa(x))
	case int64:
		out = append(out, strconv.FormatInt(x, 10))
	case json.Number:
		out = append(out, x.String())
	}
	return out
}

// ToStringSet converts a slice of strings to a set for O(1) membership checks.
func ToStringSet(ss []string) map[string]struct{} {
	if len(ss) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}

var dateLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.RFC3339, false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02", true},
}

func parseDate(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return t.UTC(), l.dateOnly, true
		}
	}
	return time.Time{}, false, false
}

func appendUnique[T comparable](list []T, v T) []T {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// coversAll reports whether set contains every member of universe.
func coversAll[T comparable](set, universe []T) bool {
	if len(set) < len(universe) {
		return false
	}
	for _, u := range universe {
		found := false
		for _, s := range set {
			if s == u {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
