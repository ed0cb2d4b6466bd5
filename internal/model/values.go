package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decimal is a price or measurement kept in its textual form so values
// survive a round trip without float rounding. It decodes from JSON strings
// and numbers and always encodes as a string.
type Decimal string

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*d = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid decimal %s", data)
	}
	*d = Decimal(n.String())
	return nil
}

// IsZero reports whether no value is present.
func (d Decimal) IsZero() bool { return d == "" }

// Float returns the numeric value of d. The second result is false when d is
// empty or not a number.
func (d Decimal) Float() (float64, bool) {
	if d == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(d), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NullInt is an optional integer. JSON null, false and "" decode as absent;
// numbers and numeric strings decode as present.
type NullInt struct {
	Int   int
	Valid bool
}

// IntOf returns a present NullInt holding v.
func IntOf(v int) NullInt { return NullInt{Int: v, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = NullInt{}
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte(`""`)):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		*n = IntOf(int(f))
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*n = IntOf(int(f))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(n.Int)), nil
}

// IDList is a list of store-local identifiers. It decodes from numbers,
// numeric strings, a single scalar or null; non-numeric entries are dropped.
type IDList []int64

// UnmarshalJSON implements json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = nil
	var items []any
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		items = v
	default:
		items = []any{v}
	}
	for _, item := range items {
		if id, ok := ToID(item); ok {
			*l = append(*l, id)
		}
	}
	return nil
}

// ToID converts a JSON scalar to a positive identifier.
func ToID(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		if x > 0 {
			return int64(x), true
		}
	case json.Number:
		id, err := x.Int64()
		if err == nil && id > 0 {
			return id, true
		}
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err == nil && id > 0 {
			return id, true
		}
	case int:
		if x > 0 {
			return int64(x), true
		}
	case int64:
		if x > 0 {
			return x, true
		}
	}
	return 0, false
}

// Truthy normalizes a bool-ish option value. Booleans are taken as-is;
// "1", "true", "yes" and "on" (any case) and non-zero numbers are true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "on":
			return true
		}
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	}
	return false
}

// MetaEntry is one free-form metadata pair. Values may be any JSON value.
type MetaEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
