package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tier is one of the two mutually exclusive data-shape conventions a banner
// template can follow. It decides which column gates a data row and which
// field policies apply during substitution.
type Tier string

const (
	TierT1 Tier = "T1"
	TierT2 Tier = "T2"
)

// TierPath is the Dynamic.js variable that always receives the tier code.
const TierPath = "devDynamicContent.parent[0].TIER"

// ParseTier accepts "T1"/"T2" in any case.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierT1:
		return TierT1, nil
	case TierT2:
		return TierT2, nil
	default:
		return "", fmt.Errorf("invalid tier %q (want T1 or T2)", s)
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierT1 || t == TierT2
}

// Column returns the data column that must be non-empty for a row to belong
// to the tier.
func (t Tier) Column() string {
	if t == TierT2 {
		return "offerType"
	}
	return "custom_offer"
}

// MappingEntry associates a data field with a Dynamic.js variable path.
type MappingEntry struct {
	Field string `json:"field"`
	Path  string `json:"path"`
}

// ColumnMapping is the ordered list of field -> variable path pairs applied to
// every row. The JSON form is an object; key order is preserved on decode.
type ColumnMapping []MappingEntry

// unmapped is the value the mapping UI uses for "no variable selected".
const unmapped = "none"

// MappingFromMap builds a mapping from a plain map, ordering fields by name.
func MappingFromMap(m map[string]string) ColumnMapping {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	out := make(ColumnMapping, 0, len(fields))
	for _, f := range fields {
		if p := m[f]; p != "" && p != unmapped {
			out = append(out, MappingEntry{Field: f, Path: p})
		}
	}
	return out
}

// Lookup returns the path mapped for field.
func (m ColumnMapping) Lookup(field string) (string, bool) {
	for _, e := range m {
		if e.Field == field {
			return e.Path, true
		}
	}
	return "", false
}

// Fields returns the mapped field names in order.
func (m ColumnMapping) Fields() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Field
	}
	return out
}

// Set replaces the path for field, appending a new entry when absent.
func (m *ColumnMapping) Set(field, path string) {
	for i, e := range *m {
		if e.Field == field {
			(*m)[i].Path = path
			return
		}
	}
	*m = append(*m, MappingEntry{Field: field, Path: path})
}

// MarshalJSON encodes the mapping as a JSON object in entry order.
func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Field)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Path)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Null, empty and
// "none" values are dropped: they mean the field is not mapped.
func (m *ColumnMapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode column mapping: %w", err)
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode column mapping: expected object, got %v", tok)
	}

	out := ColumnMapping{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode column mapping: %w", err)
		}
		field, _ := keyTok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode column mapping %q: %w", field, err)
		}
		switch p := v.(type) {
		case nil:
			continue
		case string:
			if p == "" || p == unmapped {
				continue
			}
			out.Set(field, p)
		default:
			return fmt.Errorf("decode column mapping %q: path must be a string, got %T", field, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode column mapping: %w", err)
	}
	*m = out
	return nil
}

// Warning is a non-fatal issue found while producing a variation, such as a
// mapped variable that does not exist in Dynamic.js.
type Warning struct {
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	switch {
	case w.Field != "" && w.Path != "":
		return fmt.Sprintf("%s -> %s: %s", w.Field, w.Path, w.Message)
	case w.Path != "":
		return fmt.Sprintf("%s: %s", w.Path, w.Message)
	default:
		return w.Message
	}
}

// Variation is one rendered instance of a template for one data row.
type Variation struct {
	Name     string    `json:"name"`
	BannerID string    `json:"bannerId"`
	HTMLFile string    `json:"htmlFile"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Tier     Tier      `json:"tier,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`

	// Files is the full rewritten file set, keyed by flattened file name.
	Files map[string][]byte `json:"-"`
	// Order lists Files keys in template order.
	Order []string `json:"-"`
}
