package ingest

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultSelector matches every element of a top-level array.
const DefaultSelector = "$[*]"

// ReadJSON parses a JSON document and turns each value matched by the
// JSONPath selector into a row. Objects contribute their members; any other
// match becomes a row with the single field "value".
func ReadJSON(data []byte, selector string) (*Table, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	root, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	t := NewTable()
	for _, match := range x.Get(root) {
		t.Append(RecordRow(match))
	}
	return t, nil
}

// RecordRow flattens a decoded JSON value into a row. Scalars are
// stringified, nested arrays and objects are kept as JSON text, and nulls
// are left out.
func RecordRow(v any) Row {
	obj, ok := v.(map[string]any)
	if !ok {
		obj = map[string]any{"value": v}
	}
	row := make(Row, len(obj))
	for k, val := range obj {
		if s, ok := stringify(val); ok {
			row[k] = s
		}
	}
	return row
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case []byte:
		return string(x), true
	default:
		return oj.JSON(x, &oj.Options{Sort: true}), true
	}
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
