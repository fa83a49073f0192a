package mapping

import (
	"regexp"
	"sort"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

// TabObjects maps the sheet tabs of the preview flow to the Dynamic.js
// object each one fills.
var TabObjects = []struct {
	Tab    string
	Object string
}{
	{"parent", "parent[0]"},
	{"creative_data", "creative_data[0]"},
	{"OMS", "OMS[0]"},
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// FromTabs turns one selected row per sheet tab into a mapping and a single
// merged row. Key k of tab "parent" maps to devDynamicContent.parent[0].k,
// and so on for the other tabs. Fields in the merged row are named
// "<tab>.<key>" so equal keys of different tabs stay apart. Keys that are
// not plain identifiers cannot be addressed and are skipped.
func FromTabs(tabs map[string]map[string]string) (api.ColumnMapping, map[string]string) {
	var m api.ColumnMapping
	row := make(map[string]string)
	for _, t := range TabObjects {
		data := tabs[t.Tab]
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !identifier.MatchString(k) {
				continue
			}
			field := t.Tab + "." + k
			m = append(m, api.MappingEntry{Field: field, Path: Root + "." + t.Object + "." + k})
			row[field] = data[k]
		}
	}
	return m, row
}
