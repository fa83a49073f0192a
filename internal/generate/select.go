package generate

import (
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
)

// Selection is the ordered list of row indexes a batch will render, plus
// the requested ids that matched no row.
type Selection struct {
	Indexes []int
	Missing []string
}

// eligible returns the bitmap of rows that belong to tier. An unset tier
// admits every row.
func eligible(t *ingest.Table, tier api.Tier) *roaring.Bitmap {
	bm := roaring.New()
	for i, r := range t.Rows {
		if r.InTier(tier) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// Select applies the tier filter and then, when ids are given, keeps the
// first eligible row of each requested id in request order. Repeated ids
// are collapsed.
func Select(t *ingest.Table, tier api.Tier, idField string, ids []string) Selection {
	bm := eligible(t, tier)
	if len(ids) == 0 {
		out := make([]int, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			out = append(out, int(it.Next()))
		}
		return Selection{Indexes: out}
	}

	if idField == "" {
		idField = ingest.IDField
	}
	first := make(map[string]int, len(t.Rows))
	it := bm.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		id := t.Rows[i].Get(idField)
		if _, ok := first[id]; !ok && id != "" {
			first[id] = i
		}
	}

	var sel Selection
	picked := roaring.New()
	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || requested[id] {
			continue
		}
		requested[id] = true
		i, ok := first[id]
		if !ok {
			sel.Missing = append(sel.Missing, id)
			continue
		}
		if picked.CheckedAdd(uint32(i)) {
			sel.Indexes = append(sel.Indexes, i)
		}
	}
	return sel
}

// ParseIDs splits a comma or whitespace separated id list.
func ParseIDs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
}
