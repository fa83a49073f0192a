package generate_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/generate"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/linter"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/store"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/writeback"
)

const t2DynamicJS = `var devDynamicContent = {};
devDynamicContent.parent = [{}];
devDynamicContent.parent[0].offerType = '';
devDynamicContent.parent[0].headline = 'Default headline';
devDynamicContent.parent[0].hero = 'hero.jpg';
devDynamicContent.parent[0].hero.Url = '';
devDynamicContent.parent[0].customGroups = '{}';
devDynamicContent.parent[0].TIER = 'T2';
Enabler.setDevDynamicContent(devDynamicContent);
`

const rowsCSV = "id,offerType,headline,hero,customGroups\n" +
	"R1,lease,\"Lease from $199, today\",spring.jpg,\"{\"\"g\"\":[1,2]}\"\n" +
	"R2,,No offer type,x.jpg,\n" +
	"R3,finance,It's \"quoted\",https://img.example.com/f.png,\n"

// fixture is an unpacked template, its rows and a store, shared by the
// end-to-end tests.
type fixture struct {
	tpl   *bundle.Bundle
	rows  *ingest.Table
	store *store.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "banner/index.html", []byte(`<meta name="ad.size" content="width=320,height=50">`), 0o644))
	require.NoError(t, util.WriteFile(fs, "banner/Dynamic.js", []byte(t2DynamicJS), 0o644))
	tpl, err := bundle.ReadDir(fs, "/")
	require.NoError(t, err)

	rows, err := ingest.ReadCSV(strings.NewReader(rowsCSV))
	require.NoError(t, err)

	st, err := store.Open(memfs.New(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &fixture{tpl: tpl, rows: rows, store: st}
}

func TestPipeline_SuggestGenerateStore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	diags, err := linter.Lint([]byte(f.tpl.Source()))
	require.NoError(t, err)
	require.Empty(t, diags)

	tier := bundle.DetectTier(f.tpl.Source())
	require.Equal(t, api.TierT2, tier)

	vars, err := mapping.Variables([]byte(f.tpl.Source()))
	require.NoError(t, err)
	m, err := mapping.Heuristic{}.Suggest(ctx, mapping.Input{Columns: f.rows.Fields, Variables: vars, Tier: tier})
	require.NoError(t, err)
	for _, field := range []string{"offerType", "headline", "hero", "customGroups"} {
		_, ok := m.Lookup(field)
		assert.True(t, ok, "no mapping for %s", field)
	}

	gen := generate.New(generate.Options{Workers: 3, Validate: true}, nil)
	batch, err := gen.Generate(ctx, &generate.Request{
		Bundle:        f.tpl,
		Mapping:       m,
		Tier:          tier,
		BaseAssetPath: "https://cdn.example.com/spring",
		Rows:          f.rows,
	})
	require.NoError(t, err)
	require.Empty(t, batch.Failures)
	require.Len(t, batch.Variations, 2, "R2 has no offerType")

	first, second := batch.Variations[0], batch.Variations[1]
	assert.True(t, strings.HasPrefix(first.Name, "R1_lease_"), first.Name)
	assert.Equal(t, 320, first.Width)
	assert.Empty(t, first.Warnings)

	js := string(first.Files["Dynamic.js"])
	assert.Contains(t, js, `devDynamicContent.parent[0].headline = 'Lease from $199, today';`)
	assert.Contains(t, js, `devDynamicContent.parent[0].hero.Url = 'https://cdn.example.com/spring/spring.jpg';`)
	assert.Contains(t, js, `devDynamicContent.parent[0].hero = 'hero.jpg';`, "image base variable is untouched")
	assert.Contains(t, js, `devDynamicContent.parent[0].customGroups = '{"g":[1,2]}';`)
	assert.NoError(t, writeback.Validate([]byte(js), "Dynamic.js"))

	js = string(second.Files["Dynamic.js"])
	assert.Contains(t, js, `devDynamicContent.parent[0].headline = 'It\'s "quoted"';`)
	assert.Contains(t, js, `devDynamicContent.parent[0].hero.Url = 'https://img.example.com/f.png';`)

	for _, v := range batch.Variations {
		require.NoError(t, f.store.Save(v))
	}
	list, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	var buf bytes.Buffer
	require.NoError(t, f.store.Zip(first.BannerID, &buf))
	back, err := bundle.Unpack(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, string(first.Files["Dynamic.js"]), back.Source())
	assert.Equal(t, f.tpl.Files["index.html"], back.Files["index.html"])
}

func TestPipeline_TemplateUntouched(t *testing.T) {
	f := setup(t)
	gen := generate.New(generate.Options{Workers: 2}, nil)
	_, err := gen.Generate(context.Background(), &generate.Request{
		Bundle:  f.tpl,
		Mapping: api.ColumnMapping{{Field: "headline", Path: "devDynamicContent.parent[0].headline"}},
		Tier:    api.TierT2,
		Rows:    f.rows,
	})
	require.NoError(t, err)
	assert.Equal(t, t2DynamicJS, f.tpl.Source())
}
