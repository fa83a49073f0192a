package substitute

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

const template = `var devDynamicContent = {};
devDynamicContent.parent = [{}];
devDynamicContent.parent[0].TIER = 'T2';
devDynamicContent.parent[0].custom_offer = 'x';
devDynamicContent.parent[0].custom_offer.Url = 'y';
devDynamicContent.parent[0].headline = 'OLD';
devDynamicContent.parent[0].banner = {};
devDynamicContent.parent[0].banner.Url = 'default.png';
devDynamicContent.parent[0].price = 0; // cents
devDynamicContent.parent[0].customGroups = '[]';
Enabler.setDevDynamicContent(devDynamicContent);
`

func mapping(pairs ...string) api.ColumnMapping {
	var m api.ColumnMapping
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

func line(t *testing.T, text, prefix string) string {
	t.Helper()
	for _, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(l, prefix) {
			return l
		}
	}
	t.Fatalf("no line starting with %q", prefix)
	return ""
}

func TestSubstitute_HeadlineScenario(t *testing.T) {
	e := &Engine{Tier: api.TierT1}
	res := e.Substitute(template,
		mapping("headline", "devDynamicContent.parent[0].headline"),
		map[string]string{"headline": "Big Sale"})

	assert.Equal(t, "devDynamicContent.parent[0].headline = 'Big Sale';", line(t, res.Text, "devDynamicContent.parent[0].headline"))
	assert.Equal(t, "devDynamicContent.parent[0].TIER = 'T1';", line(t, res.Text, "devDynamicContent.parent[0].TIER"))
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, PolicyScalar, res.Changes[0].Policy)
	assert.Equal(t, "'OLD'", res.Changes[0].Old)
	assert.Equal(t, PolicyTier, res.Changes[1].Policy)
}

func TestSubstitute_OnlyMappedLinesChange(t *testing.T) {
	e := &Engine{Tier: api.TierT2}
	res := e.Substitute(template,
		mapping("headline", "devDynamicContent.parent[0].headline"),
		map[string]string{"headline": "Big Sale"})

	want := strings.Replace(template, "headline = 'OLD';", "headline = 'Big Sale';", 1)
	if diff := cmp.Diff(want, res.Text); diff != "" {
		t.Errorf("unexpected rewrite (-want +got):\n%s", diff)
	}
}

func TestSubstitute_ExactPathNoFalseMatch(t *testing.T) {
	e := &Engine{Tier: api.TierT1}
	res := e.Substitute(template,
		mapping("custom_offer", "devDynamicContent.parent[0].custom_offer"),
		map[string]string{"custom_offer": "SAVE20"})

	assert.Equal(t, "devDynamicContent.parent[0].custom_offer = 'SAVE20';", line(t, res.Text, "devDynamicContent.parent[0].custom_offer ="))
	assert.Equal(t, "devDynamicContent.parent[0].custom_offer.Url = 'y';", line(t, res.Text, "devDynamicContent.parent[0].custom_offer.Url"))
}

func TestSubstitute_ImageRouting(t *testing.T) {
	e := &Engine{Tier: api.TierT1, BaseAssetPath: "https://cdn.example.com/"}
	res := e.Substitute(template,
		mapping("banner", "devDynamicContent.parent[0].banner"),
		map[string]string{"banner": "photo.jpg"})

	assert.Equal(t, "devDynamicContent.parent[0].banner.Url = 'https://cdn.example.com/photo.jpg';", line(t, res.Text, "devDynamicContent.parent[0].banner.Url"))
	assert.Equal(t, "devDynamicContent.parent[0].banner = {};", line(t, res.Text, "devDynamicContent.parent[0].banner ="))
	require.NotEmpty(t, res.Changes)
	assert.Equal(t, PolicyImage, res.Changes[0].Policy)
	assert.Equal(t, "devDynamicContent.parent[0].banner.Url", res.Changes[0].Path)
}

func TestSubstitute_ImageScenarioOnlyUrlLineChanges(t *testing.T) {
	e := &Engine{BaseAssetPath: "https://s0.example/"}
	res := e.Substitute(template,
		mapping("img", "devDynamicContent.parent[0].banner"),
		map[string]string{"img": "banner.png"})

	want := strings.Replace(template, "banner.Url = 'default.png';", "banner.Url = 'https://s0.example/banner.png';", 1)
	if diff := cmp.Diff(want, res.Text); diff != "" {
		t.Errorf("unexpected rewrite (-want +got):\n%s", diff)
	}
}

func TestSubstitute_ImageVariants(t *testing.T) {
	cases := []struct {
		name  string
		base  string
		path  string
		value string
		want  string
	}{
		{"absolute url kept", "https://cdn/", "devDynamicContent.parent[0].banner", "http://other/a.svg", "'http://other/a.svg'"},
		{"no base path", "", "devDynamicContent.parent[0].banner", " a.png ", "'a.png'"},
		{"slash inserted", "https://cdn", "devDynamicContent.parent[0].banner", "a.png", "'https://cdn/a.png'"},
		{"double slash collapsed", "https://cdn/", "devDynamicContent.parent[0].banner", "/a.png", "'https://cdn/a.png'"},
		{"mapped to Url directly", "", "devDynamicContent.parent[0].banner.Url", "b.png", "'b.png'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := &Engine{BaseAssetPath: tc.base}
			res := e.Substitute(template, mapping("img", tc.path), map[string]string{"img": tc.value})
			assert.Equal(t, "devDynamicContent.parent[0].banner.Url = "+tc.want+";", line(t, res.Text, "devDynamicContent.parent[0].banner.Url"))
		})
	}
}

func TestSubstitute_ImageSuffixIsCaseSensitive(t *testing.T) {
	e := &Engine{BaseAssetPath: "https://cdn/"}
	res := e.Substitute(template,
		mapping("headline", "devDynamicContent.parent[0].headline"),
		map[string]string{"headline": "PHOTO.JPG"})
	assert.Equal(t, "devDynamicContent.parent[0].headline = 'PHOTO.JPG';", line(t, res.Text, "devDynamicContent.parent[0].headline"))
}

func TestSubstitute_ImageWithoutUrlSiblingWarns(t *testing.T) {
	e := &Engine{}
	res := e.Substitute(template,
		mapping("headline", "devDynamicContent.parent[0].headline"),
		map[string]string{"headline": "hero.png"})
	assert.Equal(t, "devDynamicContent.parent[0].headline = 'OLD';", line(t, res.Text, "devDynamicContent.parent[0].headline"))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "devDynamicContent.parent[0].headline.Url", res.Warnings[0].Path)
}

func TestSubstitute_TierOverridePrecedence(t *testing.T) {
	e := &Engine{Tier: api.TierT1}
	res := e.Substitute(template,
		mapping("tier", api.TierPath, "headline", "devDynamicContent.parent[0].headline"),
		map[string]string{"tier": "T9", "headline": "x"})

	assert.Equal(t, "devDynamicContent.parent[0].TIER = 'T1';", line(t, res.Text, "devDynamicContent.parent[0].TIER"))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "tier", res.Warnings[0].Field)
}

func TestSubstitute_TierFiresWithEmptyRow(t *testing.T) {
	e := &Engine{Tier: api.TierT1}
	res := e.Substitute(template, nil, nil)
	assert.Equal(t, "devDynamicContent.parent[0].TIER = 'T1';", line(t, res.Text, "devDynamicContent.parent[0].TIER"))
}

func TestSubstitute_MissingTierLineWarns(t *testing.T) {
	e := &Engine{Tier: api.TierT2}
	src := "devDynamicContent.parent[0].headline = 'a';\n"
	res := e.Substitute(src, nil, nil)
	assert.Equal(t, src, res.Text)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, api.TierPath, res.Warnings[0].Path)
}

func TestSubstitute_JSONBlobPassthrough(t *testing.T) {
	blob := `[{"name":"a","ids":[1,2]},{"name":"it's"}]`
	m := mapping("customGroups", "devDynamicContent.parent[0].customGroups")
	row := map[string]string{"customGroups": blob}

	t2 := (&Engine{Tier: api.TierT2}).Substitute(template, m, row)
	assert.Empty(t, t2.Warnings)
	assert.Equal(t, `devDynamicContent.parent[0].customGroups = '[{"name":"a","ids":[1,2]},{"name":"it\'s"}]';`,
		line(t, t2.Text, "devDynamicContent.parent[0].customGroups"))
	assert.Equal(t, PolicyJSON, t2.Changes[0].Policy)

	t1 := (&Engine{Tier: api.TierT1}).Substitute(template, m, row)
	assert.Equal(t, PolicyScalar, t1.Changes[0].Policy)
}

func TestSubstitute_InvalidJSONBlobStillWritten(t *testing.T) {
	res := (&Engine{Tier: api.TierT2}).Substitute(template,
		mapping("rd_values", "devDynamicContent.parent[0].customGroups"),
		map[string]string{"rd_values": "{not json"})

	assert.Equal(t, "devDynamicContent.parent[0].customGroups = '{not json';", line(t, res.Text, "devDynamicContent.parent[0].customGroups"))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "not valid JSON")
}

func TestSubstitute_UnquotedValueWithComment(t *testing.T) {
	res := (&Engine{}).Substitute(template,
		mapping("price", "devDynamicContent.parent[0].price"),
		map[string]string{"price": "1999"})
	assert.Equal(t, "devDynamicContent.parent[0].price = '1999'; // cents", line(t, res.Text, "devDynamicContent.parent[0].price"))
}

func TestSubstitute_CommentWithoutSemicolonStaysComment(t *testing.T) {
	src := "devDynamicContent.parent[0].a = 5 // note; keep\ndevDynamicContent.parent[0].b = 6 /* x; y */\n"
	res := (&Engine{}).Substitute(src,
		mapping("a", "devDynamicContent.parent[0].a", "b", "devDynamicContent.parent[0].b"),
		map[string]string{"a": "A", "b": "B"})
	assert.Equal(t, "devDynamicContent.parent[0].a = 'A'; // note; keep\ndevDynamicContent.parent[0].b = 'B'; /* x; y */\n", res.Text)
	assert.Empty(t, res.Warnings)
}

func TestSubstitute_EmptyValuesSkipped(t *testing.T) {
	m := mapping("headline", "devDynamicContent.parent[0].headline", "missing", "devDynamicContent.parent[0].price")
	for _, row := range []map[string]string{nil, {"headline": ""}, {"headline": "   "}} {
		res := (&Engine{}).Substitute(template, m, row)
		assert.Equal(t, template, res.Text)
		assert.Empty(t, res.Warnings)
		assert.False(t, res.Changed())
	}
}

func TestSubstitute_MissingFieldToleranceIsObservable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := &Engine{Logger: zap.New(core)}

	res := e.Substitute(template,
		mapping("subhead", "devDynamicContent.parent[0].subhead"),
		map[string]string{"subhead": "hello"})

	assert.Equal(t, template, res.Text)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, api.Warning{Field: "subhead", Path: "devDynamicContent.parent[0].subhead", Message: "variable not found in Dynamic.js"}, res.Warnings[0])

	entries := logs.FilterField(zap.String("path", "devDynamicContent.parent[0].subhead")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestSubstitute_Idempotent(t *testing.T) {
	e := &Engine{Tier: api.TierT2, BaseAssetPath: "https://cdn/"}
	m := mapping(
		"headline", "devDynamicContent.parent[0].headline",
		"banner", "devDynamicContent.parent[0].banner",
		"customGroups", "devDynamicContent.parent[0].customGroups",
	)
	row := map[string]string{"headline": `it's "big" \ sale`, "banner": "b.png", "customGroups": `{"a":1}`}

	once := e.Substitute(template, m, row)
	twice := e.Substitute(once.Text, m, row)
	if diff := cmp.Diff(once.Text, twice.Text); diff != "" {
		t.Errorf("second pass changed text (-once +twice):\n%s", diff)
	}
}

func TestSubstitute_RowIsolation(t *testing.T) {
	e := &Engine{Tier: api.TierT1}
	m := mapping("headline", "devDynamicContent.parent[0].headline")
	a := map[string]string{"headline": "A"}
	b := map[string]string{"headline": "B"}

	alone := e.Substitute(template, m, a)
	_ = e.Substitute(template, m, b)
	after := e.Substitute(template, m, a)
	assert.Equal(t, alone, after)
}

func TestSubstitute_FirstMatchWins(t *testing.T) {
	src := "a.b = '1';\na.b = '2';\n"
	res := (&Engine{}).Substitute(src, mapping("f", "a.b"), map[string]string{"f": "x"})
	assert.Equal(t, "a.b = 'x';\na.b = '2';\n", res.Text)
}

func TestSubstitute_HostileValueStaysOneLiteral(t *testing.T) {
	hostile := `';DROP TABLE x;-- "\` + "\n"
	res := (&Engine{}).Substitute(template,
		mapping("headline", "devDynamicContent.parent[0].headline"),
		map[string]string{"headline": hostile})

	assert.Equal(t, strings.Count(template, "\n"), strings.Count(res.Text, "\n"), "value must not add lines")
	assert.Equal(t, `devDynamicContent.parent[0].headline = '\';DROP TABLE x;-- "\\\n';`, line(t, res.Text, "devDynamicContent.parent[0].headline"))
}

func TestJoinAssetPath(t *testing.T) {
	assert.Equal(t, "a/b", JoinAssetPath("a", "b"))
	assert.Equal(t, "a/b", JoinAssetPath("a/", "b"))
	assert.Equal(t, "a/b", JoinAssetPath("a", "/b"))
	assert.Equal(t, "a/b", JoinAssetPath("a/", "/b"))
}
