package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dynamicJS = `var devDynamicContent = {};
devDynamicContent.parent = [{}];
devDynamicContent.parent[0].TIER = 'T1';
devDynamicContent.parent[0].custom_offer = 'x';
devDynamicContent.parent[0].headline = "OLD";
devDynamicContent.parent[0].banner = {};
devDynamicContent.parent[0].banner.Url = 'b.png';
devDynamicContent.parent[0].headline = 'again';
devDynamicContent.parent[0].rd_values =
  '{"a":1}';
other.thing = 5;
Enabler.setDevDynamicContent(devDynamicContent);
`

func TestAssignments(t *testing.T) {
	got, err := Assignments([]byte(dynamicJS))
	require.NoError(t, err)
	require.Len(t, got, 8)

	assert.Equal(t, Assignment{Path: "devDynamicContent.parent", Value: "[{}]", StartLine: 1, EndLine: 1}, got[0])
	assert.Equal(t, "devDynamicContent.parent[0].headline", got[3].Path)
	assert.Equal(t, `"OLD"`, got[3].Value)
	assert.False(t, got[3].MultiLine())

	last := got[7]
	assert.Equal(t, "devDynamicContent.parent[0].rd_values", last.Path)
	assert.True(t, last.MultiLine())
	assert.Equal(t, 8, last.StartLine)
	assert.Equal(t, 9, last.EndLine)
}

func TestVariables_DistinctInOrder(t *testing.T) {
	vars, err := Variables([]byte(dynamicJS))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"devDynamicContent.parent",
		"devDynamicContent.parent[0].TIER",
		"devDynamicContent.parent[0].custom_offer",
		"devDynamicContent.parent[0].headline",
		"devDynamicContent.parent[0].banner",
		"devDynamicContent.parent[0].banner.Url",
		"devDynamicContent.parent[0].rd_values",
	}, vars)
}

func TestVariables_NormalizesWhitespace(t *testing.T) {
	vars, err := Variables([]byte("devDynamicContent . parent[ 0 ].x = 1;"))
	require.NoError(t, err)
	assert.Equal(t, []string{"devDynamicContent.parent[0].x"}, vars)
}

func TestVariables_Empty(t *testing.T) {
	vars, err := Variables([]byte("var a = 1;"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "headline", LastSegment("devDynamicContent.parent[0].headline"))
	assert.Equal(t, "parent", LastSegment("devDynamicContent.parent[0]"))
	assert.Equal(t, "Url", LastSegment("a.b.Url"))
	assert.Equal(t, "x", LastSegment("x"))
}
