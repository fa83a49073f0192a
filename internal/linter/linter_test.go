package linter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rules(diags []Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Rule)
	}
	return out
}

func TestLint_Clean(t *testing.T) {
	src := []byte(`var devDynamicContent = {};
devDynamicContent.parent = [{}];
devDynamicContent.parent[0].headline = 'Sale';
devDynamicContent.parent[0].image.Url = 'a.png';
Enabler.setDevDynamicContent(devDynamicContent);
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestLint_MultiLine(t *testing.T) {
	src := []byte(`var devDynamicContent = {};
devDynamicContent.parent[0].rd_values = {
  a: 1
};
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, RuleMultiLine, diags[0].Rule)
	assert.Equal(t, "devDynamicContent.parent[0].rd_values", diags[0].Path)
	assert.Equal(t, uint32(1), diags[0].Line)
	assert.Contains(t, diags[0].String(), "line 2:")
}

func TestLint_Duplicate(t *testing.T) {
	src := []byte(`devDynamicContent.parent[0].headline = 'a';
devDynamicContent.parent[0].price = '1';
devDynamicContent.parent[0].headline = 'b';
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, RuleDuplicate, diags[0].Rule)
	assert.Equal(t, uint32(2), diags[0].Line)
	assert.Contains(t, diags[0].Message, "line 1")
}

func TestLint_Syntax(t *testing.T) {
	src := []byte(`devDynamicContent.parent[0].headline = 'a';
var x = {;
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	assert.Contains(t, rules(diags), RuleSyntax)
}

func TestLint_IgnoresOtherObjects(t *testing.T) {
	src := []byte(`window.a = 1;
window.a = 2;
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestLint_ShadowedByComment(t *testing.T) {
	src := []byte(`// devDynamicContent.parent[0].headline = 'old copy';
devDynamicContent.parent[0].headline = 'a';
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, RuleShadowed, diags[0].Rule)
	assert.Equal(t, uint32(0), diags[0].Line)
	assert.Contains(t, diags[0].Message, "instead of line 2")
}

func TestLint_Unlocatable(t *testing.T) {
	src := []byte(`devDynamicContent.parent[0] .headline = 'a';
`)
	diags, err := Lint(src)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, RuleUnlocatable, diags[0].Rule)
	assert.Equal(t, "devDynamicContent.parent[0].headline", diags[0].Path)
}
