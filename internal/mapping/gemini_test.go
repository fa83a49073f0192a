package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

type fakeModel struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeModel) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestGemini_Suggest(t *testing.T) {
	model := &fakeModel{reply: "```json\n" + `{
  "cta": "devDynamicContent.parent[0].cta_text",
  "headline": "devDynamicContent.parent[0].Headline",
  "bg": "devDynamicContent.parent[0].background_image",
  "ghost_column": "devDynamicContent.parent[0].Headline",
  "made_up": "devDynamicContent.parent[0].nope",
  "tier": "devDynamicContent.parent[0].TIER",
  "skip": "none"
}` + "\n```"}

	m, err := Gemini{Model: model}.Suggest(context.Background(), Input{
		Columns:   []string{"headline", "cta", "bg", "made_up", "tier", "skip"},
		Variables: vars,
		Tier:      api.TierT2,
	})
	require.NoError(t, err)
	assert.Equal(t, api.ColumnMapping{
		{Field: "headline", Path: "devDynamicContent.parent[0].Headline"},
		{Field: "cta", Path: "devDynamicContent.parent[0].cta_text"},
		{Field: "bg", Path: "devDynamicContent.parent[0].background_image"},
	}, m)
	assert.Contains(t, model.prompt, "- devDynamicContent.parent[0].cta_text")
	assert.Contains(t, model.prompt, `"offerType"`)
}

func TestGemini_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Gemini{}.Suggest(ctx, Input{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	boom := errors.New("boom")
	_, err = Gemini{Model: &fakeModel{err: boom}}.Suggest(ctx, Input{})
	assert.ErrorIs(t, err, boom)

	_, err = Gemini{Model: &fakeModel{reply: "not json"}}.Suggest(ctx, Input{})
	assert.Error(t, err)

	_, err = Gemini{Model: &fakeModel{reply: `["a"]`}}.Suggest(ctx, Input{})
	assert.Error(t, err)

	_, err = Gemini{Model: &fakeModel{reply: `{}`}}.Suggest(ctx, Input{Columns: []string{"a"}})
	assert.ErrorIs(t, err, ErrNoSuggestion)
}

func TestNewGenAIModel_RequiresKey(t *testing.T) {
	_, err := NewGenAIModel(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(" {\"a\":1} "))
}
