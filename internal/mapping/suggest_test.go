package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

var vars = []string{
	"devDynamicContent.parent",
	"devDynamicContent.parent[0].TIER",
	"devDynamicContent.parent[0].custom_offer",
	"devDynamicContent.parent[0].Headline",
	"devDynamicContent.parent[0].background_image",
	"devDynamicContent.parent[0].background_image.Url",
	"devDynamicContent.parent[0].cta_text",
}

func TestHeuristic_Suggest(t *testing.T) {
	m, err := Heuristic{}.Suggest(context.Background(), Input{
		Columns:   []string{"headline", "bg_img", "cta", "unrelated_zzz", "custom_offer", "TIER"},
		Variables: vars,
		Tier:      api.TierT1,
	})
	require.NoError(t, err)

	assert.Equal(t, api.ColumnMapping{
		{Field: "custom_offer", Path: "devDynamicContent.parent[0].custom_offer"},
		{Field: "headline", Path: "devDynamicContent.parent[0].Headline"},
		{Field: "bg_img", Path: "devDynamicContent.parent[0].background_image"},
		{Field: "cta", Path: "devDynamicContent.parent[0].cta_text"},
	}, m)
}

func TestHeuristic_OneColumnPerVariable(t *testing.T) {
	m, err := Heuristic{}.Suggest(context.Background(), Input{
		Columns:   []string{"headline", "headline2"},
		Variables: []string{"devDynamicContent.parent[0].headline"},
	})
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, "headline", m[0].Field)
}

func TestHeuristic_ColumnContainsSegment(t *testing.T) {
	m, err := Heuristic{}.Suggest(context.Background(), Input{
		Columns:   []string{"offer_headline_text"},
		Variables: []string{"devDynamicContent.parent[0].headline"},
	})
	require.NoError(t, err)
	assert.Equal(t, api.ColumnMapping{{Field: "offer_headline_text", Path: "devDynamicContent.parent[0].headline"}}, m)
}

type stubSuggester struct {
	m   api.ColumnMapping
	err error
}

func (s stubSuggester) Suggest(context.Context, Input) (api.ColumnMapping, error) { return s.m, s.err }

func TestFallback(t *testing.T) {
	good := api.ColumnMapping{{Field: "a", Path: "p"}}
	other := api.ColumnMapping{{Field: "b", Path: "q"}}
	ctx := context.Background()

	m, err := Fallback{Primary: stubSuggester{m: good}, Secondary: stubSuggester{m: other}}.Suggest(ctx, Input{})
	require.NoError(t, err)
	assert.Equal(t, good, m)

	var reasons []error
	f := Fallback{
		Primary:    stubSuggester{err: errors.New("quota")},
		Secondary:  stubSuggester{m: other},
		OnFallback: func(err error) { reasons = append(reasons, err) },
	}
	m, err = f.Suggest(ctx, Input{})
	require.NoError(t, err)
	assert.Equal(t, other, m)

	f.Primary = stubSuggester{}
	_, err = f.Suggest(ctx, Input{})
	require.NoError(t, err)
	require.Len(t, reasons, 2)
	assert.ErrorIs(t, reasons[1], ErrNoSuggestion)

	_, err = Fallback{}.Suggest(ctx, Input{})
	assert.ErrorIs(t, err, ErrNoSuggestion)
}

func TestFallback_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fallback{Primary: stubSuggester{err: context.Canceled}, Secondary: Heuristic{}}.Suggest(ctx, Input{})
	assert.ErrorIs(t, err, context.Canceled)
}
