package mapping

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

// ErrNoSuggestion is returned when a suggester produced an empty mapping.
var ErrNoSuggestion = errors.New("no mapping suggested")

// Input describes what a suggester may map: data columns onto Dynamic.js
// variables.
type Input struct {
	Columns   []string
	Variables []string
	Tier      api.Tier
}

// Suggester proposes a column mapping.
type Suggester interface {
	Suggest(ctx context.Context, in Input) (api.ColumnMapping, error)
}

// Heuristic maps columns to variables by name: an exact match of the
// variable's last path segment first, then the closest fuzzy match.
type Heuristic struct{}

// Suggest implements Suggester. Each variable receives at most one column.
// The tier column, when present, is matched first.
func (Heuristic) Suggest(_ context.Context, in Input) (api.ColumnMapping, error) {
	targets := candidates(in.Variables)
	segments := make([]string, len(targets))
	for i, v := range targets {
		segments[i] = LastSegment(v)
	}
	used := make([]bool, len(targets))

	var out api.ColumnMapping
	for _, col := range orderColumns(in.Columns, in.Tier) {
		i := pick(col, segments, used)
		if i < 0 {
			continue
		}
		used[i] = true
		out = append(out, api.MappingEntry{Field: col, Path: targets[i]})
	}
	return out, nil
}

// candidates collapses ".Url" members onto their image variable and drops
// the tier variable, which is never mapped.
func candidates(vars []string) []string {
	seen := make(map[string]bool, len(vars))
	var out []string
	for _, v := range vars {
		v = strings.TrimSuffix(v, ".Url")
		if v == api.TierPath || v == Root || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func orderColumns(cols []string, tier api.Tier) []string {
	out := make([]string, 0, len(cols))
	if tier.Valid() {
		for _, c := range cols {
			if c == tier.Column() {
				out = append(out, c)
			}
		}
	}
	for _, c := range cols {
		if strings.TrimSpace(c) == "" || (tier.Valid() && c == tier.Column()) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// pick returns the index of the best unused segment for col, or -1.
func pick(col string, segments []string, used []bool) int {
	for i, s := range segments {
		if !used[i] && strings.EqualFold(s, col) {
			return i
		}
	}

	free := make([]string, 0, len(segments))
	index := make(map[string]int, len(segments))
	for i, s := range segments {
		if used[i] {
			continue
		}
		if _, dup := index[s]; dup {
			continue
		}
		index[s] = i
		free = append(free, s)
	}

	// The column may be an abbreviation of the segment or the other way round.
	ranks := fuzzy.RankFindNormalizedFold(col, free)
	for _, s := range free {
		if fuzzy.MatchNormalizedFold(s, col) {
			ranks = append(ranks, fuzzy.Rank{Source: s, Target: s, Distance: len(col) - len(s), OriginalIndex: index[s]})
		}
	}
	if len(ranks) == 0 {
		return -1
	}
	sort.SliceStable(ranks, func(a, b int) bool { return ranks[a].Distance < ranks[b].Distance })
	return index[ranks[0].Target]
}

// Fallback uses Secondary when Primary fails or suggests nothing.
type Fallback struct {
	Primary   Suggester
	Secondary Suggester
	// OnFallback, if set, observes why the secondary was used.
	OnFallback func(err error)
}

// Suggest implements Suggester.
func (f Fallback) Suggest(ctx context.Context, in Input) (api.ColumnMapping, error) {
	if f.Primary != nil {
		m, err := f.Primary.Suggest(ctx, in)
		if err == nil && len(m) > 0 {
			return m, nil
		}
		if err == nil {
			err = ErrNoSuggestion
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if f.OnFallback != nil {
			f.OnFallback(err)
		}
	}
	if f.Secondary == nil {
		return nil, ErrNoSuggestion
	}
	return f.Secondary.Suggest(ctx, in)
}
