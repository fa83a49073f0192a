// Package generate renders one banner variation per data row.
package generate

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/assemble"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/logging"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/substitute"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/writeback"
)

var (
	// ErrRowNotFound means a requested id matched no eligible row.
	ErrRowNotFound = errors.New("no row found for requested id")
	// ErrNoDynamicJS is returned when Dynamic.js is required but missing.
	ErrNoDynamicJS = errors.New("template has no Dynamic.js")
)

// PreviewPrefix starts the names of sheet-tab previews.
const PreviewPrefix = "Preview"

// RowError is a failure confined to one row.
type RowError struct {
	// Index is the row's position in the input table, or -1 when the row
	// does not exist.
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Err   error  `json:"-"`
}

func (e *RowError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("row %q: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Request describes one batch.
type Request struct {
	Bundle *bundle.Bundle
	// Source replaces the template's Dynamic.js text when non-empty, e.g.
	// after the user edited it.
	Source        string
	Mapping       api.ColumnMapping
	Tier          api.Tier
	BaseAssetPath string
	Rows          *ingest.Table
	// IDField names the column matched against IDs; defaults to "id".
	IDField string
	// IDs restricts the batch to these rows, in this order.
	IDs []string
	// Strict aborts the whole batch on the first row failure, including a
	// requested id without a row.
	Strict     bool
	NamePrefix string
}

func (r *Request) source() string {
	if r.Source != "" {
		return r.Source
	}
	return r.Bundle.Source()
}

// Batch is the outcome of Generate. Variations are in selection order.
type Batch struct {
	Variations []*api.Variation `json:"variations"`
	Failures   []*RowError      `json:"failures,omitempty"`
}

// Options tune a Generator.
type Options struct {
	// Workers bounds concurrent rows; defaults to GOMAXPROCS.
	Workers int
	// RequireDynamicJS fails templates without Dynamic.js instead of
	// rendering them unchanged.
	RequireDynamicJS bool
	// Validate parses every rewritten Dynamic.js and warns when a rewrite
	// broke a file that parsed before.
	Validate bool
}

// Generator runs the per-row pipeline: substitute, validate, assemble.
type Generator struct {
	Options
	Assembler *assemble.Assembler
	Logger    *zap.Logger
}

// New returns a generator with a default assembler.
func New(opts Options, logger *zap.Logger) *Generator {
	return &Generator{Options: opts, Assembler: &assemble.Assembler{}, Logger: logger}
}

func (g *Generator) log() *zap.Logger { return logging.OrNop(g.Logger) }

func (g *Generator) assembler() *assemble.Assembler {
	if g.Assembler != nil {
		return g.Assembler
	}
	return &assemble.Assembler{}
}

func (g *Generator) workers() int {
	if g.Workers > 0 {
		return g.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// check rejects requests that cannot produce any variation.
func (g *Generator) check(req *Request) error {
	if req.Bundle == nil || req.Bundle.EntryHTML == "" {
		return bundle.ErrNoEntryHTML
	}
	if req.source() == "" && !req.Bundle.HasDynamicJS() && g.RequireDynamicJS {
		return ErrNoDynamicJS
	}
	return nil
}

// Generate renders the selected rows of req on a bounded worker pool.
// Template problems fail the call before any row runs. Row failures are
// collected in Batch.Failures unless req.Strict is set, in which case the
// first one is returned and the remaining rows are cancelled.
func (g *Generator) Generate(ctx context.Context, req *Request) (*Batch, error) {
	if err := g.check(req); err != nil {
		return nil, err
	}
	rows := req.Rows
	if rows == nil {
		rows = ingest.NewTable()
	}

	sel := Select(rows, req.Tier, req.IDField, req.IDs)
	batch := &Batch{}
	for _, id := range sel.Missing {
		rerr := &RowError{Index: -1, ID: id, Err: ErrRowNotFound}
		if req.Strict {
			return nil, rerr
		}
		batch.Failures = append(batch.Failures, rerr)
	}

	log := g.log().With(zap.String("tier", string(req.Tier)))
	log.Info("generating variations", zap.Int("rows", len(sel.Indexes)), zap.Int("missing", len(sel.Missing)))

	results := make([]*api.Variation, len(sel.Indexes))
	failures := make([]*RowError, len(sel.Indexes))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers())
	for slot, idx := range sel.Indexes {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			row := rows.Rows[idx]
			v, err := g.GenerateRow(egCtx, req, row)
			if err != nil {
				rerr := &RowError{Index: idx, ID: row.Get(idField(req)), Err: err}
				if req.Strict {
					return rerr
				}
				failures[slot] = rerr
				return nil
			}
			results[slot] = v
			log.Debug("variation ready", zap.Int("row", idx), zap.String("name", v.Name))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for slot := range sel.Indexes {
		if results[slot] != nil {
			batch.Variations = append(batch.Variations, results[slot])
		}
		if failures[slot] != nil {
			batch.Failures = append(batch.Failures, failures[slot])
		}
	}
	log.Info("generation finished", zap.Int("variations", len(batch.Variations)), zap.Int("failures", len(batch.Failures)))
	return batch, nil
}

func idField(req *Request) string {
	if req.IDField != "" {
		return req.IDField
	}
	return ingest.IDField
}

// GenerateRow renders a single row. It does not apply the tier or id
// filters; callers pick the row.
func (g *Generator) GenerateRow(ctx context.Context, req *Request, row ingest.Row) (*api.Variation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.check(req); err != nil {
		return nil, err
	}

	rc := assemble.RowContext{
		Row:     row,
		Tier:    req.Tier,
		Prefix:  req.NamePrefix,
		IDField: req.IDField,
	}

	src := req.source()
	if src == "" {
		rc.Warnings = []api.Warning{{Message: "template has no Dynamic.js; static content used"}}
		g.log().Warn("template has no Dynamic.js; skipping substitution")
		return g.assembler().Assemble(req.Bundle, "", rc)
	}

	engine := &substitute.Engine{Tier: req.Tier, BaseAssetPath: req.BaseAssetPath, Logger: g.Logger}
	res := engine.Substitute(src, req.Mapping, row)
	rc.Warnings = res.Warnings

	if g.Validate && res.Changed() {
		name := req.Bundle.DynamicJS
		if name == "" {
			name = bundle.DynamicJSName
		}
		if err := writeback.Regressed([]byte(src), []byte(res.Text), name); err != nil {
			rc.Warnings = append(rc.Warnings, api.Warning{Message: fmt.Sprintf("rewritten Dynamic.js does not parse: %v", err)})
			g.log().Warn("rewrite broke Dynamic.js syntax", zap.Error(err))
		}
	}
	return g.assembler().Assemble(req.Bundle, res.Text, rc)
}

// Preview renders the single variation of the sheet-tab flow: one selected
// row per tab (parent, creative_data, OMS) written into the matching
// devDynamicContent objects.
func (g *Generator) Preview(ctx context.Context, b *bundle.Bundle, source string, tier api.Tier, tabs map[string]map[string]string) (*api.Variation, error) {
	m, row := mapping.FromTabs(tabs)
	req := &Request{
		Bundle:     b,
		Source:     source,
		Mapping:    m,
		Tier:       tier,
		IDField:    ingest.TabParent + "." + ingest.IDField,
		NamePrefix: PreviewPrefix,
	}
	return g.GenerateRow(ctx, req, row)
}
