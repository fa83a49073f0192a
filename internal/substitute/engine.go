// Package substitute rewrites devDynamicContent assignments in a Dynamic.js
// source with values taken from one data row.
//
// The engine works on text lines, not on a syntax tree: each mapped variable
// path is located with writeback.LocateExact (writeback.LocateNested for the
// ".Url" member of an image) and only the value span of the first matching
// assignment is replaced. Per field, the first applicable policy wins:
//
//  1. the TIER variable is always forced to the engine's tier, as a final pass
//  2. T2 JSON fields (customGroups, rd_values, rd-values) pass through verbatim
//  3. image values (.jpg, .png, .svg) go to the ".Url" sibling of the path
//  4. anything else replaces the mapped path's value
//
// Empty or absent row values are skipped. A path that cannot be found is a
// warning, never an error.
package substitute

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/logging"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/writeback"
)

// Policy names the rule that produced a change.
type Policy string

const (
	PolicyTier   Policy = "tier"
	PolicyJSON   Policy = "json"
	PolicyImage  Policy = "image"
	PolicyScalar Policy = "scalar"
)

// jsonFields hold JSON documents in T2 templates; the banner parses them at
// render time.
var jsonFields = map[string]bool{
	"customGroups": true,
	"rd_values":    true,
	"rd-values":    true,
}

var imageSuffixes = []string{".jpg", ".png", ".svg"}

// urlSuffix is the member holding the address of an image variable.
const urlSuffix = "Url"

// Engine holds the per-batch settings of a substitution. It is safe for
// concurrent use: Substitute does not modify the engine.
type Engine struct {
	Tier api.Tier
	// BaseAssetPath is prepended to relative image values.
	BaseAssetPath string
	Logger        *zap.Logger
}

// Change records one rewritten assignment.
type Change struct {
	Field  string `json:"field"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Policy Policy `json:"policy"`
	Old    string `json:"old"`
	New    string `json:"new"`
}

// Result is the outcome of substituting one row.
type Result struct {
	Text     string        `json:"text"`
	Changes  []Change      `json:"changes,omitempty"`
	Warnings []api.Warning `json:"warnings,omitempty"`
}

// Changed reports whether any assignment was rewritten.
func (r Result) Changed() bool { return len(r.Changes) > 0 }

// Substitute applies mapping to src using the values in row and returns the
// rewritten text. It never fails: fields that cannot be applied are reported
// in Result.Warnings.
func (e *Engine) Substitute(src string, mapping api.ColumnMapping, row map[string]string) Result {
	log := logging.OrNop(e.Logger)
	res := Result{Text: src}

	for _, m := range mapping {
		if m.Path == "" {
			continue
		}
		if m.Path == api.TierPath {
			res.warn(log, m.Field, m.Path, "tier variable is set from the selected tier; mapping ignored")
			continue
		}
		value, ok := row[m.Field]
		if !ok || strings.TrimSpace(value) == "" {
			log.Debug("skipping empty field", zap.String("field", m.Field))
			continue
		}

		switch {
		case e.Tier == api.TierT2 && jsonFields[m.Field]:
			if _, err := oj.ParseString(value); err != nil {
				res.warn(log, m.Field, m.Path, fmt.Sprintf("value is not valid JSON, written as is: %v", err))
			}
			res.apply(log, m.Field, m.Path, PolicyJSON, writeback.FormatLiteral(value))

		case isImage(value):
			literal := writeback.FormatLiteral(e.assetURL(value))
			if strings.HasSuffix(m.Path, "."+urlSuffix) {
				res.apply(log, m.Field, m.Path, PolicyImage, literal)
				break
			}
			res.applyAt(log, m.Field, m.Path+"."+urlSuffix, PolicyImage, literal, func(text string) (writeback.Match, bool) {
				return writeback.LocateNested(text, m.Path, urlSuffix)
			})

		default:
			res.apply(log, m.Field, m.Path, PolicyScalar, writeback.FormatLiteral(value))
		}
	}

	if e.Tier.Valid() {
		res.apply(log, "", api.TierPath, PolicyTier, writeback.FormatValue(e.Tier))
	}
	return res
}

// apply rewrites the first exact assignment to path, or records a warning.
func (r *Result) apply(log *zap.Logger, field, path string, policy Policy, literal string) {
	r.applyAt(log, field, path, policy, literal, func(text string) (writeback.Match, bool) {
		return writeback.LocateExact(text, path)
	})
}

// applyAt rewrites the assignment found by locate; path names it in the
// change or warning.
func (r *Result) applyAt(log *zap.Logger, field, path string, policy Policy, literal string, locate func(string) (writeback.Match, bool)) {
	m, ok := locate(r.Text)
	if !ok {
		r.warn(log, field, path, "variable not found in Dynamic.js")
		return
	}
	text, err := writeback.ReplaceValue(r.Text, m, literal)
	if err != nil {
		r.warn(log, field, path, err.Error())
		return
	}
	r.Text = text
	r.Changes = append(r.Changes, Change{
		Field:  field,
		Path:   path,
		Line:   m.Line,
		Policy: policy,
		Old:    m.Value,
		New:    literal,
	})
}

func (r *Result) warn(log *zap.Logger, field, path, msg string) {
	log.Warn(msg, zap.String("field", field), zap.String("path", path))
	r.Warnings = append(r.Warnings, api.Warning{Field: field, Path: path, Message: msg})
}

func isImage(value string) bool {
	v := strings.TrimSpace(value)
	for _, s := range imageSuffixes {
		if strings.HasSuffix(v, s) {
			return true
		}
	}
	return false
}

// assetURL returns the trimmed image value, prefixed with the base asset
// path unless it is already absolute.
func (e *Engine) assetURL(value string) string {
	v := strings.TrimSpace(value)
	if e.BaseAssetPath == "" || strings.HasPrefix(v, "http") {
		return v
	}
	return JoinAssetPath(e.BaseAssetPath, v)
}

// JoinAssetPath joins base and name with exactly one '/' between them.
func JoinAssetPath(base, name string) string {
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(name, "/"):
		return base + name[1:]
	case strings.HasSuffix(base, "/") || strings.HasPrefix(name, "/"):
		return base + name
	default:
		return base + "/" + name
	}
}
