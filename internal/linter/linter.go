package linter

import (
	"fmt"
	"sort"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/writeback"
)

// Rule names.
const (
	RuleSyntax    = "syntax"
	RuleMultiLine = "multi-line"
	RuleDuplicate = "duplicate"
	// RuleShadowed flags an assignment that the line rewriter would miss in
	// favour of an earlier line, typically a commented-out copy.
	RuleShadowed = "shadowed"
	// RuleUnlocatable flags an assignment the line rewriter cannot find,
	// e.g. because of whitespace inside the path.
	RuleUnlocatable = "unlocatable"
)

type Diagnostic struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Line    uint32 `json:"line"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line+1, d.Message)
}

// Lint checks a Dynamic.js for constructs the rewriter cannot handle.
// Diagnostics are ordered by line.
func Lint(content []byte) ([]Diagnostic, error) {
	var diags []Diagnostic

	for _, e := range writeback.ASTErrors(content, "Dynamic.js") {
		diags = append(diags, Diagnostic{
			Rule:    RuleSyntax,
			Message: fmt.Sprintf("Syntax error: %s.", e.Message),
			Line:    e.Line,
		})
	}

	assigns, err := mapping.Assignments(content)
	if err != nil {
		return nil, err
	}

	first := make(map[string]int, len(assigns))
	for _, a := range assigns {
		if a.MultiLine() {
			diags = append(diags, Diagnostic{
				Rule:    RuleMultiLine,
				Message: fmt.Sprintf("Assignment to %s spans lines %d-%d. Only single-line assignments are rewritten.", a.Path, a.StartLine+1, a.EndLine+1),
				Path:    a.Path,
				Line:    uint32(a.StartLine),
			})
		}
		if line, dup := first[a.Path]; dup {
			diags = append(diags, Diagnostic{
				Rule:    RuleDuplicate,
				Message: fmt.Sprintf("%s is already assigned on line %d. Only the first assignment is rewritten.", a.Path, line+1),
				Path:    a.Path,
				Line:    uint32(a.StartLine),
			})
			continue
		}
		first[a.Path] = a.StartLine
		diags = append(diags, locate(string(content), a)...)
	}

	sort.SliceStable(diags, func(i, j int) bool { return diags[i].Line < diags[j].Line })
	return diags, nil
}

// locate compares the first assignment tree-sitter found with the one the
// line rewriter would pick.
func locate(src string, a mapping.Assignment) []Diagnostic {
	var exact []writeback.Match
	for _, m := range writeback.Locate(src, a.Path) {
		if m.Kind == writeback.Exact {
			exact = append(exact, m)
		}
	}
	if len(exact) == 0 {
		return []Diagnostic{{
			Rule:    RuleUnlocatable,
			Message: fmt.Sprintf("Assignment to %s is not written as \"%s = value;\" and is never rewritten.", a.Path, a.Path),
			Path:    a.Path,
			Line:    uint32(a.StartLine),
		}}
	}
	if exact[0].Line < a.StartLine {
		return []Diagnostic{{
			Rule:    RuleShadowed,
			Message: fmt.Sprintf("Line %d looks like an assignment to %s and is rewritten instead of line %d.", exact[0].Line+1, a.Path, a.StartLine+1),
			Path:    a.Path,
			Line:    uint32(exact[0].Line),
		}}
	}
	return nil
}
