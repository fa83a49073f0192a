// Package mapping discovers the devDynamicContent variables of a Dynamic.js
// and suggests which data column should feed each of them.
package mapping

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Root is the object every template variable hangs off.
const Root = "devDynamicContent"

// assignmentQuery captures the target and value of every assignment whose
// left side is a member or subscript access.
const assignmentQuery = `(assignment_expression
  left: [(member_expression) (subscript_expression)] @lhs
  right: (_) @rhs) @scope`

// Assignment is one devDynamicContent assignment found in the source.
type Assignment struct {
	// Path is the assigned target with whitespace removed.
	Path string `json:"path"`
	// Value is the right-hand side as written.
	Value string `json:"value"`
	// StartLine and EndLine are zero-based; they differ for assignments that
	// span several lines.
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// MultiLine reports whether the assignment statement spans lines.
func (a Assignment) MultiLine() bool { return a.EndLine != a.StartLine }

// Assignments parses src as JavaScript and returns every assignment to a
// devDynamicContent path, in source order. Parse errors do not stop the
// scan; the parts of the file tree-sitter could recover are still searched.
func Assignments(src []byte) ([]Assignment, error) {
	lang := javascript.GetLanguage()
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse javascript: %w", err)
	}

	q, err := sitter.NewQuery([]byte(assignmentQuery), lang)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var out []Assignment
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var a Assignment
		for _, c := range m.Captures {
			text := nodeText(c.Node, src)
			switch q.CaptureNameForId(c.Index) {
			case "lhs":
				a.Path = compact(text)
			case "rhs":
				a.Value = text
			case "scope":
				a.StartLine = int(c.Node.StartPoint().Row)
				a.EndLine = int(c.Node.EndPoint().Row)
			}
		}
		if a.Path == Root || strings.HasPrefix(a.Path, Root+".") || strings.HasPrefix(a.Path, Root+"[") {
			out = append(out, a)
		}
	}
	return out, nil
}

// Variables returns the distinct devDynamicContent assignment targets of src
// in order of first appearance.
func Variables(src []byte) ([]string, error) {
	assigns, err := Assignments(src)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(assigns))
	var out []string
	for _, a := range assigns {
		if seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		out = append(out, a.Path)
	}
	return out, nil
}

func nodeText(n *sitter.Node, src []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if start < uint32(len(src)) && end <= uint32(len(src)) {
		return string(src[start:end])
	}
	return ""
}

// compact drops whitespace so "a . b" and "a.b" name the same path.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// LastSegment returns the final property name of a path, ignoring trailing
// index accesses: "devDynamicContent.parent[0].headline" -> "headline".
func LastSegment(path string) string {
	for strings.HasSuffix(path, "]") {
		open := strings.LastIndexByte(path, '[')
		if open < 0 {
			break
		}
		path = path[:open]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
