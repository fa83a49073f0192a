package writeback

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// snippetLen bounds the source quoted in an "unexpected" message.
const snippetLen = 24

// ValidationError locates one syntax error in a JavaScript file.
type ValidationError struct {
	FilePath string
	Line     uint32 // 0-indexed
	Column   uint32 // 0-indexed
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error: %s", e.FilePath, e.Line+1, e.Column+1, e.Message)
}

// Validate returns the first syntax error of content, or nil. Only
// JavaScript files (.js, .mjs, .cjs) are checked.
func Validate(content []byte, filePath string) error {
	errs, err := syntaxErrors(content, filePath, 1)
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		return nil
	}
	return &errs[0]
}

// ASTErrors returns every syntax error of content in source order, or nil
// for valid or non-JavaScript files.
func ASTErrors(content []byte, filePath string) []ValidationError {
	errs, err := syntaxErrors(content, filePath, 0)
	if err != nil {
		return nil
	}
	return errs
}

// Regressed reports a syntax error in after only when before parsed
// cleanly. Rewriting a file that was already broken is not the rewrite's
// fault.
func Regressed(before, after []byte, filePath string) error {
	err := Validate(after, filePath)
	if err == nil {
		return nil
	}
	if Validate(before, filePath) != nil {
		return nil
	}
	return err
}

// syntaxErrors collects up to limit ERROR and MISSING nodes; limit 0 means
// all of them.
func syntaxErrors(content []byte, filePath string, limit int) ([]ValidationError, error) {
	lang := languageForPath(filePath)
	if lang == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("tree-sitter returned nil root for %s", filePath)
	}
	if !root.HasError() {
		return nil, nil
	}

	var errs []ValidationError
	var walk func(n *sitter.Node) bool
	walk = func(n *sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			errs = append(errs, ValidationError{
				FilePath: filePath,
				Line:     n.StartPoint().Row,
				Column:   n.StartPoint().Column,
				Message:  describe(n, content),
			})
			// Children of an ERROR node are the tokens it swallowed.
			return limit == 0 || len(errs) < limit
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if !child.HasError() && !child.IsError() && !child.IsMissing() {
				continue
			}
			if !walk(child) {
				return false
			}
		}
		return true
	}
	walk(root)

	if len(errs) == 0 {
		// HasError without a reachable node; report the whole file.
		errs = append(errs, ValidationError{FilePath: filePath, Message: "file does not parse"})
	}
	return errs, nil
}

func describe(n *sitter.Node, content []byte) string {
	if n.IsMissing() {
		return fmt.Sprintf("missing %q", n.Type())
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint32(len(content)) || start >= end {
		return "unexpected input"
	}
	text := string(content[start:end])
	if nl := strings.IndexAny(text, "\r\n"); nl >= 0 {
		text = text[:nl]
	}
	if len(text) > snippetLen {
		text = text[:snippetLen] + "..."
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "unexpected input"
	}
	return fmt.Sprintf("unexpected %q", text)
}

func languageForPath(filePath string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".js", ".mjs", ".cjs":
		return javascript.GetLanguage()
	default:
		return nil
	}
}
