package writeback

import (
	"regexp"
	"strings"
)

// Kind classifies how an assignment line relates to the searched path.
type Kind int

const (
	// Exact is an assignment to exactly the searched path.
	Exact Kind = iota
	// Nested is an assignment to a longer path that starts with the searched
	// path followed by a further .segment or [index].
	Nested
)

func (k Kind) String() string {
	if k == Nested {
		return "nested"
	}
	return "exact"
}

// Match describes one assignment line found by Locate. Offsets are byte
// offsets into the searched source.
type Match struct {
	Kind Kind
	Line int // zero-based line index

	LineStart int
	LineEnd   int // excludes the line terminator

	// LHS is the line text preceding the '='.
	LHS string
	// Target is the full assigned path (equal to the searched path for Exact).
	Target string
	// Value is the right-hand side literal as written, without terminator.
	Value string

	// ValueStart/ValueEnd delimit the span replaced on rewrite. ValueEnd
	// includes the statement's ';' when present.
	ValueStart int
	ValueEnd   int
}

// Anything that can continue an identifier or member chain. A path preceded
// by one of these is part of some other expression.
const boundaryClass = `[^A-Za-z0-9_$.]`

// member chain after a prefix: .ident or [index], repeated.
const memberChain = `(?:\.[A-Za-z_$][A-Za-z0-9_$]*|\[[^\]]*\])+`

func exactPattern(path string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|` + boundaryClass + `)(` + regexp.QuoteMeta(path) + `)\s*=`)
}

func nestedPattern(path string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|` + boundaryClass + `)(` + regexp.QuoteMeta(path) + memberChain + `)\s*=`)
}

// Locate scans src line by line and returns every assignment to path, both
// exact and nested, in source order. Comparisons ("==", "===") are not
// assignments and are skipped.
func Locate(src, path string) []Match {
	if path == "" {
		return nil
	}
	exact := exactPattern(path)
	nested := nestedPattern(path)

	var out []Match
	forEachLine(src, func(lineNo, start, end int) {
		line := src[start:end]
		if !strings.Contains(line, path) {
			return
		}
		if m, ok := matchLine(exact, line); ok {
			out = append(out, buildMatch(Exact, lineNo, start, end, line, m))
			return
		}
		if m, ok := matchLine(nested, line); ok {
			out = append(out, buildMatch(Nested, lineNo, start, end, line, m))
		}
	})
	return out
}

// LocateExact returns the first exact assignment to path.
func LocateExact(src, path string) (Match, bool) {
	if path == "" {
		return Match{}, false
	}
	re := exactPattern(path)
	var (
		found Match
		ok    bool
	)
	forEachLine(src, func(lineNo, start, end int) {
		if ok {
			return
		}
		line := src[start:end]
		if !strings.Contains(line, path) {
			return
		}
		if m, hit := matchLine(re, line); hit {
			found, ok = buildMatch(Exact, lineNo, start, end, line, m), true
		}
	})
	return found, ok
}

// LocateNested returns the first exact assignment to path.suffix, e.g. the
// ".Url" field of an image variable.
func LocateNested(src, path, suffix string) (Match, bool) {
	return LocateExact(src, path+"."+suffix)
}

// matchLine returns the submatch indexes of the first real assignment on the
// line: the char after '=' must not be another '='.
func matchLine(re *regexp.Regexp, line string) ([]int, bool) {
	for _, m := range re.FindAllStringSubmatchIndex(line, -1) {
		eq := m[1] - 1
		if eq+1 < len(line) && line[eq+1] == '=' {
			continue
		}
		return m, true
	}
	return nil, false
}

func buildMatch(kind Kind, lineNo, start, end int, line string, m []int) Match {
	eq := m[1] - 1
	vs, vEnd, stmtEnd := valueSpan(line, eq+1)
	return Match{
		Kind:       kind,
		Line:       lineNo,
		LineStart:  start,
		LineEnd:    end,
		LHS:        line[:eq],
		Target:     line[m[2]:m[3]],
		Value:      strings.TrimSpace(line[vs:vEnd]),
		ValueStart: start + vs,
		ValueEnd:   start + stmtEnd,
	}
}

// valueSpan finds the right-hand value starting at from. Quoted values run to
// the matching unescaped quote; anything else runs to the first ';', the
// start of a "//" or "/*" comment, or the end of the line. stmtEnd additionally covers a trailing ';'.
func valueSpan(line string, from int) (valStart, valEnd, stmtEnd int) {
	i := from
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	valStart = i
	if i >= len(line) {
		return valStart, valStart, valStart
	}

	switch q := line[i]; q {
	case '\'', '"', '`':
		j := i + 1
		for j < len(line) {
			if line[j] == '\\' {
				j += 2
				continue
			}
			if line[j] == q {
				break
			}
			j++
		}
		if j >= len(line) {
			end := len(strings.TrimRight(line, " \t"))
			return valStart, end, end
		}
		valEnd = j + 1
		k := valEnd
		for k < len(line) && (line[k] == ' ' || line[k] == '\t') {
			k++
		}
		if k < len(line) && line[k] == ';' {
			return valStart, valEnd, k + 1
		}
		return valStart, valEnd, valEnd
	default:
		rest := line[i:]
		cut := len(rest)
		if c := strings.Index(rest, "//"); c >= 0 {
			cut = c
		}
		if c := strings.Index(rest, "/*"); c >= 0 && c < cut {
			cut = c
		}
		if semi := strings.IndexByte(rest[:cut], ';'); semi >= 0 {
			return valStart, i + semi, i + semi + 1
		}
		// A trailing comment stays a comment.
		end := i + len(strings.TrimRight(rest[:cut], " \t"))
		return valStart, end, end
	}
}

// forEachLine calls fn with the byte range of every line in src, excluding
// "\n" and a preceding "\r".
func forEachLine(src string, fn func(lineNo, start, end int)) {
	start := 0
	for lineNo := 0; start <= len(src); lineNo++ {
		nl := strings.IndexByte(src[start:], '\n')
		end := len(src)
		next := len(src) + 1
		if nl >= 0 {
			end = start + nl
			next = end + 1
		}
		lineEnd := end
		if lineEnd > start && src[lineEnd-1] == '\r' {
			lineEnd--
		}
		fn(lineNo, start, lineEnd)
		start = next
	}
}

// ReplaceValue rewrites the value of m in src with literal, terminating the
// statement with ';'. Text after the original statement is preserved.
func ReplaceValue(src string, m Match, literal string) (string, error) {
	out, err := Splice([]byte(src), m.ValueStart, m.ValueEnd, []byte(literal+";"))
	if err != nil {
		return src, err
	}
	return string(out), nil
}
