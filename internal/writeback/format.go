package writeback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FormatLiteral renders s as a single-quoted JavaScript string literal that
// evaluates back to s. Escaping is delegated to the JSON string encoder, which
// already produces valid JS string syntax for backslashes, control characters,
// newlines and U+2028/U+2029; the result is then re-delimited with single quotes.
func FormatLiteral(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		// Encoding a Go string cannot fail; keep a safe literal regardless.
		return "''"
	}
	quoted := strings.TrimSuffix(buf.String(), "\n")
	inner := quoted[1 : len(quoted)-1]

	var b strings.Builder
	b.Grow(len(inner) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == '\\' && i+1 < len(inner):
			// Keep escape pairs intact, except \" which needs no escape
			// inside a single-quoted literal.
			if inner[i+1] == '"' {
				b.WriteByte('"')
			} else {
				b.WriteByte(c)
				b.WriteByte(inner[i+1])
			}
			i++
		case c == '\'':
			b.WriteString(`\'`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// FormatValue stringifies v and formats it with FormatLiteral. A nil value
// becomes the empty literal ''. Numbers and booleans are still emitted as
// strings.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "''"
	case string:
		return FormatLiteral(x)
	case *string:
		if x == nil {
			return "''"
		}
		return FormatLiteral(*x)
	case []byte:
		return FormatLiteral(string(x))
	case fmt.Stringer:
		return FormatLiteral(x.String())
	default:
		return FormatLiteral(fmt.Sprint(x))
	}
}
