package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// stringLiteral decodes a Python string node. Byte strings and f-strings
// with interpolations are not literal paths.
func stringLiteral(n *sitter.Node, src []byte) (string, bool) {
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		if n.NamedChild(i).Type() == "interpolation" {
			return "", false
		}
	}
	return decodeStringLiteral(n.Content(src))
}

// decodeStringLiteral strips the prefix and quotes from a Python string
// token and processes escapes for non-raw strings.
func decodeStringLiteral(tok string) (string, bool) {
	i := 0
	raw, format := false, false
	for i < len(tok) && strings.ContainsRune("rRbBuUfF", rune(tok[i])) {
		switch tok[i] {
		case 'b', 'B':
			return "", false
		case 'r', 'R':
			raw = true
		case 'f', 'F':
			format = true
		}
		i++
	}
	body := tok[i:]

	var quote string
	switch {
	case strings.HasPrefix(body, `"""`), strings.HasPrefix(body, `'''`):
		quote = body[:3]
	case strings.HasPrefix(body, `"`), strings.HasPrefix(body, `'`):
		quote = body[:1]
	default:
		return "", false
	}
	if len(body) < 2*len(quote) || !strings.HasSuffix(body, quote) {
		return "", false
	}
	body = body[len(quote) : len(body)-len(quote)]

	if format {
		body = strings.NewReplacer("{{", "{", "}}", "}").Replace(body)
	}
	if raw {
		return body, true
	}
	return unescape(body), true
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\n':
			// line continuation
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
