package cellscope

import (
	"strings"
	"unicode"
)

// ScanMarkers collects the names declared by %put (exports) and %get
// (imports) lines. Options such as --from R or --to Python are skipped along
// with their argument; other dash options are skipped alone.
func ScanMarkers(source string) (exports, imports Set) {
	exports, imports = NewSet(), NewSet()
	for _, line := range strings.Split(source, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		var into Set
		switch fields[0] {
		case "%put":
			into = exports
		case "%get":
			into = imports
		default:
			continue
		}
		for i := 1; i < len(fields); i++ {
			tok := fields[i]
			if tok == "--from" || tok == "--to" {
				i++
				continue
			}
			if strings.HasPrefix(tok, "-") {
				continue
			}
			if isIdentifier(tok) {
				into.Add(tok)
			}
		}
	}
	return exports, imports
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
