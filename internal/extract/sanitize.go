package extract

import "strings"

// directivePrefixes mark interactive lines (magics, shell escapes, help)
// that are not Python.
const directivePrefixes = "%!?"

// Sanitize blanks every line whose first non-blank character is a directive
// marker. Lines are replaced, not removed, so positions stay stable.
func Sanitize(source string) string {
	if !strings.ContainsAny(source, directivePrefixes) {
		return source
	}
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		if IsDirective(line) {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// IsDirective reports whether line is an interactive directive.
func IsDirective(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return trimmed != "" && strings.ContainsRune(directivePrefixes, rune(trimmed[0]))
}

// StripMarkers blanks only the %put and %get hand-off lines, leaving every
// other line of a non-Python cell intact.
func StripMarkers(source string) string {
	if !strings.Contains(source, "%put") && !strings.Contains(source, "%get") {
		return source
	}
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		if IsMarker(line) {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// IsMarker reports whether line is a %put or %get hand-off marker.
func IsMarker(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && (fields[0] == "%put" || fields[0] == "%get")
}
