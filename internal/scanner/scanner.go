// Package scanner decides whether a comment body contains an award token
// outside quoted or code regions. Tokens inside quotations must not count:
// quoting someone else's award is the common abuse pattern.
package scanner

import "strings"

// ContainsToken reports whether body contains any of the tokens on a line
// that is not part of a quoted or code block. A blank line ends a quoted
// block; an indented or blockquoted line starts one.
func ContainsToken(body string, tokens []string) bool {
	inQuote := false
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			inQuote = false
		}
		if inQuote {
			continue
		}
		if skippableLine(line) {
			inQuote = true
			continue
		}
		for _, token := range tokens {
			if token != "" && strings.Contains(line, token) {
				return true
			}
		}
	}
	return false
}

// skippableLine reports whether the line is part of a quote or code block:
// a 4-space indent, or a blockquote marker after optional leading spaces.
func skippableLine(line string) bool {
	if strings.HasPrefix(line, "    ") {
		return true
	}
	trimmed := strings.TrimLeft(line, " ")
	return strings.HasPrefix(trimmed, ">") || strings.HasPrefix(trimmed, "&gt;")
}
