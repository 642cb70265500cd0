// Package dupscan restores a thin slice of the duplicate-scanner pipeline:
// normalize extracted blocks, hash them, and cluster exact and near-exact
// duplicates for the "dupscan" CLI subcommand.
package dupscan

import "strings"

// Normalize strips comment-only and bare string-literal-only lines from a
// code block, leaving the code-bearing lines that drive hashing and fuzzy
// comparison. It does not attempt full tokenizer-level docstring detection;
// a line consisting only of a quoted string (the common single-line
// docstring shape) is treated the same as a comment-only line.
func Normalize(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if isBareStringLiteralLine(trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// isBareStringLiteralLine reports whether trimmed is nothing but a single
// quoted string literal (""", ''', ", or ' delimited), the shape a
// standalone docstring statement takes on its own line.
func isBareStringLiteralLine(trimmed string) bool {
	for _, quote := range []string{`"""`, `'''`} {
		if strings.HasPrefix(trimmed, quote) && strings.HasSuffix(trimmed, quote) && len(trimmed) >= 2*len(quote) {
			return true
		}
	}
	for _, quote := range []string{`"`, `'`} {
		if strings.HasPrefix(trimmed, quote) && strings.HasSuffix(trimmed, quote) && len(trimmed) >= 2 {
			return true
		}
	}
	return false
}
