package trigger

import "strings"

// globMatch matches a path or branch name against a filter pattern.
// Supported syntax: "*" matches within a segment, "**" matches across
// segments, "?" matches one character. A pattern without wildcards
// must match exactly.
func globMatch(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			// Collapse consecutive ** segments.
			for len(pattern) > 0 && pattern[0] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchSegments(pattern, name[i:]) {
					return true
				}
			}
			return false
		}

		if len(name) == 0 || !matchSegment(pattern[0], name[0]) {
			return false
		}
		pattern = pattern[1:]
		name = name[1:]
	}
	return len(name) == 0
}

// matchSegment matches a single segment with * and ? wildcards.
func matchSegment(pattern, s string) bool {
	var p, n int
	starP, starN := -1, 0

	for n < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[n]):
			p++
			n++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starN = n
			p++
		case starP != -1:
			starN++
			p = starP + 1
			n = starN
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// anyGlobMatch reports whether any pattern matches the name.
func anyGlobMatch(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if globMatch(pattern, name) {
			return true
		}
	}
	return false
}
