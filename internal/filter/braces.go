package filter

import "strings"

// MaxParseDepth bounds merge-file recursion so mutually-including
// filter files cannot recurse unboundedly.
const MaxParseDepth = 64

// MaxBraceExpansions bounds the total number of patterns a single rule
// may expand into.
const MaxBraceExpansions = 10000

// expandBraces expands shell-style {a,b,c} groups in pattern,
// recursively, charging every expansion against budget so that
// pathological nested patterns fail with ErrTooManyExpansions rather
// than exhausting memory.
func expandBraces(pattern string, budget *int) ([]string, error) {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}, nil
	}
	depth := 0
	end := -1
	for i := start; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return []string{pattern}, nil
	}

	prefix, inner, suffix := pattern[:start], pattern[start+1:end], pattern[end+1:]
	parts := splitTopLevel(inner, ',')

	var out []string
	for _, part := range parts {
		*budget++
		if *budget > MaxBraceExpansions {
			return nil, &ParseError{Kind: ErrTooManyExpansions}
		}
		out = append(out, prefix+part+suffix)
	}

	var final []string
	for _, o := range out {
		sub, err := expandBraces(o, budget)
		if err != nil {
			return nil, err
		}
		final = append(final, sub...)
	}
	return final, nil
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		default:
			if s[i] == sep && depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}
