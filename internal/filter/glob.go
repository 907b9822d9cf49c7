package filter

import "strings"

// matchGlob matches name (a '/'-separated relative path) against
// pattern, with '*' confined to one path segment, '**' crossing
// segment boundaries, '?' matching one byte, and '[...]' character
// classes.
func matchGlob(pattern, name string, caseInsensitive bool) bool {
	if caseInsensitive {
		pattern = strings.ToLower(pattern)
		name = strings.ToLower(name)
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	if pat[0] == "**" {
		if len(pat) == 1 {
			return true
		}
		for i := 0; i <= len(name); i++ {
			if matchSegments(pat[1:], name[i:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	if !matchSegment(pat[0], name[0]) {
		return false
	}
	return matchSegments(pat[1:], name[1:])
}

// matchSegment matches a single path segment's glob against a single
// path segment's literal text (no '/' may appear in either).
func matchSegment(pat, s string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '*':
			for len(pat) > 0 && pat[0] == '*' {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchSegment(pat, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pat, s = pat[1:], s[1:]
		case '[':
			end := strings.IndexByte(pat, ']')
			if end < 0 {
				if len(s) == 0 || s[0] != '[' {
					return false
				}
				pat, s = pat[1:], s[1:]
				continue
			}
			if len(s) == 0 || !matchClass(pat[1:end], s[0]) {
				return false
			}
			pat, s = pat[end+1:], s[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			pat, s = pat[1:], s[1:]
		}
	}
	return len(s) == 0
}

func matchClass(class string, c byte) bool {
	neg := false
	if strings.HasPrefix(class, "!") || strings.HasPrefix(class, "^") {
		neg = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				matched = true
			}
			i += 2
		} else if class[i] == c {
			matched = true
		}
	}
	return matched != neg
}
