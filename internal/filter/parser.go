package filter

import "strings"

// Opener resolves a merge-file reference (from "." or ":"/":+"/":-"
// rules) to its contents, keyed by whatever path string the rule
// carries (absolute-ification is the caller's concern).
type Opener func(path string) ([]byte, error)

type parseState struct {
	depth      int
	stack      map[string]bool
	open       Opener
	expansions int
}

// Parse parses a filter rule list from data. open
// resolves one-time ("." FILE) merges inline; per-directory merges
// (":" FILE) are left as RuleDirMerge entries for the matcher to load
// lazily as it descends the tree.
func Parse(data []byte, open Opener) ([]Rule, error) {
	st := &parseState{stack: map[string]bool{}, open: open}
	return parseRules(data, st)
}

func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' {
			i++
			continue
		}
		if line[i] == '#' {
			return line[:i]
		}
	}
	return line
}

// unescape resolves backslash escapes: any "\X" becomes the literal
// byte X.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func parseRules(data []byte, st *parseState) ([]Rule, error) {
	if st.depth > MaxParseDepth {
		return nil, &ParseError{Kind: ErrRecursionLimit}
	}

	var rules []Rule
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}

		switch {
		case line == "!":
			rules = append(rules, Rule{Kind: RuleClear})

		case line == "-C":
			rules = append(rules, cvsDefaultRules()...)

		case strings.HasPrefix(line, "+"):
			rs, err := parseGlobRule(line[1:], RuleInclude, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "-"):
			rs, err := parseGlobRule(line[1:], RuleExclude, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "protect "):
			rs, err := parseGlobRule(strings.TrimPrefix(line, "protect "), RuleProtect, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "risk "):
			rs, err := parseGlobRule(strings.TrimPrefix(line, "risk "), RuleRisk, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "show "):
			rs, err := parseGlobRule(strings.TrimPrefix(line, "show "), RuleShow, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "hide "):
			rs, err := parseGlobRule(strings.TrimPrefix(line, "hide "), RuleHide, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "include "):
			rs, err := parseGlobRule(strings.TrimPrefix(line, "include "), RuleInclude, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "exclude "):
			rs, err := parseGlobRule(strings.TrimPrefix(line, "exclude "), RuleExclude, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rs...)

		case strings.HasPrefix(line, "dir-merge "):
			file := strings.TrimSpace(strings.TrimPrefix(line, "dir-merge "))
			rules = append(rules, Rule{Kind: RuleDirMerge, MergeFile: file, Inherit: true, ForceSign: RuleClear})

		case strings.HasPrefix(line, "merge "):
			file := strings.TrimSpace(strings.TrimPrefix(line, "merge "))
			sub, err := loadMerge(file, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, sub...)

		case strings.HasPrefix(line, ":"):
			rules = append(rules, parseDirMerge(line))

		case strings.HasPrefix(line, "."):
			file := strings.TrimSpace(line[1:])
			sub, err := loadMerge(file, st)
			if err != nil {
				return nil, err
			}
			rules = append(rules, sub...)

		default:
			return nil, &ParseError{Kind: ErrInvalidRule, Path: line}
		}
	}
	return rules, nil
}

func loadMerge(file string, st *parseState) ([]Rule, error) {
	if st.open == nil {
		return nil, &ParseError{Kind: ErrIo, Path: file}
	}
	if st.stack[file] {
		return nil, &ParseError{Kind: ErrRecursiveInclude, Path: file}
	}
	content, err := st.open(file)
	if err != nil {
		return nil, &ParseError{Kind: ErrIo, Path: file, Err: err}
	}
	st.stack[file] = true
	st.depth++
	sub, err := parseRules(content, st)
	st.depth--
	delete(st.stack, file)
	return sub, err
}

// parseGlobRule handles the modifier letters that may directly follow
// a "+"/"-"/"protect"/"risk" sigil (no intervening space) before the
// pattern: 'p' perishable, 'i' case-insensitive, '!' negated. The
// modifier run only counts as such when it ends at whitespace;
// otherwise the whole rest is the pattern, so that "+ index.html"
// does not lose its leading 'i' to modifier parsing.
func parseGlobRule(rest string, kind RuleKind, st *parseState) ([]Rule, error) {
	var perishable, caseInsensitive, negated bool
	if i := strings.IndexAny(rest, " \t"); i > 0 {
		mods := rest[:i]
		valid := true
		for _, c := range mods {
			switch c {
			case 'p', 'i', '!', ',':
			default:
				valid = false
			}
		}
		if valid {
			for _, c := range mods {
				switch c {
				case 'p':
					perishable = true
				case 'i':
					caseInsensitive = true
				case '!':
					negated = true
				}
			}
			rest = rest[i:]
		}
	}
	pattern := unescape(strings.TrimLeft(rest, " \t"))
	if pattern == "" {
		return nil, &ParseError{Kind: ErrInvalidRule, Path: rest}
	}

	expansions, err := expandBraces(pattern, &st.expansions)
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(expansions))
	for _, p := range expansions {
		r := newGlobRule(kind, p)
		r.Perishable = perishable
		r.CaseInsensitive = caseInsensitive
		r.Negated = negated
		rules = append(rules, r)
	}
	return rules, nil
}

// parseDirMerge handles ":" / ":+" / ":-" per-directory merge rules.
func parseDirMerge(line string) Rule {
	rest := line[1:]
	sign := RuleClear // unset: rules inside the merge file keep their own +/- sigil
	if strings.HasPrefix(rest, "+") {
		sign = RuleInclude
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "-") {
		sign = RuleExclude
		rest = rest[1:]
	}
	inherit := true
	for len(rest) > 0 && rest[0] != ' ' {
		if rest[0] == 'n' {
			inherit = false
		}
		rest = rest[1:]
	}
	file := strings.TrimSpace(rest)
	return Rule{Kind: RuleDirMerge, MergeFile: file, Inherit: inherit, ForceSign: sign}
}
