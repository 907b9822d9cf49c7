package filter

import "strings"

// MatchResult is the outcome of evaluating one candidate path against
// a Matcher's rule set.
type MatchResult struct {
	Include bool
	Matched bool // false when no rule matched and Include reflects the default
}

// Matcher evaluates candidate paths against an ordered rule list,
// lazily folding in per-directory merge files as the caller descends
// the tree.
type Matcher struct {
	rules    []Rule
	open     Opener
	dirRules map[string][]Rule
	loaded   map[string]bool
	Stats    Stats
}

// NewMatcher builds a Matcher from an already-parsed rule list,
// resolving "!" clear directives against the rules preceding them.
func NewMatcher(rules []Rule, open Opener) *Matcher {
	return &Matcher{
		rules:    applyClears(rules),
		open:     open,
		dirRules: make(map[string][]Rule),
		loaded:   make(map[string]bool),
	}
}

func applyClears(rules []Rule) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Kind == RuleClear {
			out = out[:0]
			continue
		}
		out = append(out, r)
	}
	return out
}

// EnterDir loads any not-yet-seen per-directory merge files declared
// by a RuleDirMerge entry for dir.
// A missing merge file is not an error: most directories have none.
func (m *Matcher) EnterDir(dir string) error {
	if m.loaded[dir] {
		return nil
	}
	m.loaded[dir] = true
	for _, r := range m.rules {
		if r.Kind != RuleDirMerge || m.open == nil {
			continue
		}
		path := r.MergeFile
		if dir != "" {
			path = dir + "/" + r.MergeFile
		}
		content, err := m.open(path)
		if err != nil {
			continue
		}
		sub, err := Parse(content, m.open)
		if err != nil {
			return err
		}
		if r.ForceSign == RuleInclude || r.ForceSign == RuleExclude {
			for i := range sub {
				if sub[i].Kind == RuleInclude || sub[i].Kind == RuleExclude {
					sub[i].Kind = r.ForceSign
				}
			}
		}
		m.dirRules[dir] = append(m.dirRules[dir], sub...)
	}
	return nil
}

func ancestorDirs(path string) []string {
	dirs := []string{""}
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts[:len(parts)-1] {
		if cur == "" {
			cur = p
		} else {
			cur = cur + "/" + p
		}
		dirs = append(dirs, cur)
	}
	return dirs
}

// effectiveRules splices every loaded ancestor directory's merge
// rules in at the position of the RuleDirMerge placeholder that
// declared them, nearest directory first so that a subdirectory's own
// filter file takes priority over one inherited from its parent.
func (m *Matcher) effectiveRules(path string) []Rule {
	ancestors := ancestorDirs(path)
	var out []Rule
	for _, r := range m.rules {
		if r.Kind != RuleDirMerge {
			out = append(out, r)
			continue
		}
		for i := len(ancestors) - 1; i >= 0; i-- {
			out = append(out, m.dirRules[ancestors[i]]...)
		}
	}
	return out
}

func ruleMatchesPath(r Rule, candidate string) bool {
	if r.Anchored {
		return matchGlob(r.Pattern, candidate, r.CaseInsensitive)
	}
	segs := strings.Split(candidate, "/")
	for i := range segs {
		if matchGlob(r.Pattern, strings.Join(segs[i:], "/"), r.CaseInsensitive) {
			return true
		}
	}
	return false
}

// Check evaluates path (root always included).
// forDelete skips perishable rules; xattr signals that path is
// actually an xattr name rather than a filesystem path.
func (m *Matcher) Check(path string, forDelete, xattr bool) (MatchResult, error) {
	clean := strings.Trim(path, "/")
	if clean == "" || clean == "." {
		return MatchResult{Include: true}, nil
	}
	isDir := strings.HasSuffix(path, "/")

	for _, r := range m.effectiveRules(clean) {
		// Protect/risk rules only speak to deletion decisions; hide/show
		// only to transfer decisions.
		var include bool
		switch r.Kind {
		case RuleInclude:
			include = true
		case RuleExclude:
		case RuleProtect:
			if !forDelete {
				continue
			}
		case RuleRisk:
			if !forDelete {
				continue
			}
			include = true
		case RuleHide:
			if forDelete {
				continue
			}
		case RuleShow:
			if forDelete {
				continue
			}
			include = true
		default:
			continue
		}
		if forDelete && r.Perishable {
			continue
		}
		if r.DirOnly && !xattr && !isDir {
			continue
		}
		matched := ruleMatchesPath(r, clean)
		if r.Negated {
			matched = !matched
		}
		if matched {
			m.Stats.record(path, true)
			return MatchResult{Include: include, Matched: true}, nil
		}
	}
	m.Stats.record(path, false)
	return MatchResult{Include: true}, nil
}

func (m *Matcher) IsIncluded(path string) (bool, error) {
	r, err := m.Check(path, false, false)
	return r.Include, err
}

func (m *Matcher) IsIncludedForDelete(path string) (bool, error) {
	r, err := m.Check(path, true, false)
	return r.Include, err
}

func (m *Matcher) IsXattrIncluded(name string) (bool, error) {
	r, err := m.Check(name, false, true)
	return r.Include, err
}

func (m *Matcher) IsXattrIncludedForDelete(name string) (bool, error) {
	r, err := m.Check(name, true, true)
	return r.Include, err
}
