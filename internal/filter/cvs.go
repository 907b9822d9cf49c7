package filter

// cvsDefaultPatterns mirrors rsync's built-in CVS ignore list, applied
// by a "-C" rule.
var cvsDefaultPatterns = []string{
	"RCS", "SCCS", "CVS", "CVS.adm", "RCSLOG", "cvslog.*", "tags", "TAGS",
	".make.state", ".nse_depinfo", "*~", "#*", ".#*", ",*", "_$*", "*$",
	"*.old", "*.bak", "*.BAK", "*.orig", "*.rej", ".del-*", "*.a", "*.olb",
	"*.o", "*.obj", "*.so", "*.exe", "*.Z", "*.elc", "*.ln", "core",
	".svn/", ".git/", ".hg/", ".bzr/",
}

func cvsDefaultRules() []Rule {
	rules := make([]Rule, 0, len(cvsDefaultPatterns))
	for _, p := range cvsDefaultPatterns {
		rules = append(rules, newGlobRule(RuleExclude, p))
	}
	return rules
}
