package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// argKind mirrors the handful of popt(3) POPT_ARG_* constants this
// package's option tables actually use.
type argKind int

const (
	POPT_ARG_NONE argKind = iota
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_ARG_VAL
	POPT_BIT_SET
)

// poptOption is one row of an option table, in the same field order the
// table() methods build their composite literals in.
type poptOption struct {
	longName  string
	shortName string
	argInfo   argKind
	arg       any
	val       int
}

// Errno values returned in a *PoptError, named after the subset of
// popt(3)'s own error codes this parser needs to distinguish.
const (
	POPT_ERROR_BADOPT    = -7
	POPT_ERROR_NOARG     = -8
	POPT_ERROR_BADNUMBER = -9
)

// PoptError is returned by poptGetNextOpt when an argument cannot be
// parsed against the active option table.
type PoptError struct {
	Errno      int
	Option     string
	DaemonMode bool
}

func (e *PoptError) Error() string {
	switch e.Errno {
	case POPT_ERROR_NOARG:
		return fmt.Sprintf("option %q requires an argument", e.Option)
	case POPT_ERROR_BADNUMBER:
		return fmt.Sprintf("option %q expects a numeric argument", e.Option)
	default:
		return fmt.Sprintf("invalid option %q", e.Option)
	}
}

// Context holds the state of one command-line parse: the option table in
// effect, the remaining input, and the non-option arguments accumulated
// so far. ParseArguments constructs one (and, for --daemon, a second
// nested one with the daemon option table swapped in).
type Context struct {
	Options *Options

	table []poptOption
	args  []string
	pos   int

	// pendingShort holds the not-yet-processed tail of a bundled short
	// option group, e.g. "vz" after consuming "-a" out of "-avz".
	pendingShort string

	// lastArg is the string value most recently consumed by a
	// POPT_ARG_STRING/POPT_ARG_INT option with a nil destination,
	// retrievable via poptGetOptArg for the handful of callers (--info,
	// --debug) that need the raw text rather than an auto-applied field.
	lastArg string

	RemainingArgs []string
}

func findOption(table []poptOption, long, short string) (poptOption, bool) {
	if short != "" {
		for _, o := range table {
			if o.shortName == short {
				return o, true
			}
		}
	}
	if long != "" {
		for _, o := range table {
			if o.longName == long {
				return o, true
			}
		}
	}
	return poptOption{}, false
}

// poptGetOptArg returns the string argument most recently consumed by a
// POPT_ARG_STRING option whose destination pointer is nil, i.e. one that
// the caller's switch statement handles itself rather than having popt
// auto-apply it to a struct field.
func (pc *Context) poptGetOptArg() string {
	return pc.lastArg
}

// poptGetNextOpt advances through pc.args, applying every option whose
// table entry carries a non-nil destination pointer directly (auto-apply,
// matching popt(3)'s own behavior of not returning those to the caller),
// and returning to the caller only for:
//
//   - an option whose destination pointer is nil, identified by its val
//   - -1, once every argument has been consumed
//
// Non-option arguments are appended to pc.RemainingArgs and skipped.
func (pc *Context) poptGetNextOpt() (int, error) {
	for {
		opt, argText, err := pc.nextOption()
		if err != nil {
			return 0, err
		}
		if opt == nil {
			return -1, nil
		}

		switch opt.argInfo {
		case POPT_ARG_NONE:
			if opt.arg != nil {
				p, ok := opt.arg.(*int)
				if ok {
					*p++
				}
				continue
			}
			return opt.val, nil

		case POPT_ARG_VAL:
			if p, ok := opt.arg.(*int); ok {
				*p = opt.val
			}
			continue

		case POPT_BIT_SET:
			if p, ok := opt.arg.(*int); ok {
				*p |= opt.val
			}
			continue

		case POPT_ARG_STRING:
			pc.lastArg = argText
			if p, ok := opt.arg.(*string); ok {
				*p = argText
				continue
			}
			return opt.val, nil

		case POPT_ARG_INT:
			n, convErr := strconv.Atoi(argText)
			if convErr != nil {
				return 0, &PoptError{Errno: POPT_ERROR_BADNUMBER, Option: optionLabel(*opt)}
			}
			pc.lastArg = argText
			if p, ok := opt.arg.(*int); ok {
				*p = n
				continue
			}
			return opt.val, nil

		default:
			return 0, fmt.Errorf("rsyncopts: unknown argInfo %v for option %q", opt.argInfo, optionLabel(*opt))
		}
	}
}

func optionLabel(opt poptOption) string {
	if opt.longName != "" {
		return "--" + opt.longName
	}
	return "-" + opt.shortName
}

// nextOption consumes one option token (a whole long option, or the next
// letter out of a bundled short-option group) from pc.args and resolves
// it against pc.table, returning the matched entry and, for string/int
// options, the consumed argument text. It returns (nil, "", nil) once
// there is nothing left to parse.
func (pc *Context) nextOption() (*poptOption, string, error) {
	for {
		if pc.pendingShort != "" {
			c := pc.pendingShort[:1]
			rest := pc.pendingShort[1:]
			opt, ok := findOption(pc.table, "", c)
			if !ok {
				pc.pendingShort = ""
				return nil, "", &PoptError{Errno: POPT_ERROR_BADOPT, Option: "-" + c}
			}
			if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
				pc.pendingShort = ""
				if rest != "" {
					return &opt, rest, nil
				}
				if pc.pos >= len(pc.args) {
					return nil, "", &PoptError{Errno: POPT_ERROR_NOARG, Option: "-" + c}
				}
				arg := pc.args[pc.pos]
				pc.pos++
				return &opt, arg, nil
			}
			pc.pendingShort = rest
			return &opt, "", nil
		}

		if pc.pos >= len(pc.args) {
			return nil, "", nil
		}

		tok := pc.args[pc.pos]

		if tok == "--" {
			pc.pos++
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			continue
		}

		if tok == "-" || !strings.HasPrefix(tok, "-") {
			pc.RemainingArgs = append(pc.RemainingArgs, tok)
			pc.pos++
			continue
		}

		pc.pos++

		if strings.HasPrefix(tok, "--") {
			name := tok[2:]
			inline, hasInline := "", false
			if i := strings.IndexByte(name, '='); i >= 0 {
				inline = name[i+1:]
				name = name[:i]
				hasInline = true
			}
			opt, ok := findOption(pc.table, name, "")
			if !ok {
				return nil, "", &PoptError{Errno: POPT_ERROR_BADOPT, Option: tok}
			}
			if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
				if hasInline {
					return &opt, inline, nil
				}
				if pc.pos >= len(pc.args) {
					return nil, "", &PoptError{Errno: POPT_ERROR_NOARG, Option: tok}
				}
				arg := pc.args[pc.pos]
				pc.pos++
				return &opt, arg, nil
			}
			return &opt, "", nil
		}

		// Bundled short option(s), e.g. "-avz".
		pc.pendingShort = tok[1:]
	}
}
