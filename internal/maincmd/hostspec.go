package maincmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// errNotHostspec signals that an argument is a plain local path, not a
// remote host specification.
var errNotHostspec = errors.New("not a host specification")

// checkForHostspec parses arg as one of the three forms rsync accepts for
// a remote endpoint:
//
//	rsync://[user@]host[:port]/module/path  (daemon via socket)
//	host::module/path                       (daemon via socket)
//	host:path                               (remote shell; port 0 means
//	                                          "no daemon involved yet")
//
// rsync/main.c:make_remote, distilled to recognize the three input
// shapes without involving argv mutation. A single-letter host before a
// lone ':' is rejected so a Windows-style drive letter ("C:\foo") is not
// mistaken for a hostspec.
func checkForHostspec(arg string) (host, path string, port int, err error) {
	if strings.HasPrefix(arg, "rsync://") {
		u, uerr := url.Parse(arg)
		if uerr != nil {
			return "", "", 0, fmt.Errorf("%w: %v", errNotHostspec, uerr)
		}
		host = u.Hostname()
		if u.User != nil {
			host = u.User.Username() + "@" + host
		}
		port = 873
		if p := u.Port(); p != "" {
			n, perr := strconv.Atoi(p)
			if perr != nil {
				return "", "", 0, fmt.Errorf("%w: invalid port %q", errNotHostspec, p)
			}
			port = n
		}
		return host, strings.TrimPrefix(u.Path, "/"), port, nil
	}

	if idx := strings.Index(arg, "::"); idx > -1 {
		host = arg[:idx]
		if len(host) <= 1 {
			return "", "", 0, errNotHostspec
		}
		return host, arg[idx+2:], 873, nil
	}

	if idx := strings.IndexByte(arg, ':'); idx > -1 {
		host = arg[:idx]
		if len(host) <= 1 {
			// Likely a Windows drive letter, not a hostspec.
			return "", "", 0, errNotHostspec
		}
		return host, arg[idx+1:], 0, nil
	}

	return "", "", 0, errNotHostspec
}
