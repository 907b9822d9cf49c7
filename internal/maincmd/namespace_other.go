//go:build !linux || nonamespacing

package maincmd

import (
	"errors"

	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/rsyncd"
)

var errIsParent = errors.New("parent process after namespace re-exec")

// namespace is a no-op on platforms without mount namespaces.
func namespace(osenv *rsyncos.Env, modules []rsyncd.Module, listenAddr string) error {
	version(osenv)
	osenv.Logf("environment: namespacing not available on this platform")
	return nil
}
