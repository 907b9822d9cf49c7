//go:build linux && !nonamespacing

package maincmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/rsyncd"
)

// errIsParent is returned by namespace in the parent process after the
// namespaced child has run to completion; the caller returns without
// serving, since the child already did.
var errIsParent = errors.New("parent process after namespace re-exec")

const namespaceEnv = "OCRSYNC_NAMESPACE"

// namespace isolates the daemon from the rest of the file system: when
// running as root, the process re-executes itself in a fresh mount
// namespace and, in the child, drops privileges to nobody before
// serving. Without root there is nothing to drop and no namespace to
// unshare, so the process serves directly.
func namespace(osenv *rsyncos.Env, modules []rsyncd.Module, listenAddr string) error {
	if os.Getenv(namespaceEnv) == "1" {
		version(osenv)
		osenv.Logf("environment: namespaced child process, serving %d modules on %s", len(modules), listenAddr)
		return dropPrivileges(osenv)
	}

	if os.Getuid() != 0 {
		version(osenv)
		osenv.Logf("environment: not namespacing (not running as root)")
		return nil
	}

	cmd := exec.Command("/proc/self/exe", os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), namespaceEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Unshareflags: syscall.CLONE_NEWNS,
	}
	osenv.Logf("re-executing in a mount namespace: %q", cmd.Args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("re-exec: %v", err)
	}
	return errIsParent
}
