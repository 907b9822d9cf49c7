// Tool oc-rsync is an rsync protocol client, server and daemon
// implementation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/oferchen/ocrsync"
	"github.com/oferchen/ocrsync/internal/filter"
	"github.com/oferchen/ocrsync/internal/maincmd"
	"github.com/oferchen/ocrsync/internal/rsyncopts"
	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
	"github.com/oferchen/ocrsync/internal/version"
)

// exitCode maps a session-fatal error onto the documented process exit
// codes: usage errors exit 1, timeouts 30, a vanished source 24, a
// remote-shell binary that could not be found 127, and everything else
// (decode, protocol, I/O fatal to the session) 2.
func exitCode(err error) int {
	var pe *rsyncopts.PoptError
	var fe *filter.ParseError
	if errors.As(err, &pe) || errors.As(err, &fe) {
		return int(ocrsync.ExitSyntaxError)
	}
	if errors.Is(err, rsyncwire.ErrIoTimeout) {
		return int(ocrsync.ExitTimeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return int(ocrsync.ExitCommandNotFound)
	}
	if errors.Is(err, os.ErrNotExist) {
		return int(ocrsync.ExitVanishedSource)
	}
	return int(ocrsync.ExitProtocolError)
}

func main() {
	osenv := &rsyncos.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if _, err := maincmd.Main(context.Background(), osenv, os.Args, nil); err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", version.ProgramName(), err)
		os.Exit(exitCode(err))
	}
}
