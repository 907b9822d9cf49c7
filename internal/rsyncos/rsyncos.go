// Package rsyncos bundles the operating-system surface a transfer needs
// (standard streams, sandboxing preference, diagnostic logging) into one
// value that is threaded through maincmd, rsyncd and the receiver/sender
// packages instead of each reaching for os.Stdin/os.Stderr directly. This
// is what lets tests substitute pipes and buffers for the real process
// streams.
package rsyncos

import (
	"fmt"
	"io"
	"os"
)

// Log-sink override paths, captured once at process start so the hot
// path never re-reads the environment. The sinks themselves (syslog,
// journald) live outside this module; these overrides redirect their
// output to plain files, which is what the conformance tests hook.
var (
	syslogPath   = os.Getenv("OC_RSYNC_SYSLOG_PATH")
	journaldPath = os.Getenv("OC_RSYNC_JOURNALD_PATH")
)

// SyslogPath returns the OC_RSYNC_SYSLOG_PATH override, or "".
func SyslogPath() string { return syslogPath }

// JournaldPath returns the OC_RSYNC_JOURNALD_PATH override, or "".
func JournaldPath() string { return journaldPath }

// Env carries the standard streams and process-wide preferences for one
// rsync invocation.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// DontRestrict disables the Landlock sandboxing internal/restrict
	// would otherwise apply. Set from --ocr.dont_restrict, or forced to
	// true for a child process that is already running inside a
	// restricted parent (see internal/maincmd's re-exec paths).
	DontRestrict bool
}

// Std is an alias for Env, matching the name some call sites use for the
// same type.
type Std = Env

// Logf writes a diagnostic line to Stderr, or discards it if Stderr is
// nil (as in tests that only care about the transferred files).
func (e *Env) Logf(format string, args ...any) {
	if e == nil || e.Stderr == nil {
		return
	}
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// Restrict reports whether the caller should sandbox file system access
// for this invocation.
func (e *Env) Restrict() bool {
	return e == nil || !e.DontRestrict
}
