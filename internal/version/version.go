// Package version renders this program's identity string, the way it is
// reported in --version output and at the top of --help/--daemon --help.
package version

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/oferchen/ocrsync"
)

// defaultProgramName is used when PROGRAM_NAME is unset, matching the
// "oc-rsync" branding used throughout this module.
const defaultProgramName = "oc-rsync"

// programName is PROGRAM_NAME, read once when the process starts.
var programName = os.Getenv("PROGRAM_NAME")

// ProgramName returns the branding used in error messages and help
// output: PROGRAM_NAME from the environment, or "oc-rsync".
func ProgramName() string {
	if programName != "" {
		return programName
	}
	return defaultProgramName
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "devel"
	}
	return info.Main.Version
}

// Read renders the one-line identity string printed for --version and at
// the top of --help output.
func Read() string {
	return fmt.Sprintf("%s %s (protocol %d)",
		ProgramName(), buildVersion(), ocrsync.LatestProtocolVersion)
}
