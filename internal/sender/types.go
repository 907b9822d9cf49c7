// Package sender implements the sending side of a transfer: it builds
// the file list for the requested source paths, waits for the
// receiver's per-file basis checksums, and replies with the
// Match/Literal token stream that reconstructs each file.
package sender

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/oferchen/ocrsync/internal/checksum"
	"github.com/oferchen/ocrsync/internal/log"
	"github.com/oferchen/ocrsync/internal/rsyncopts"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
)

// File is one entry of the file list the sender builds by walking its
// source paths.
type File struct {
	Name    string
	Mode    int32
	Uid     int32
	Gid     int32
	Size    int64
	ModTime time.Time
	IsDir   bool
	Symlink string

	// DevMajor and DevMinor are set for character and block devices.
	DevMajor uint32
	DevMinor uint32

	// MissingArg marks a source argument that no longer exists; the
	// receiver removes the destination counterpart instead of awaiting
	// file data (--delete-missing-args).
	MissingArg bool
}

// FilterList is the exclusion-rule list a client sends ahead of the
// file list: always (even when empty) when the peer is the sender, and
// only in delete mode when the peer is the receiver.
type FilterList struct {
	Filters []string
}

// Transfer holds the state of one send-side session
// (rsync/sender.c in spirit).
type Transfer struct {
	Logger log.Logger
	Opts   *rsyncopts.Options
	Conn   *rsyncwire.Conn
	Seed   int32

	// Hash selects the strong digest family used to verify matched
	// blocks and the whole-file checksum. Zero value is checksum.Md4.
	Hash checksum.StrongHash

	// base, wrap and topName record how buildFileList mapped the walk
	// root onto file-list names, so sendFile can map a name back to a
	// filesystem path.
	base    string
	wrap    bool
	topName string
}

// localPath maps a file-list name back to its path under base.
func (rt *Transfer) localPath(name string) string {
	if name == rt.topName {
		return rt.base
	}
	rel := name
	if rt.wrap {
		rel = strings.TrimPrefix(name, rt.topName+"/")
	}
	return filepath.Join(rt.base, rel)
}
