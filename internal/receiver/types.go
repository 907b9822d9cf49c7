// Package receiver implements the receiving side of a transfer: it reads
// the file list the sender built, fingerprints whatever basis files
// already exist at the destination, and applies the Match/Literal token
// stream the sender replies with.
package receiver

import (
	"time"

	"github.com/oferchen/ocrsync/internal/checksum"
	"github.com/oferchen/ocrsync/internal/filter"
	"github.com/oferchen/ocrsync/internal/log"
	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
)

// File is one file-list entry as the receiver cares about it: enough to
// create, fingerprint and re-permission a destination path, independent
// of the wire encoding internal/flist uses to carry it.
type File struct {
	Name    string
	Mode    int32
	Uid     int32
	Gid     int32
	Size    int64
	ModTime time.Time

	IsDir       bool
	Symlink     string
	DevMajor    int32
	DevMinor    int32
	HasHardlink bool
	HardlinkID  uint64

	// MissingArg marks a source argument that vanished on the sender;
	// the destination counterpart is removed instead of transferred
	// (--delete-missing-args).
	MissingArg bool
}

// TransferOpts mirrors the subset of rsyncopts.Options the receiver
// needs, as plain fields so tests can construct one directly without
// going through command-line parsing.
type TransferOpts struct {
	Verbose bool
	DryRun  bool
	Server  bool

	DeleteMode        bool
	PreserveGid       bool
	PreserveUid       bool
	PreserveLinks     bool
	PreservePerms     bool
	PreserveDevices   bool
	PreserveSpecials  bool
	PreserveTimes     bool
	PreserveHardlinks bool

	// Preallocate extends each destination file to its final size
	// before the token stream is applied.
	Preallocate bool

	// BlockSize, when positive, fixes the basis block size for every
	// file (--block-size) instead of deriving it per file from the
	// file's length.
	BlockSize int64
}

// Transfer holds the state of one receive-side session: rsync/receiver.c
// in spirit, but as a struct instead of a pile of globals.
type Transfer struct {
	Logger log.Logger
	Opts   *TransferOpts
	Dest   string
	Env    *rsyncos.Env
	Conn   *rsyncwire.Conn
	Seed   int32

	// IOErrors counts non-fatal errors encountered while receiving;
	// deleteFiles refuses to prune the destination tree when this is
	// non-zero, the same way rsync does.
	IOErrors int32

	// Hash selects the strong digest family used to fingerprint basis
	// blocks. Zero value is checksum.Md4, matching protocol<30 peers;
	// callers negotiating protocol>=30 should set this explicitly.
	Hash checksum.StrongHash

	// Matcher, when set, gates deletion candidates the same way it
	// gated the sender's file list: a path excluded by a non-perishable
	// rule is protected from deletion, while a perishable rule is
	// ignored at delete time.
	Matcher *filter.Matcher
}

func findInFileList(fileList []*File, name string) bool {
	for _, f := range fileList {
		if f.Name == name {
			return true
		}
	}
	return false
}
