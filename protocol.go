// Package ocrsync holds the protocol-level constants shared by every
// layer of the rsync-compatible synchronization engine: the supported
// protocol version range, the capability bitmask, and the session exit
// codes. It intentionally carries no logic of its own.
package ocrsync

import "fmt"

// The range of protocol versions this implementation can negotiate.
// A session always runs at a version in this range, never above
// min(local_max, peer_max).
const (
	MinProtocolVersion    = 30
	LatestProtocolVersion = 32
)

// SupportedProtocols lists every protocol version understood by this
// implementation, newest first. Versions below 30 predate the
// incremental-recursion wire format and are not spoken.
var SupportedProtocols = []int32{32, 31, 30}

// Capability bits exchanged during the handshake.
const (
	CapCodecs = 1 << iota
	CapACLs
	CapXattrs
	CapZstd
)

// ExitCode is the process exit status, round-tripping unknown values
// rather than discarding them.
type ExitCode uint8

const (
	ExitOK              ExitCode = 0
	ExitSyntaxError     ExitCode = 1
	ExitProtocolError   ExitCode = 2
	ExitPartial         ExitCode = 23
	ExitVanishedSource  ExitCode = 24
	ExitTimeout         ExitCode = 30
	ExitCommandNotFound ExitCode = 127
)

// UnknownExit wraps an exit code this implementation does not assign a
// name to, so it still round-trips byte-for-byte across the wire.
type UnknownExit uint8

func (u UnknownExit) String() string { return fmt.Sprintf("unknown exit code %d", uint8(u)) }

// DefaultStrongLen is the default truncation length, in bytes, of the
// strong checksum digest negotiated for a session.
const DefaultStrongLen = 16

// MaxFrameLength is the maximum payload length of a single frame;
// a declared length above it fails decoding.
const MaxFrameLength = 4 << 20 // 4 MiB
