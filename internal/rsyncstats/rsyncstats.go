// Package rsyncstats defines the summary counters exchanged at the end
// of a transfer (the "Stats" wire message) and surfaced to
// callers of internal/receiver and internal/sender.
package rsyncstats

import "fmt"

// TransferStats summarizes one completed session, mirroring the fields
// rsync itself reports with --stats.
type TransferStats struct {
	// Read and Written are raw byte counts observed on the wire
	// (protocol overhead included), as tracked by rsyncwire's counting
	// reader/writer pair.
	Read    int64
	Written int64

	// Size is the total size of the file set as reconstructed on the
	// receiving side, independent of how many bytes were actually sent.
	Size int64

	FilesTotal       int
	FilesTransferred int

	LiteralBytes int64
	MatchedBytes int64
}

func (s TransferStats) String() string {
	return fmt.Sprintf(
		"sent %d bytes, received %d bytes, total size %d (files: %d/%d transferred, %d literal + %d matched)",
		s.Written, s.Read, s.Size, s.FilesTransferred, s.FilesTotal, s.LiteralBytes, s.MatchedBytes)
}
