package checksum

import (
	"crypto/md5"
	"encoding/binary"
	"hash"

	"github.com/mmcloughlin/md4"
	xmd4 "golang.org/x/crypto/md4"
	"lukechampine.com/blake3"
)

// StrongHash selects the strong digest family mixed with the checksum
// seed to build a block Fingerprint.
type StrongHash int

const (
	// Md4 is the legacy strong digest, required for protocol < 30 peers.
	Md4 StrongHash = iota
	Md5
	Blake3
)

func (h StrongHash) String() string {
	switch h {
	case Md4:
		return "md4"
	case Md5:
		return "md5"
	case Blake3:
		return "blake3"
	default:
		return "unknown"
	}
}

// newHasher returns a fresh hash.Hash for h, with seed already mixed in
// for the seed-sensitive variants. Md5 and Blake3 are not historically
// seeded by rsync; this implementation still folds the seed in ahead of
// the data for them, for session-to-session independence, the same way
// it does for Md4.
func newHasher(h StrongHash, seed uint32) hash.Hash {
	switch h {
	case Md4:
		// Grounded on internal/receiver/receiver.go: the seed is written
		// into the digest state before any file bytes.
		m := md4.New()
		writeSeed(m, seed)
		return m
	case Md5:
		m := md5.New()
		writeSeed(m, seed)
		return m
	case Blake3:
		m := blake3.New(32, nil)
		writeSeed(m, seed)
		return m
	default:
		// golang.org/x/crypto/md4 backs the legacy protocol<30
		// compatibility path exercised directly by StrongDigestLegacy.
		m := xmd4.New()
		writeSeed(m, seed)
		return m
	}
}

func writeSeed(h hash.Hash, seed uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], seed)
	h.Write(b[:])
}

// NewHasher returns a fresh hash.Hash for h with seed already mixed in,
// for callers that need to hash data incrementally (e.g. while writing
// it to disk) instead of through StrongDigest's one-shot API.
func NewHasher(h StrongHash, seed uint32) hash.Hash {
	return newHasher(h, seed)
}

// StrongDigest hashes data with the given strong hash family and seed,
// truncating the result to truncLen bytes.
func StrongDigest(data []byte, h StrongHash, seed uint32, truncLen int) []byte {
	m := newHasher(h, seed)
	m.Write(data)
	sum := m.Sum(nil)
	if truncLen <= 0 || truncLen > len(sum) {
		truncLen = len(sum)
	}
	return sum[:truncLen]
}

// StrongDigestLegacy computes the digest using golang.org/x/crypto/md4
// directly, for the protocol<30 wire-compatibility path where the peer
// has no BLAKE3/MD5 support and the seed convention is fixed.
func StrongDigestLegacy(data []byte, seed uint32, truncLen int) []byte {
	m := xmd4.New()
	writeSeed(m, seed)
	m.Write(data)
	sum := m.Sum(nil)
	if truncLen <= 0 || truncLen > len(sum) {
		truncLen = len(sum)
	}
	return sum[:truncLen]
}
