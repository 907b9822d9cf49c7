package checksum

import "bytes"

// Fingerprint identifies one basis block: a fast weak filter plus a
// strong digest, truncated to the session-negotiated length.
// Two blocks fingerprint-collide only by deliberate
// attack or with probability roughly 2^-(8*len(Strong)).
type Fingerprint struct {
	Weak   uint32
	Strong []byte
}

// Equal reports whether two fingerprints identify the same bytes. The
// weak checksum is compared first since it is cheap and almost always
// sufficient to reject a non-match.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Weak == o.Weak && bytes.Equal(f.Strong, o.Strong)
}

// New computes the fingerprint of block using hash/seed, truncating the
// strong digest to strongLen bytes.
func New(block []byte, hash StrongHash, seed uint32, strongLen int) Fingerprint {
	return Fingerprint{
		Weak:   Seeded(block, seed),
		Strong: StrongDigest(block, hash, seed, strongLen),
	}
}

// BlockSum is one entry of a Checksums message: the basis block index,
// its weak checksum, and its (possibly truncated) strong digest.
type BlockSum struct {
	Index  int
	Weak   uint32
	Strong []byte
}

// SumHead describes a whole Checksums message: the negotiated block
// size, how many blocks follow, the strong-digest length in use, and the
// length of the final (possibly short) block.
type SumHead struct {
	BlockLength     int64
	ChecksumCount   int64
	StrongLen       int64
	RemainderLength int64
}

// Index builds the weak->candidates multimap the delta scanner probes
// at every window position.
func Index(sums []BlockSum) map[uint32][]BlockSum {
	idx := make(map[uint32][]BlockSum, len(sums))
	for _, s := range sums {
		idx[s.Weak] = append(idx[s.Weak], s)
	}
	return idx
}
