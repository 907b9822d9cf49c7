// Package checksum implements the seeded rolling weak checksum and the
// pluggable strong digest family used to fingerprint basis-file
// blocks.
package checksum

// Rolling is the seeded rolling weak checksum: two 16-bit accumulators
// a (byte sum) and b (weighted byte sum) folded into a single 32-bit
// digest, with the seed mixed in once at construction so that two
// sessions using different seeds see different digests for identical
// bytes. The zero value is not usable; construct with
// WithSeed.
type Rolling struct {
	a, b uint32
	seed uint32
	n    uint32 // window length
}

// WithSeed initializes a Rolling checksum over window, mixing in seed.
func WithSeed(window []byte, seed uint32) *Rolling {
	r := &Rolling{seed: seed, n: uint32(len(window))}
	r.reseed(window)
	return r
}

func (r *Rolling) reseed(window []byte) {
	n := uint32(len(window))
	var a, b uint32
	for i, c := range window {
		a += uint32(c)
		b += (n - uint32(i)) * uint32(c)
	}
	r.a = (a + r.seed) & 0xffff
	r.b = (b + r.seed*n) & 0xffff
}

// Digest returns the current 32-bit weak checksum, (b<<16)|a.
func (r *Rolling) Digest() uint32 {
	return (r.b << 16) | r.a
}

// Roll advances the window by one byte: out leaves at the head, in
// enters at the tail. The result equals re-seeding over the new window
// outright — this is the classic O(1) rsync
// recurrence, adjusted so the seed offset baked into `a` is not
// double-counted in `b`'s update.
func (r *Rolling) Roll(out, in byte) {
	newA := (r.a - uint32(out) + uint32(in)) & 0xffff
	r.b = (r.b - r.n*uint32(out) + ((newA-r.seed)&0xffff)) & 0xffff
	r.a = newA
}

// Seeded computes the rolling checksum of data directly, equivalent to
// WithSeed(data, seed).Digest(). It is the reference the incremental
// Roll path must match bit-for-bit.
func Seeded(data []byte, seed uint32) uint32 {
	return WithSeed(data, seed).Digest()
}
