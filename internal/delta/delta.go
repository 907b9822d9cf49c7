// Package delta implements the block-index and scanning algorithm that
// turns a basis file's block checksums and a target file's bytes into
// a token stream of Match and Literal operations.
package delta

import "github.com/oferchen/ocrsync/internal/checksum"

// Token is either a Match (copy count consecutive basis blocks
// starting at BlockIndex) or a Literal (emit Bytes verbatim).
type Token struct {
	IsMatch    bool
	BlockIndex int
	Count      int
	Bytes      []byte
}

func Match(blockIndex, count int) Token { return Token{IsMatch: true, BlockIndex: blockIndex, Count: count} }
func Literal(b []byte) Token            { return Token{Bytes: b} }

// Options configures a Scan call. Remainder is the length of the
// basis's final block when it is shorter than BlockSize (the
// RemainderLength of the checksum.SumHead the sums came from); it lets
// the scanner match that short block against the tail of the target,
// and excludes it from head-of-window matching.
type Options struct {
	BlockSize int64
	Strong    checksum.StrongHash
	Seed      uint32
	StrongLen int
	Remainder int64
}

// Scan computes the delta token stream for target against the basis
// block checksums sums, such that replaying the tokens against the
// basis reproduces target exactly. The weak checksum is
// maintained incrementally: one Roll per unmatched byte, a full reseed
// only after each match advances the window by a whole block.
func Scan(target []byte, sums []checksum.BlockSum, opts Options) []Token {
	if len(target) == 0 {
		return nil
	}
	if opts.BlockSize <= 0 || len(sums) == 0 {
		return []Token{Literal(append([]byte{}, target...))}
	}

	index := checksum.Index(sums)
	window := int(opts.BlockSize)

	// The final short basis block never matches as a head-of-window
	// candidate; it is only considered against the target's tail below.
	shortIdx := -1
	if opts.Remainder > 0 && opts.Remainder < opts.BlockSize {
		shortIdx = len(sums) - 1
	}

	var tokens []Token
	litStart := 0
	pos := 0

	flushLiteral := func(end int) {
		if end > litStart {
			tokens = append(tokens, Literal(append([]byte{}, target[litStart:end]...)))
		}
	}

	var r *checksum.Rolling
	if pos+window <= len(target) {
		r = checksum.WithSeed(target[pos:pos+window], opts.Seed)
	}

	for pos+window <= len(target) {
		matchIdx := -1
		var strong []byte
		for _, c := range index[r.Digest()] {
			if c.Index == shortIdx {
				continue
			}
			if strong == nil {
				strong = checksum.StrongDigest(target[pos:pos+window], opts.Strong, opts.Seed, opts.StrongLen)
			}
			if bytesEqual(c.Strong, strong) {
				matchIdx = c.Index
				break
			}
		}

		if matchIdx < 0 {
			pos++
			if pos+window <= len(target) {
				r.Roll(target[pos-1], target[pos+window-1])
			}
			continue
		}

		contiguous := pos == litStart
		flushLiteral(pos)
		if n := len(tokens); contiguous && n > 0 && tokens[n-1].IsMatch &&
			tokens[n-1].BlockIndex+tokens[n-1].Count == matchIdx {
			tokens[n-1].Count++
		} else {
			tokens = append(tokens, Match(matchIdx, 1))
		}
		pos += window
		litStart = pos
		if pos+window <= len(target) {
			r = checksum.WithSeed(target[pos:pos+window], opts.Seed)
		}
	}

	// A short final basis block may still match the target's tail, but
	// only at the very end and only at its own length.
	if shortIdx >= 0 {
		p := len(target) - int(opts.Remainder)
		if p >= litStart {
			tail := target[p:]
			s := sums[shortIdx]
			if checksum.Seeded(tail, opts.Seed) == s.Weak &&
				bytesEqual(checksum.StrongDigest(tail, opts.Strong, opts.Seed, opts.StrongLen), s.Strong) {
				flushLiteral(p)
				tokens = append(tokens, Match(shortIdx, 1))
				litStart = len(target)
			}
		}
	}

	flushLiteral(len(target))
	return tokens
}

// Reconstruct replays tokens against basis blocks to rebuild the
// target (used by tests and the receiver's apply step).
func Reconstruct(tokens []Token, basisBlock func(index int) []byte) []byte {
	var out []byte
	for _, t := range tokens {
		if t.IsMatch {
			for i := 0; i < t.Count; i++ {
				out = append(out, basisBlock(t.BlockIndex+i)...)
			}
			continue
		}
		out = append(out, t.Bytes...)
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
