package delta

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/oferchen/ocrsync/internal/checksum"
)

func basisSums(basis []byte, blockSize int64, hash checksum.StrongHash, seed uint32, strongLen int) []checksum.BlockSum {
	var sums []checksum.BlockSum
	for i, idx := int64(0), 0; i < int64(len(basis)); i, idx = i+blockSize, idx+1 {
		end := i + blockSize
		if end > int64(len(basis)) {
			end = int64(len(basis))
		}
		block := basis[i:end]
		sums = append(sums, checksum.BlockSum{
			Index:  idx,
			Weak:   checksum.Seeded(block, seed),
			Strong: checksum.StrongDigest(block, hash, seed, strongLen),
		})
	}
	return sums
}

func TestScanReconstructsIdenticalFile(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	basis := make([]byte, 5000)
	rnd.Read(basis)

	opts := Options{BlockSize: 700, Strong: checksum.Blake3, Seed: 7, StrongLen: 16}
	sums := basisSums(basis, opts.BlockSize, opts.Strong, opts.Seed, opts.StrongLen)

	tokens := Scan(basis, sums, opts)

	blockAt := func(idx int) []byte {
		start := int64(idx) * opts.BlockSize
		end := start + opts.BlockSize
		if end > int64(len(basis)) {
			end = int64(len(basis))
		}
		return basis[start:end]
	}
	got := Reconstruct(tokens, blockAt)
	if !bytes.Equal(got, basis) {
		t.Fatalf("reconstruction mismatch: got %d bytes, want %d", len(got), len(basis))
	}

	matchCount := 0
	for _, tok := range tokens {
		if tok.IsMatch {
			matchCount++
		}
	}
	if matchCount == 0 {
		t.Fatal("expected at least one Match token for an identical file")
	}
}

func TestScanReconstructsModifiedFile(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	basis := make([]byte, 4000)
	rnd.Read(basis)

	target := append([]byte{}, basis...)
	// Insert some bytes in the middle, shifting everything after.
	insert := []byte("INSERTED-BYTES-THAT-SHIFT-THE-REST-OF-THE-FILE")
	target = append(target[:2000], append(insert, target[2000:]...)...)
	// Corrupt a chunk near the end so it can't possibly match a basis block.
	for i := len(target) - 50; i < len(target); i++ {
		target[i] ^= 0xff
	}

	opts := Options{BlockSize: 500, Strong: checksum.Md5, Seed: 1, StrongLen: 16}
	sums := basisSums(basis, opts.BlockSize, opts.Strong, opts.Seed, opts.StrongLen)

	tokens := Scan(target, sums, opts)

	blockAt := func(idx int) []byte {
		start := int64(idx) * opts.BlockSize
		end := start + opts.BlockSize
		if end > int64(len(basis)) {
			end = int64(len(basis))
		}
		return basis[start:end]
	}
	got := Reconstruct(tokens, blockAt)
	if !bytes.Equal(got, target) {
		t.Fatalf("reconstruction mismatch: got %d bytes, want %d", len(got), len(target))
	}
}

func TestScanMatchesShortFinalBlock(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	basis := make([]byte, 1750) // 2 full 700-byte blocks plus a 350-byte tail
	rnd.Read(basis)

	opts := Options{BlockSize: 700, Strong: checksum.Blake3, Seed: 9, StrongLen: 16, Remainder: 350}
	sums := basisSums(basis, opts.BlockSize, opts.Strong, opts.Seed, opts.StrongLen)

	tokens := Scan(basis, sums, opts)

	// An unchanged file must collapse into matches only, including the
	// final short block.
	for _, tok := range tokens {
		if !tok.IsMatch {
			t.Fatalf("unexpected literal token of %d bytes", len(tok.Bytes))
		}
	}
	blockAt := func(idx int) []byte {
		start := int64(idx) * opts.BlockSize
		end := start + opts.BlockSize
		if end > int64(len(basis)) {
			end = int64(len(basis))
		}
		return basis[start:end]
	}
	if got := Reconstruct(tokens, blockAt); !bytes.Equal(got, basis) {
		t.Fatalf("reconstruction mismatch: got %d bytes, want %d", len(got), len(basis))
	}
}

func TestScanCoalescesConsecutiveMatches(t *testing.T) {
	rnd := rand.New(rand.NewSource(6))
	basis := make([]byte, 2800) // exactly 4 blocks
	rnd.Read(basis)

	opts := Options{BlockSize: 700, Strong: checksum.Md5, Seed: 2, StrongLen: 16}
	sums := basisSums(basis, opts.BlockSize, opts.Strong, opts.Seed, opts.StrongLen)

	tokens := Scan(basis, sums, opts)
	want := []Token{Match(0, 4)}
	if len(tokens) != 1 || !tokens[0].IsMatch || tokens[0].BlockIndex != 0 || tokens[0].Count != 4 {
		t.Fatalf("tokens = %+v, want %+v", tokens, want)
	}
}

func TestScanEmptyBasisIsAllLiteral(t *testing.T) {
	target := []byte("some short file content")
	tokens := Scan(target, nil, Options{BlockSize: 700, Strong: checksum.Md4, Seed: 0, StrongLen: 16})
	if len(tokens) != 1 || tokens[0].IsMatch {
		t.Fatalf("tokens = %+v, want single Literal", tokens)
	}
	if !bytes.Equal(tokens[0].Bytes, target) {
		t.Fatalf("literal bytes mismatch")
	}
}
