package checksum

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestSeededScenario(t *testing.T) {
	data := []byte("hello world")
	if got := Seeded(data, 0); got != 436208732 {
		t.Errorf("Seeded(seed=0) = %d, want 436208732", got)
	}
	if got := Seeded(data, 1); got != 436929629 {
		t.Errorf("Seeded(seed=1) = %d, want 436929629", got)
	}
}

func TestRollingMatchesSeeded(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 2 + rnd.Intn(400)
		data := make([]byte, n)
		rnd.Read(data)
		window := 1 + rnd.Intn(n-1)
		seed := rnd.Uint32()

		r := WithSeed(data[:window], seed)
		for i := 0; i+window <= len(data); i++ {
			want := Seeded(data[i:i+window], seed)
			if got := r.Digest(); got != want {
				t.Fatalf("trial=%d i=%d: Digest()=%d want %d", trial, i, got, want)
			}
			if i+window < len(data) {
				r.Roll(data[i], data[i+window])
			}
		}
	}
}

func TestRollShiftMatchesRecompute(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for trial := 0; trial < 200; trial++ {
		blockLen := 1 + rnd.Intn(64)
		block := make([]byte, blockLen)
		rnd.Read(block)
		seed := rnd.Uint32()
		in := byte(rnd.Intn(256))

		r := WithSeed(block, seed)
		out := block[0]
		shifted := append(append([]byte{}, block[1:]...), in)
		r.Roll(out, in)

		want := Seeded(shifted, seed)
		if got := r.Digest(); got != want {
			t.Fatalf("trial=%d: Roll digest=%d want %d", trial, got, want)
		}
	}
}

func FuzzRollMatchesReseed(f *testing.F) {
	f.Add([]byte("hello world"), uint32(0), byte(7))
	f.Add([]byte{0x00}, uint32(1), byte(0xff))
	f.Fuzz(func(t *testing.T, block []byte, seed uint32, in byte) {
		if len(block) == 0 {
			return
		}
		r := WithSeed(block, seed)
		shifted := append(append([]byte{}, block[1:]...), in)
		r.Roll(block[0], in)
		if got, want := r.Digest(), Seeded(shifted, seed); got != want {
			t.Fatalf("Roll digest = %d, reseed over shifted window = %d", got, want)
		}
	})
}

func TestBlockSize(t *testing.T) {
	cases := []struct {
		length int64
		want   int64
	}{
		{0, DefaultBlockSize},
		{490000, DefaultBlockSize},
		{490001, DefaultBlockSize},
		{1_000_000_000, 31616},
		{1 << 40, MaxBlockSize},
	}
	for _, c := range cases {
		if got := BlockSize(c.length); got != c.want {
			t.Errorf("BlockSize(%d) = %d, want %d", c.length, got, c.want)
		}
	}
}

func TestStrongDigestDeterministic(t *testing.T) {
	a := StrongDigest([]byte("hello world"), Md4, 1, 16)
	b := StrongDigest([]byte("hello world"), Md4, 1, 16)
	if !bytes.Equal(a, b) {
		t.Fatal("StrongDigest is not deterministic")
	}
	c := StrongDigest([]byte("hello world"), Md4, 2, 16)
	if bytes.Equal(a, c) {
		t.Fatal("different seeds produced identical digests")
	}
}

func TestFingerprintEqual(t *testing.T) {
	block := []byte("some block of bytes used as a basis chunk")
	f1 := New(block, Blake3, 7, 16)
	f2 := New(block, Blake3, 7, 16)
	if !f1.Equal(f2) {
		t.Fatal("identical blocks should fingerprint-match")
	}
	f3 := New(append(append([]byte{}, block...), 'x'), Blake3, 7, 16)
	if f1.Equal(f3) {
		t.Fatal("different blocks should not fingerprint-match")
	}
}
