package handshake

import "testing"

func TestNegotiateVersionNormal(t *testing.T) {
	cases := []struct{ local, peer, want int32 }{
		{32, 32, 32},
		{30, 32, 30},
		{32, 30, 30},
		{31, 32, 31},
	}
	for _, c := range cases {
		got, err := NegotiateVersion(c.local, c.peer)
		if err != nil {
			t.Fatalf("NegotiateVersion(%d,%d): %v", c.local, c.peer, err)
		}
		if got != c.want {
			t.Errorf("NegotiateVersion(%d,%d) = %d, want %d", c.local, c.peer, got, c.want)
		}
	}
}

func TestNegotiateVersionFuturePeer(t *testing.T) {
	if got, err := NegotiateVersion(73, 32); err != nil || got != 31 {
		t.Errorf("NegotiateVersion(73,32) = (%d,%v), want (31,nil)", got, err)
	}
	if got, err := NegotiateVersion(73, 31); err != nil || got != 31 {
		t.Errorf("NegotiateVersion(73,31) = (%d,%v), want (31,nil)", got, err)
	}
}

func TestNegotiateVersionUnsupported(t *testing.T) {
	if _, err := NegotiateVersion(10, 12); err == nil {
		t.Fatal("expected ErrUnsupportedVersion")
	}
}

func TestNegotiateCodecPreference(t *testing.T) {
	both := uint32(0)
	if got := NegotiateCodec(both, true); got != CodecNone {
		t.Errorf("no caps: got %v, want CodecNone", got)
	}

	zlibOnly := uint32(1 << 0) // CapCodecs
	if got := NegotiateCodec(zlibOnly, true); got != CodecZlib {
		t.Errorf("codecs only: got %v, want CodecZlib", got)
	}

	withZstd := uint32((1 << 0) | (1 << 3)) // CapCodecs|CapZstd
	if got := NegotiateCodec(withZstd, true); got != CodecZstd {
		t.Errorf("codecs+zstd: got %v, want CodecZstd", got)
	}

	if got := NegotiateCodec(withZstd, false); got != CodecNone {
		t.Errorf("compression not requested: got %v, want CodecNone", got)
	}
}
