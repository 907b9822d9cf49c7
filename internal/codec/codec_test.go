package codec

import (
	"bytes"
	"testing"

	"github.com/oferchen/ocrsync/internal/handshake"
)

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)

	for _, c := range []handshake.Codec{handshake.CodecNone, handshake.CodecZlib, handshake.CodecZstd, handshake.CodecLz4} {
		c := c
		t.Run(c.String(), func(t *testing.T) {
			codec, err := New(c)
			if err != nil {
				t.Fatal(err)
			}
			compressed, err := codec.Compress(payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			got, err := codec.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
			}
		})
	}
}

func TestNewUnsupported(t *testing.T) {
	if _, err := New(handshake.Codec(99)); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
}
