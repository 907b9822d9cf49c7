package batch

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	want := Batch{
		FileList:  []byte("file-list-bytes"),
		Checksums: []byte("checksum-bytes"),
		Data:      bytes.Repeat([]byte{0xaa}, 1024),
	}

	encoded, err := EncodeBytes(want)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	got, err := DecodeBytes(encoded)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if !bytes.Equal(got.FileList, want.FileList) || !bytes.Equal(got.Checksums, want.Checksums) || !bytes.Equal(got.Data, want.Data) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

// golden is a hand-assembled batch file: magic, version 1, then the
// three length-prefixed sections. Decoding and re-encoding it must
// reproduce it byte for byte.
var golden = []byte{
	'O', 'C', 'R', 'B',
	1, 0, 0, 0,
	3, 0, 0, 0, 'f', 'l', '1',
	2, 0, 0, 0, 'c', 's',
	4, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef,
}

func TestGoldenFixtureRoundTrip(t *testing.T) {
	b, err := DecodeBytes(golden)
	if err != nil {
		t.Fatalf("DecodeBytes(golden): %v", err)
	}
	if string(b.FileList) != "fl1" || string(b.Checksums) != "cs" {
		t.Fatalf("golden decode mismatch: %+v", b)
	}
	reencoded, err := EncodeBytes(b)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	if !bytes.Equal(reencoded, golden) {
		t.Fatalf("re-encode mismatch:\ngot  %x\nwant %x", reencoded, golden)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	if _, err := DecodeBytes([]byte("not a batch file at all")); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestEncodeEmptyBatch(t *testing.T) {
	encoded, err := EncodeBytes(Batch{})
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	got, err := DecodeBytes(encoded)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if len(got.FileList) != 0 || len(got.Checksums) != 0 || len(got.Data) != 0 {
		t.Fatalf("expected empty sections, got %+v", got)
	}
}
