package flist

import (
	"bytes"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: []byte("dir"), UID: 1000, GID: 1000, HasMode: true, Mode: 0o755},
		{Path: []byte("dir/a.txt"), UID: 1000, GID: 1000, HasMode: true, Mode: 0o644, HasSize: true, Size: 42, HasMtime: true, Mtime: 1700000000},
		{Path: []byte("dir/b.txt"), UID: 1001, GID: 1000, HasMode: true, Mode: 0o644},
		{Path: []byte("dir/link"), UID: 1000, GID: 1000, Symlink: []byte("a.txt")},
		{Path: []byte("other/path"), UID: 0, GID: 0, HasDevice: true, DevMajor: 8, DevMinor: 1},
		{Path: []byte("other/hard"), UID: 1000, GID: 1000, HasHardlink: true, HardlinkID: 7},
		{Path: []byte("vanished"), MissingArg: true},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			t.Fatalf("Encode(%q): %v", e.Path, err)
		}
	}

	dec := NewDecoder(&buf)
	for i, want := range entries {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode entry %d: %v", i, err)
		}
		if !bytes.Equal(got.Path, want.Path) {
			t.Errorf("entry %d path = %q, want %q", i, got.Path, want.Path)
		}
		if got.UID != want.UID || got.GID != want.GID {
			t.Errorf("entry %d uid/gid = %d/%d, want %d/%d", i, got.UID, got.GID, want.UID, want.GID)
		}
		if got.HasMode != want.HasMode || got.Mode != want.Mode {
			t.Errorf("entry %d mode mismatch: %+v vs %+v", i, got, want)
		}
		if got.HasSize != want.HasSize || got.Size != want.Size {
			t.Errorf("entry %d size mismatch: %+v vs %+v", i, got, want)
		}
		if !bytes.Equal(got.Symlink, want.Symlink) {
			t.Errorf("entry %d symlink = %q, want %q", i, got.Symlink, want.Symlink)
		}
		if got.HasDevice != want.HasDevice || got.DevMajor != want.DevMajor || got.DevMinor != want.DevMinor {
			t.Errorf("entry %d device mismatch: %+v vs %+v", i, got, want)
		}
		if got.HasHardlink != want.HasHardlink || got.HardlinkID != want.HardlinkID {
			t.Errorf("entry %d hardlink mismatch: %+v vs %+v", i, got, want)
		}
		if got.MissingArg != want.MissingArg {
			t.Errorf("entry %d missing-arg mismatch: %+v vs %+v", i, got, want)
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("trailing Decode() = %v, want io.EOF", err)
	}
}

func TestUidTableInterning(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		if err := enc.Encode(Entry{Path: []byte{byte('a' + i)}, UID: 1000, GID: 2000}); err != nil {
			t.Fatal(err)
		}
	}

	dec := NewDecoder(&buf)
	for i := 0; i < 3; i++ {
		got, err := dec.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if got.UID != 1000 || got.GID != 2000 {
			t.Fatalf("entry %d uid/gid = %d/%d, want 1000/2000", i, got.UID, got.GID)
		}
	}
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte("dir/a.txt"), []byte("dir/b.txt"), uint32(1000), uint32(1000))
	f.Add([]byte(""), []byte("x"), uint32(0), uint32(0))
	f.Fuzz(func(t *testing.T, p1, p2 []byte, uid, gid uint32) {
		entries := []Entry{
			{Path: p1, UID: uid, GID: gid},
			{Path: p2, UID: uid, GID: gid},
		}
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				// Suffixes longer than one length byte are rejected at
				// encode time; nothing to round-trip.
				return
			}
		}
		dec := NewDecoder(&buf)
		for i, want := range entries {
			got, err := dec.Decode()
			if err != nil {
				t.Fatalf("entry %d: %v", i, err)
			}
			if !bytes.Equal(got.Path, want.Path) || got.UID != want.UID || got.GID != want.GID {
				t.Fatalf("entry %d: got %+v, want %+v", i, got, want)
			}
		}
	})
}

func TestBadUidIndex(t *testing.T) {
	var buf bytes.Buffer
	// common=0, suffix_len=1, suffix="a", uid marker=5 (never interned) instead of 0 or 255.
	buf.Write([]byte{0, 1, 'a', 5})

	dec := NewDecoder(&buf)
	_, err := dec.Decode()
	de, ok := err.(DecodeError)
	if !ok || de.Kind != "BadUid" {
		t.Fatalf("Decode() err = %v, want BadUid", err)
	}
}

func TestShortInput(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 5, 'a'}) // suffix_len=5 but only 1 byte follows

	dec := NewDecoder(&buf)
	if _, err := dec.Decode(); err != ErrShortInput() {
		t.Fatalf("Decode() err = %v, want ShortInput", err)
	}
}

func TestExtendedCommonPrefix(t *testing.T) {
	base := bytes.Repeat([]byte("x"), 300)
	longer := append(append([]byte{}, base...), []byte("/tail")...)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	// A single entry's suffix is limited to 255 bytes, so the 300-byte
	// base path is built up over two entries.
	if err := enc.Encode(Entry{Path: base[:200], UID: 1, GID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(Entry{Path: base, UID: 1, GID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(Entry{Path: longer, UID: 1, GID: 1}); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf)
	for i := 0; i < 2; i++ {
		if _, err := dec.Decode(); err != nil {
			t.Fatal(err)
		}
	}
	got, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Path, longer) {
		t.Fatalf("got path len %d, want %d", len(got.Path), len(longer))
	}
}
