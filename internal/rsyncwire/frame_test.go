package rsyncwire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/oferchen/ocrsync"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Channel: 3, Tag: uint8(MsgChecksums), Payload: []byte("payload bytes")}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Channel != want.Channel || got.Tag != want.Tag || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Payload: []byte("0123456789")}); err != nil {
		t.Fatal(err)
	}
	whole := buf.Bytes()
	for _, cut := range []int{0, 3, 6, len(whole) - 1} {
		if _, err := ReadFrame(bytes.NewReader(whole[:cut])); err != ErrShortInput {
			t.Errorf("cut=%d: err = %v, want ErrShortInput", cut, err)
		}
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var hdr [6]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(ocrsync.MaxFrameLength+1))
	if _, err := ReadFrame(bytes.NewReader(hdr[:])); err != ErrInvalidLength {
		t.Fatalf("err = %v, want ErrInvalidLength", err)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, Frame{Payload: make([]byte, ocrsync.MaxFrameLength+1)})
	if err != ErrInvalidLength {
		t.Fatalf("err = %v, want ErrInvalidLength", err)
	}
}
