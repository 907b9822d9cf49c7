package rsyncwire

import (
	"encoding/binary"
	"io"

	"github.com/oferchen/ocrsync"
)

// Frame is the on-wire unit of transport: a length-tagged, channel- and
// tag-typed payload.
type Frame struct {
	Channel uint8
	Tag     uint8
	Payload []byte
}

// WriteFrame encodes and writes f to w: u32 length || u8 channel || u8
// tag || payload.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > ocrsync.MaxFrameLength {
		return ErrInvalidLength
	}
	var hdr [6]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(f.Payload)))
	hdr[4] = f.Channel
	hdr[5] = f.Tag
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame decodes one Frame from r, failing with ErrShortInput on
// truncation and ErrInvalidLength when the declared length exceeds
// ocrsync.MaxFrameLength.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return Frame{}, ErrShortInput
		}
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	if length > ocrsync.MaxFrameLength {
		return Frame{}, ErrInvalidLength
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, ErrShortInput
	}
	return Frame{Channel: hdr[4], Tag: hdr[5], Payload: payload}, nil
}
