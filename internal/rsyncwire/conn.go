// Package rsyncwire implements the frame codec, typed message
// envelopes, and the channel multiplexer/demultiplexer that carry the
// rsync protocol over a single byte stream, plus the
// low-level Conn helpers the rest of the engine reads and writes
// integers and byte strings through.
package rsyncwire

import (
	"encoding/binary"
	"io"
)

// CountingReader wraps an io.Reader, tracking how many bytes have been
// read, for the Stats message.
type CountingReader struct {
	R     io.Reader
	Bytes int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.Bytes += int64(n)
	return n, err
}

// CountingWriter is the write-side counterpart of CountingReader.
type CountingWriter struct {
	W     io.Writer
	Bytes int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.Bytes += int64(n)
	return n, err
}

// CounterPair wraps r and w in a CountingReader/CountingWriter pair, the
// way rsyncd and rsyncclient set up a session.
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	return &CountingReader{R: r}, &CountingWriter{W: w}
}

// Conn bundles the reader/writer halves of one rsync session and
// provides the little-endian integer and length-prefixed string
// primitives used throughout the handshake, file-list, and checksum
// exchanges.
type Conn struct {
	Reader io.Reader
	Writer io.Writer
}

func (c *Conn) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Conn) WriteByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

func (c *Conn) ReadInt32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func (c *Conn) WriteInt32(v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	_, err := c.Writer.Write(b[:])
	return err
}

// ReadInt64 follows the rsync convention: values that fit in 31 bits are
// sent as a plain int32; larger values are preceded by a sentinel -1
// int32 and followed by a full int64.
func (c *Conn) ReadInt64() (int64, error) {
	v, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v != -1 {
		return int64(v), nil
	}
	var b [8]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (c *Conn) WriteInt64(v int64) error {
	if v >= 0 && v <= 0x7fffffff {
		return c.WriteInt32(int32(v))
	}
	if err := c.WriteInt32(-1); err != nil {
		return err
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := c.Writer.Write(b[:])
	return err
}

func (c *Conn) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Conn) WriteString(s string) error {
	_, err := io.WriteString(c.Writer, s)
	return err
}

// DecodeError is returned by frame and message decoding.
type DecodeError string

func (e DecodeError) Error() string { return string(e) }

const (
	ErrShortInput    DecodeError = "rsyncwire: short input"
	ErrInvalidLength DecodeError = "rsyncwire: invalid frame length"
	ErrDuplicateID   DecodeError = "rsyncwire: duplicate channel id"
	ErrIoTimeout     DecodeError = "rsyncwire: idle timeout"
)
