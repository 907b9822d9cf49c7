// Package flist implements the delta-encoded, incrementally-decoded
// file-list wire format: entries are encoded relative to
// the previous entry's path via shared-prefix compression, and uid/gid
// values are interned into small per-session tables.
package flist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// DecodeError is the sentinel error type for malformed file-list
// streams.
type DecodeError struct {
	Kind string
	Idx  uint32
}

func (e DecodeError) Error() string {
	if e.Kind == "BadUid" || e.Kind == "BadGid" {
		return fmt.Sprintf("flist: %s(%d)", e.Kind, e.Idx)
	}
	return "flist: " + e.Kind
}

func ErrShortInput() error       { return DecodeError{Kind: "ShortInput"} }
func ErrBadUid(idx uint32) error { return DecodeError{Kind: "BadUid", Idx: idx} }
func ErrBadGid(idx uint32) error { return DecodeError{Kind: "BadGid", Idx: idx} }

// extField bits mark which optional fields are present on a given entry.
const (
	extMode = 1 << iota
	extSize
	extMtime
	extSymlink
	extDevice
	extHardlink
	// extMissingArg marks an entry whose source path no longer exists;
	// the receiver deletes its destination counterpart instead of
	// expecting file data (--delete-missing-args).
	extMissingArg
)

// Entry is one file-list item.
type Entry struct {
	Path        []byte
	UID         uint32
	GID         uint32
	HasMode     bool
	Mode        uint32
	HasSize     bool
	Size        int64
	HasMtime    bool
	Mtime       int64
	Symlink     []byte // non-nil marks presence
	HasDevice   bool
	DevMajor    uint32
	DevMinor    uint32
	HasHardlink bool
	HardlinkID  uint64
	MissingArg  bool
}

// idTable interns uint32 values (uid or gid) into indices 0..254; a
// 255 marker precedes a fresh 32-bit value not yet interned.
type idTable struct {
	values []uint32
	index  map[uint32]int
}

func newIDTable() *idTable {
	return &idTable{index: make(map[uint32]int)}
}

func (t *idTable) encode(w io.Writer, v uint32) error {
	if idx, ok := t.index[v]; ok && idx < 255 {
		_, err := w.Write([]byte{byte(idx)})
		return err
	}
	if _, err := w.Write([]byte{255}); err != nil {
		return err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	if len(t.values) < 255 {
		t.index[v] = len(t.values)
		t.values = append(t.values, v)
	}
	return nil
}

func (t *idTable) decode(r io.Reader) (uint32, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return 0, ErrShortInput()
	}
	if marker[0] != 255 {
		idx := int(marker[0])
		if idx >= len(t.values) {
			return 0, DecodeError{Kind: "BadUid", Idx: uint32(idx)}
		}
		return t.values[idx], nil
	}
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrShortInput()
	}
	v := binary.LittleEndian.Uint32(b[:])
	if len(t.values) < 255 {
		t.values = append(t.values, v)
	}
	return v, nil
}

// Encoder serializes a stream of Entry values with prefix compression
// against the previous entry's path and interned uid/gid tables.
type Encoder struct {
	w        io.Writer
	prevPath []byte
	uids     *idTable
	gids     *idTable
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, uids: newIDTable(), gids: newIDTable()}
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// extendedCommon is the sentinel value of the common-prefix byte that
// means "read a following u32 for the real count", for paths sharing more than 254
// bytes with the previous entry.
const extendedCommon = 255

func (e *Encoder) Encode(ent Entry) error {
	common := commonPrefixLen(e.prevPath, ent.Path)
	suffix := ent.Path[common:]
	if len(suffix) > 0xff {
		return fmt.Errorf("flist: suffix too long (%d bytes)", len(suffix))
	}

	if common >= extendedCommon {
		var b [5]byte
		b[0] = extendedCommon
		binary.LittleEndian.PutUint32(b[1:], uint32(common))
		if _, err := e.w.Write(b[:]); err != nil {
			return err
		}
	} else if _, err := e.w.Write([]byte{byte(common)}); err != nil {
		return err
	}
	if _, err := e.w.Write([]byte{byte(len(suffix))}); err != nil {
		return err
	}
	if _, err := e.w.Write(suffix); err != nil {
		return err
	}
	if err := e.uids.encode(e.w, ent.UID); err != nil {
		return err
	}
	if err := e.gids.encode(e.w, ent.GID); err != nil {
		return err
	}

	var flags byte
	if ent.HasMode {
		flags |= extMode
	}
	if ent.HasSize {
		flags |= extSize
	}
	if ent.HasMtime {
		flags |= extMtime
	}
	if ent.Symlink != nil {
		flags |= extSymlink
	}
	if ent.HasDevice {
		flags |= extDevice
	}
	if ent.HasHardlink {
		flags |= extHardlink
	}
	if ent.MissingArg {
		flags |= extMissingArg
	}
	if _, err := e.w.Write([]byte{flags}); err != nil {
		return err
	}

	var buf bytes.Buffer
	if ent.HasMode {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], ent.Mode)
		buf.Write(b[:])
	}
	if ent.HasSize {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(ent.Size))
		buf.Write(b[:])
	}
	if ent.HasMtime {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(ent.Mtime))
		buf.Write(b[:])
	}
	if ent.Symlink != nil {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(ent.Symlink)))
		buf.Write(b[:])
		buf.Write(ent.Symlink)
	}
	if ent.HasDevice {
		var b [8]byte
		binary.LittleEndian.PutUint32(b[0:4], ent.DevMajor)
		binary.LittleEndian.PutUint32(b[4:8], ent.DevMinor)
		buf.Write(b[:])
	}
	if ent.HasHardlink {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], ent.HardlinkID)
		buf.Write(b[:])
	}
	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return err
	}

	e.prevPath = append(e.prevPath[:0], ent.Path...)
	return nil
}

// Decoder is the inverse of Encoder: a strict bijection on valid
// input.
type Decoder struct {
	r        io.Reader
	prevPath []byte
	uids     *idTable
	gids     *idTable
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, uids: newIDTable(), gids: newIDTable()}
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrShortInput()
	}
	return b[0], nil
}

// Decode reads the next entry, or io.EOF if the stream is exhausted at
// an entry boundary.
func (d *Decoder) Decode() (Entry, error) {
	commonByte, err := readByte(d.r)
	if err != nil {
		if err == ErrShortInput() {
			return Entry{}, io.EOF
		}
		return Entry{}, err
	}
	common := int(commonByte)
	if commonByte == extendedCommon {
		var b [4]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		common = int(binary.LittleEndian.Uint32(b[:]))
	}
	suffixLen, err := readByte(d.r)
	if err != nil {
		return Entry{}, err
	}
	suffix := make([]byte, suffixLen)
	if suffixLen > 0 {
		if _, err := io.ReadFull(d.r, suffix); err != nil {
			return Entry{}, ErrShortInput()
		}
	}
	if int(common) > len(d.prevPath) {
		return Entry{}, ErrShortInput()
	}
	path := append(append([]byte{}, d.prevPath[:common]...), suffix...)

	uid, err := d.uids.decode(d.r)
	if err != nil {
		if de, ok := err.(DecodeError); ok && de.Kind == "BadUid" {
			return Entry{}, err
		}
		return Entry{}, err
	}
	gid, err := d.gids.decode(d.r)
	if err != nil {
		if de, ok := err.(DecodeError); ok && de.Kind == "BadUid" {
			return Entry{}, DecodeError{Kind: "BadGid", Idx: de.Idx}
		}
		return Entry{}, err
	}

	flags, err := readByte(d.r)
	if err != nil {
		return Entry{}, err
	}

	ent := Entry{Path: path, UID: uid, GID: gid}
	if flags&extMode != 0 {
		var b [4]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		ent.HasMode = true
		ent.Mode = binary.LittleEndian.Uint32(b[:])
	}
	if flags&extSize != 0 {
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		ent.HasSize = true
		ent.Size = int64(binary.LittleEndian.Uint64(b[:]))
	}
	if flags&extMtime != 0 {
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		ent.HasMtime = true
		ent.Mtime = int64(binary.LittleEndian.Uint64(b[:]))
	}
	if flags&extSymlink != 0 {
		var b [4]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		n := binary.LittleEndian.Uint32(b[:])
		target := make([]byte, n)
		if _, err := io.ReadFull(d.r, target); err != nil {
			return Entry{}, ErrShortInput()
		}
		ent.Symlink = target
	}
	if flags&extDevice != 0 {
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		ent.HasDevice = true
		ent.DevMajor = binary.LittleEndian.Uint32(b[0:4])
		ent.DevMinor = binary.LittleEndian.Uint32(b[4:8])
	}
	if flags&extHardlink != 0 {
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return Entry{}, ErrShortInput()
		}
		ent.HasHardlink = true
		ent.HardlinkID = binary.LittleEndian.Uint64(b[:])
	}
	ent.MissingArg = flags&extMissingArg != 0

	d.prevPath = append(d.prevPath[:0], path...)
	return ent, nil
}
