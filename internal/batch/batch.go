// Package batch implements the offline replay format: a serialisable
// {flist, checksums, data} triple that lets a
// transfer be captured once and replayed later without re-contacting
// the original peer. The three sections are independently-encoded
// byte blobs produced by internal/flist and internal/checksum; this
// package only concerns itself with framing them into one file.
package batch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Batch is the decoded form of a batch file.
type Batch struct {
	FileList  []byte
	Checksums []byte
	Data      []byte
}

// magic identifies a batch file; version allows the framing itself to
// evolve independently of the flist/checksum wire formats it carries.
const (
	magic   = "OCRB"
	version = 1
)

func writeSection(w io.Writer, p []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

func readSection(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Encode writes b to w as: magic, version, then the flist, checksums
// and data sections each as a u32 length followed by that many bytes.
// Encode and Decode are exact inverses.
func Encode(w io.Writer, b Batch) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(version)); err != nil {
		return err
	}
	for _, section := range [][]byte{b.FileList, b.Checksums, b.Data} {
		if err := writeSection(w, section); err != nil {
			return err
		}
	}
	return nil
}

// EncodeBytes is a convenience wrapper returning the encoded bytes
// directly, for callers (tests, CLI --write-batch) that don't already
// hold a io.Writer.
func EncodeBytes(b Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(r io.Reader) (Batch, error) {
	var hdr [len(magic)]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Batch{}, err
	}
	if string(hdr[:]) != magic {
		return Batch{}, fmt.Errorf("batch: bad magic %q", hdr[:])
	}
	var ver uint32
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return Batch{}, err
	}
	if ver != version {
		return Batch{}, fmt.Errorf("batch: unsupported version %d", ver)
	}
	flist, err := readSection(r)
	if err != nil {
		return Batch{}, err
	}
	checksums, err := readSection(r)
	if err != nil {
		return Batch{}, err
	}
	data, err := readSection(r)
	if err != nil {
		return Batch{}, err
	}
	return Batch{FileList: flist, Checksums: checksums, Data: data}, nil
}

// DecodeBytes is the EncodeBytes counterpart.
func DecodeBytes(p []byte) (Batch, error) {
	return Decode(bytes.NewReader(p))
}
