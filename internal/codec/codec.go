// Package codec implements the pluggable compressor/decompressor the
// engine negotiates during the handshake: a small tagged variant over
// {compress(bytes)->bytes, decompress(bytes)->bytes} rather than a
// heterogeneous collection of owned handler interfaces.
package codec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/oferchen/ocrsync/internal/handshake"
)

// Codec compresses and decompresses whole buffers for one session. The
// None variant is the identity function; it exists so callers can treat
// every negotiated outcome uniformly instead of special-casing "no
// compression" at every call site.
type Codec interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// New returns the Codec implementation for a negotiated
// handshake.Codec value.
func New(c handshake.Codec) (Codec, error) {
	switch c {
	case handshake.CodecNone:
		return noneCodec{}, nil
	case handshake.CodecZlib:
		return zlibCodec{}, nil
	case handshake.CodecZstd:
		return zstdCodec{}, nil
	case handshake.CodecLz4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("codec: unsupported codec %d", c)
	}
}

type noneCodec struct{}

func (noneCodec) Compress(p []byte) ([]byte, error)   { return p, nil }
func (noneCodec) Decompress(p []byte) ([]byte, error) { return p, nil }

type zlibCodec struct{}

func (zlibCodec) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(p []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// zstdCodec wraps klauspost/compress/zstd; the encoder/decoder pair is
// stateless across calls (each Compress/Decompress opens a fresh
// frame), which costs more than reusing a *zstd.Encoder across a whole
// session but keeps the Codec interface free of a Close method the
// other variants don't need.
type zstdCodec struct{}

func (zstdCodec) Compress(p []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.EncodeAll(p, nil), nil
}

func (zstdCodec) Decompress(p []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.DecodeAll(p, nil)
}

type lz4Codec struct{}

func (lz4Codec) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(p []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(p))
	return io.ReadAll(r)
}
