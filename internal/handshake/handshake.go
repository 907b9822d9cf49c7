// Package handshake negotiates the protocol version and capability
// bitmask the two peers will run the rest of the session under.
package handshake

import "github.com/oferchen/ocrsync"

// ErrUnsupportedVersion is returned when neither peer's advertised
// version falls anywhere near the supported range.
type ErrUnsupportedVersion struct {
	Local, Peer int32
}

func (e ErrUnsupportedVersion) Error() string {
	return "handshake: no common protocol version"
}

// NegotiateVersion picks the protocol version the session will run
// under. Within the supported range [MIN=30, LATEST=32] it is simply
// min(local, peer). If either side advertises a version above LATEST
// (a newer peer this build doesn't know the extensions for) the
// negotiation falls back one below LATEST rather than trusting that
// the unknown version's wire format still matches ours exactly
// (a peer advertising 73 negotiates down to 31).
func NegotiateVersion(local, peer int32) (int32, error) {
	if local <= ocrsync.LatestProtocolVersion && peer <= ocrsync.LatestProtocolVersion {
		v := local
		if peer < v {
			v = peer
		}
		if v < ocrsync.MinProtocolVersion {
			return 0, ErrUnsupportedVersion{Local: local, Peer: peer}
		}
		return v, nil
	}

	safe := int32(ocrsync.LatestProtocolVersion - 1)
	v := safe
	if peer < v {
		v = peer
	}
	if local < v {
		v = local
	}
	if v < ocrsync.MinProtocolVersion {
		return 0, ErrUnsupportedVersion{Local: local, Peer: peer}
	}
	return v, nil
}

// NegotiateCapabilities ANDs the two capability bitmasks: a capability
// is active only when both peers advertised it.
func NegotiateCapabilities(local, peer uint32) uint32 {
	return local & peer
}

// Codec identifies the negotiated compression codec for the session.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZlib
	CodecZstd
	CodecLz4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZlib:
		return "zlib"
	case CodecZstd:
		return "zstd"
	case CodecLz4:
		return "lz4"
	default:
		return "unknown"
	}
}

// NegotiateCodec implements the codec preference order: Zstd if
// both sides carry CAP_CODECS|CAP_ZSTD and the user asked for
// compression, else Zlib if both carry CAP_CODECS, else none.
func NegotiateCodec(caps uint32, wantCompression bool) Codec {
	if !wantCompression || caps&ocrsync.CapCodecs == 0 {
		return CodecNone
	}
	if caps&ocrsync.CapZstd != 0 {
		return CodecZstd
	}
	return CodecZlib
}

// Hello is the version/capability pair each peer sends before any
// other protocol traffic.
type Hello struct {
	Version      int32
	Capabilities uint32
}

// Negotiated is the outcome of exchanging two Hello values.
type Negotiated struct {
	Version      int32
	Capabilities uint32
	Codec        Codec
}

// Negotiate runs the full handshake given both sides' Hello and
// whether the local user requested compression.
func Negotiate(local, peer Hello, wantCompression bool) (Negotiated, error) {
	version, err := NegotiateVersion(local.Version, peer.Version)
	if err != nil {
		return Negotiated{}, err
	}
	caps := NegotiateCapabilities(local.Capabilities, peer.Capabilities)
	return Negotiated{
		Version:      version,
		Capabilities: caps,
		Codec:        NegotiateCodec(caps, wantCompression),
	}, nil
}
