package checksum

import (
	"encoding/binary"
	"io"
)

// WriteTo serializes a Checksums message header: block_size, block_count,
// strong_len, remainder_length, each a little-endian uint32.
func (s SumHead) WriteTo(w io.Writer) (int64, error) {
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(s.BlockLength))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(s.ChecksumCount))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(s.StrongLen))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(s.RemainderLength))
	n, err := w.Write(hdr[:])
	return int64(n), err
}

// ReadFrom decodes a Checksums message header written by WriteTo.
func (s *SumHead) ReadFrom(r io.Reader) (int64, error) {
	var hdr [16]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		return int64(n), err
	}
	s.BlockLength = int64(binary.LittleEndian.Uint32(hdr[0:4]))
	s.ChecksumCount = int64(binary.LittleEndian.Uint32(hdr[4:8]))
	s.StrongLen = int64(binary.LittleEndian.Uint32(hdr[8:12]))
	s.RemainderLength = int64(binary.LittleEndian.Uint32(hdr[12:16]))
	return int64(n), nil
}

// WriteSums writes a full Checksums message: the SumHead followed by each
// block's weak checksum and (possibly truncated) strong digest in order.
func WriteSums(w io.Writer, head SumHead, sums []BlockSum) error {
	if _, err := head.WriteTo(w); err != nil {
		return err
	}
	var weakBuf [4]byte
	for _, s := range sums {
		binary.LittleEndian.PutUint32(weakBuf[:], s.Weak)
		if _, err := w.Write(weakBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(s.Strong); err != nil {
			return err
		}
	}
	return nil
}

// ReadSums is the inverse of WriteSums.
func ReadSums(r io.Reader) (SumHead, []BlockSum, error) {
	var head SumHead
	if _, err := head.ReadFrom(r); err != nil {
		return SumHead{}, nil, err
	}
	sums := make([]BlockSum, 0, head.ChecksumCount)
	var weakBuf [4]byte
	for i := int64(0); i < head.ChecksumCount; i++ {
		if _, err := io.ReadFull(r, weakBuf[:]); err != nil {
			return SumHead{}, nil, err
		}
		strong := make([]byte, head.StrongLen)
		if _, err := io.ReadFull(r, strong); err != nil {
			return SumHead{}, nil, err
		}
		sums = append(sums, BlockSum{
			Index:  int(i),
			Weak:   binary.LittleEndian.Uint32(weakBuf[:]),
			Strong: strong,
		})
	}
	return head, sums, nil
}

// BuildSums computes the block checksums of data the way a receiver fingerprints
// its basis file before asking the sender for a delta.
func BuildSums(data []byte, blockSize int64, hash StrongHash, seed uint32, strongLen int) (SumHead, []BlockSum) {
	if blockSize <= 0 {
		blockSize = BlockSize(int64(len(data)))
	}
	n := int64(len(data))
	count := n / blockSize
	remainder := n % blockSize
	if remainder != 0 {
		count++
	} else {
		remainder = blockSize
	}
	if n == 0 {
		return SumHead{BlockLength: blockSize, StrongLen: int64(strongLen)}, nil
	}

	sums := make([]BlockSum, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		block := data[start:end]
		sums = append(sums, BlockSum{
			Index:  int(i),
			Weak:   Seeded(block, seed),
			Strong: StrongDigest(block, hash, seed, strongLen),
		})
	}
	return SumHead{
		BlockLength:     blockSize,
		ChecksumCount:   count,
		StrongLen:       int64(strongLen),
		RemainderLength: remainder,
	}, sums
}
