package sender

import (
	"os"

	"github.com/oferchen/ocrsync"
	"github.com/oferchen/ocrsync/internal/checksum"
	"github.com/oferchen/ocrsync/internal/delta"
)

// sendFile reads the current contents of f, computes its delta against
// the receiver-supplied basis checksums, and writes the resulting
// Match/Literal token stream followed by the whole-file strong digest
// (rsync/sender.c:send_files).
func (rt *Transfer) sendFile(f *File, head checksum.SumHead, sums []checksum.BlockSum) (int64, error) {
	data, err := os.ReadFile(rt.localPath(f.Name))
	if err != nil {
		return 0, err
	}

	blockSize := head.BlockLength
	if blockSize <= 0 {
		blockSize = checksum.BlockSize(int64(len(data)))
	}
	strongLen := int(head.StrongLen)
	if strongLen <= 0 {
		strongLen = ocrsync.DefaultStrongLen
	}

	tokens := delta.Scan(data, sums, delta.Options{
		BlockSize: blockSize,
		Strong:    rt.Hash,
		Seed:      uint32(rt.Seed),
		StrongLen: strongLen,
		Remainder: head.RemainderLength,
	})
	if err := rt.sendTokens(tokens); err != nil {
		return 0, err
	}

	h := checksum.NewHasher(rt.Hash, uint32(rt.Seed))
	h.Write(data)
	if _, err := rt.Conn.Writer.Write(h.Sum(nil)); err != nil {
		return 0, err
	}

	return int64(len(data)), nil
}

// sendTokens writes tokens in the wire format internal/receiver's
// recvToken decodes: a positive int32 is a literal run's length
// (followed by that many raw bytes), a negative int32 is a single
// basis block index encoded as -(index+1), and 0 ends the stream. A
// multi-block Match is expanded into one token per block so the
// receiver never needs to know a run's length up front.
func (rt *Transfer) sendTokens(tokens []delta.Token) error {
	for _, t := range tokens {
		if t.IsMatch {
			for i := 0; i < t.Count; i++ {
				if err := rt.Conn.WriteInt32(int32(-(t.BlockIndex + i + 1))); err != nil {
					return err
				}
			}
			continue
		}
		if len(t.Bytes) == 0 {
			continue
		}
		if err := rt.Conn.WriteInt32(int32(len(t.Bytes))); err != nil {
			return err
		}
		if _, err := rt.Conn.Writer.Write(t.Bytes); err != nil {
			return err
		}
	}
	return rt.Conn.WriteInt32(0)
}
