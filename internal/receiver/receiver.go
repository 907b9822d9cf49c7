package receiver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/ocrsync/internal/checksum"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
)

// RecvFiles is the receive half of a transfer: for every regular file
// the sender announces by index, it reads the token stream and writes
// the reconstructed bytes to the destination (rsync/receiver.c:recv_files).
func (rt *Transfer) RecvFiles(fileList []*File) error {
	phase := 0
	for {
		idx, err := rt.Conn.ReadInt32()
		if err != nil {
			return err
		}
		if idx == -1 {
			if phase == 0 {
				phase++
				if rt.Opts.Verbose {
					rt.Logger.Printf("recvFiles phase=%d", phase)
				}
				continue
			}
			break
		}
		if int(idx) < 0 || int(idx) >= len(fileList) {
			return fmt.Errorf("receiver: file index %d out of range (have %d files)", idx, len(fileList))
		}
		if rt.Opts.Verbose {
			rt.Logger.Printf("receiving file idx=%d: %+v", idx, fileList[idx])
		}
		if err := rt.recvFile1(fileList[idx]); err != nil {
			rt.IOErrors++
			return err
		}
	}
	if rt.Opts.Verbose {
		rt.Logger.Printf("recvFiles finished")
	}
	return nil
}

func (rt *Transfer) recvFile1(f *File) error {
	localFile, err := rt.openLocalFile(f)
	if err != nil && !os.IsNotExist(err) {
		rt.Logger.Printf("opening local file failed, continuing: %v", err)
	}
	if localFile != nil {
		defer localFile.Close()
	}
	return rt.receiveData(f, localFile)
}

func (rt *Transfer) openLocalFile(f *File) (*os.File, error) {
	local := filepath.Join(rt.Dest, f.Name)
	in, err := os.Open(local)
	if err != nil {
		return nil, err
	}

	st, err := in.Stat()
	if err != nil {
		in.Close()
		return nil, err
	}

	if st.IsDir() {
		in.Close()
		return nil, fmt.Errorf("%s is a directory", local)
	}

	if !st.Mode().IsRegular() {
		in.Close()
		return nil, nil
	}

	if !rt.Opts.PreservePerms {
		// If the file exists already and we are not preserving permissions,
		// then act as though the remote sent us the existing permissions.
		f.Mode = int32(st.Mode().Perm())
	}

	return in, nil
}

// receiveData applies one file's Match/Literal token stream to the
// destination. The sender echoes the checksum header ahead of the
// tokens; its block size and remainder translate copy-token block
// indices into offsets in the basis file
// (rsync/receiver.c:receive_data).
func (rt *Transfer) receiveData(f *File, localFile *os.File) error {
	var head checksum.SumHead
	if _, err := head.ReadFrom(rt.Conn.Reader); err != nil {
		return err
	}

	local := filepath.Join(rt.Dest, f.Name)
	if rt.Opts.Verbose {
		rt.Logger.Printf("creating %s", local)
	}
	out, err := newPendingFile(local)
	if err != nil {
		// A per-file failure must not stop the transfer of other files:
		// drain this file's token stream so the session stays in sync,
		// count the error, and move on (the session exit code downgrades
		// to partial).
		if derr := rt.drainFile(); derr != nil {
			return derr
		}
		rt.IOErrors++
		rt.Logger.Printf("%s: %v", local, err)
		return nil
	}
	defer out.Cleanup()

	if rt.Opts.Preallocate && f.Size > 0 {
		if err := out.Truncate(f.Size); err != nil {
			return err
		}
	}

	h := checksum.NewHasher(rt.Hash, uint32(rt.Seed))
	cw := &rsyncwire.CountingWriter{W: out}
	wr := io.MultiWriter(cw, h)

	for {
		token, data, err := rt.recvToken()
		if err != nil {
			return err
		}
		if token == 0 {
			break
		}
		if token > 0 {
			if _, err := wr.Write(data); err != nil {
				return err
			}
			continue
		}
		if localFile == nil {
			return fmt.Errorf("receiver: %s: copy token received but no basis file is open", local)
		}
		blockIdx := int64(-(token + 1))
		offset := blockIdx * head.BlockLength
		dataLen := head.BlockLength
		if blockIdx == head.ChecksumCount-1 && head.RemainderLength != 0 {
			dataLen = head.RemainderLength
		}
		block := make([]byte, dataLen)
		if _, err := localFile.ReadAt(block, offset); err != nil && err != io.EOF {
			return err
		}
		if _, err := wr.Write(block); err != nil {
			return err
		}
	}

	localSum := h.Sum(nil)
	remoteSum := make([]byte, len(localSum))
	if _, err := io.ReadFull(rt.Conn.Reader, remoteSum); err != nil {
		return err
	}
	if !bytes.Equal(localSum, remoteSum) {
		return fmt.Errorf("receiver: checksum mismatch for %s", f.Name)
	}
	if rt.Opts.Verbose {
		rt.Logger.Printf("checksum %x matches", localSum)
	}

	if rt.Opts.Preallocate && cw.Bytes < f.Size {
		// The file shrank between the sender's walk and its transfer;
		// drop the preallocated tail.
		if err := out.Truncate(cw.Bytes); err != nil {
			return err
		}
	}

	if err := out.CloseAtomicallyReplace(); err != nil {
		return err
	}

	return rt.setPerms(f)
}

// drainFile consumes the remainder of one file's wire traffic (tokens
// and trailing whole-file digest) without applying it, so a per-file
// local failure leaves the session stream positioned at the next file.
func (rt *Transfer) drainFile() error {
	for {
		token, _, err := rt.recvToken()
		if err != nil {
			return err
		}
		if token == 0 {
			break
		}
	}
	sumLen := checksum.NewHasher(rt.Hash, uint32(rt.Seed)).Size()
	_, err := rt.Conn.ReadN(sumLen)
	return err
}

// recvToken reads one token: 0 ends the stream, a positive value is a
// literal run's length (with the data already consumed), a negative
// value encodes a basis block index as -(blockIndex+1).
func (rt *Transfer) recvToken() (int32, []byte, error) {
	token, err := rt.Conn.ReadInt32()
	if err != nil {
		return 0, nil, err
	}
	if token <= 0 {
		return token, nil, nil
	}
	data, err := rt.Conn.ReadN(int(token))
	if err != nil {
		return 0, nil, err
	}
	return token, data, nil
}
