package receiver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oferchen/ocrsync"
	"github.com/oferchen/ocrsync/internal/checksum"
	"github.com/oferchen/ocrsync/internal/flist"
)

// ReceiveFileList decodes the file list the sender built: a u32 entry
// count followed by that many internal/flist entries.
func (rt *Transfer) ReceiveFileList() ([]*File, error) {
	n, err := rt.Conn.ReadInt32()
	if err != nil {
		return nil, err
	}
	dec := flist.NewDecoder(rt.Conn.Reader)
	fileList := make([]*File, 0, n)
	for i := int32(0); i < n; i++ {
		ent, err := dec.Decode()
		if err != nil {
			return nil, err
		}
		fileList = append(fileList, fileFromEntry(ent))
	}
	return fileList, nil
}

func fileFromEntry(ent flist.Entry) *File {
	f := &File{
		Name: string(ent.Path),
		Uid:  int32(ent.UID),
		Gid:  int32(ent.GID),
	}
	if ent.HasMode {
		f.Mode = int32(ent.Mode)
		f.IsDir = fs.FileMode(ent.Mode).IsDir()
	}
	if ent.HasSize {
		f.Size = ent.Size
	}
	if ent.HasMtime {
		f.ModTime = modTimeFromUnix(ent.Mtime)
	}
	if ent.Symlink != nil {
		f.Symlink = string(ent.Symlink)
	}
	if ent.HasDevice {
		f.DevMajor = int32(ent.DevMajor)
		f.DevMinor = int32(ent.DevMinor)
	}
	if ent.HasHardlink {
		f.HasHardlink = true
		f.HardlinkID = ent.HardlinkID
	}
	f.MissingArg = ent.MissingArg
	return f
}

// GenerateFiles is the generator half of a receive: for each regular
// file it fingerprints whatever basis already exists at the
// destination and sends the resulting Checksums message to the sender,
// so the sender can reply with a Match/Literal token stream
// (rsync/generator.c:generate_files). Directories
// and symlinks are materialized directly since they carry no delta.
func (rt *Transfer) GenerateFiles(fileList []*File) error {
	for i, f := range fileList {
		if f.MissingArg {
			if rt.Opts.DryRun {
				continue
			}
			local := filepath.Join(rt.Dest, f.Name)
			if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		switch {
		case f.IsDir:
			if rt.Opts.DryRun {
				continue
			}
			if err := os.MkdirAll(filepath.Join(rt.Dest, f.Name), 0o755); err != nil && !os.IsExist(err) {
				return err
			}
			continue
		case f.Symlink != "":
			if !rt.Opts.PreserveLinks || rt.Opts.DryRun {
				continue
			}
			local := filepath.Join(rt.Dest, f.Name)
			os.Remove(local)
			if err := symlink(f.Symlink, local); err != nil {
				return err
			}
			continue
		}

		if rt.Opts.DryRun {
			if !rt.Opts.Server {
				fmt.Fprintln(rt.Env.Stdout, f.Name)
			}
			continue
		}

		mode := fs.FileMode(f.Mode)
		if mode&(fs.ModeDevice|fs.ModeCharDevice|fs.ModeNamedPipe|fs.ModeSocket) != 0 {
			if rt.Opts.DryRun {
				continue
			}
			if err := rt.createSpecial(f, mode); err != nil {
				rt.IOErrors++
				rt.Logger.Printf("%s: %v", f.Name, err)
			}
			continue
		}
		if f.Mode != 0 && !mode.IsRegular() {
			continue
		}

		// Quick check: a destination file whose size and mtime already
		// match the sender's is treated as up to date and not requested
		// at all (rsync/generator.c:unchanged_file).
		local := filepath.Join(rt.Dest, f.Name)
		if st, err := os.Lstat(local); err == nil &&
			st.Mode().IsRegular() &&
			st.Size() == f.Size &&
			!f.ModTime.IsZero() && st.ModTime().Equal(f.ModTime) {
			continue
		}

		data, err := rt.basisData(f)
		if err != nil {
			return err
		}
		blockSize := rt.Opts.BlockSize
		if blockSize <= 0 {
			blockSize = checksum.BlockSize(f.Size)
		}
		head, sums := checksum.BuildSums(data, blockSize, rt.Hash, uint32(rt.Seed), ocrsync.DefaultStrongLen)

		if err := rt.Conn.WriteInt32(int32(i)); err != nil {
			return err
		}
		if err := checksum.WriteSums(rt.Conn.Writer, head, sums); err != nil {
			return err
		}
	}
	// End of the first pass, then immediately of the redo pass: Redo
	// re-queueing is driven by message-channel traffic, not by this
	// stream, so with nothing re-queued the two phase terminators go
	// out back to back.
	if err := rt.Conn.WriteInt32(-1); err != nil {
		return err
	}
	return rt.Conn.WriteInt32(-1)
}

// basisData returns the current contents of the destination copy of f,
// or nil if it does not exist yet (an empty basis, forcing the sender
// to transmit the whole file as literal data).
func (rt *Transfer) basisData(f *File) ([]byte, error) {
	local := filepath.Join(rt.Dest, f.Name)
	data, err := os.ReadFile(local)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
