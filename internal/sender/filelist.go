package sender

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/ocrsync/internal/filter"
	"github.com/oferchen/ocrsync/internal/flist"
	"github.com/oferchen/ocrsync/internal/walk"
)

// buildFileList walks base and returns the resulting file list. When
// prefix is non-empty and has no trailing slash, the walk root itself
// becomes a named top-level entry (prefix) and every descendant is
// named prefix+"/"+relativePath — matching plain rsync's handling of
// a source argument with no trailing slash. An empty prefix, or one
// ending in "/", sends base's contents directly, with base itself
// represented by the conventional "." entry
// (rsync/flist.c:send_file_list).
func (rt *Transfer) buildFileList(base, prefix string, m *filter.Matcher) ([]*File, error) {
	rt.base = base
	rt.wrap = prefix != "" && !strings.HasSuffix(prefix, "/")
	rt.topName = strings.TrimSuffix(prefix, "/")
	if !rt.wrap {
		rt.topName = "."
	}
	wrap, topName := rt.wrap, rt.topName

	st, err := os.Lstat(base)
	if err != nil {
		if os.IsNotExist(err) {
			if rt.Opts.IgnoreMissingArgs() {
				return nil, nil
			}
			if rt.Opts.DeleteMissingArgs() {
				return []*File{{Name: topName, MissingArg: true}}, nil
			}
		}
		return nil, err
	}

	top := fileFromLstat(topName, base, st)
	fileList := []*File{top}
	if top.Symlink != "" || !st.IsDir() {
		return fileList, nil
	}

	if err := m.EnterDir(""); err != nil {
		return nil, err
	}
	err = walk.Walk(base, func(e walk.Entry) error {
		candidate := e.Path
		if e.IsDir {
			candidate += "/"
		}
		res, checkErr := m.Check(candidate, false, false)
		if checkErr != nil {
			return checkErr
		}
		if !res.Include {
			if e.IsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsDir {
			if err := m.EnterDir(e.Path); err != nil {
				return err
			}
		}

		name := e.Path
		if wrap {
			name = topName + "/" + e.Path
		}
		fileList = append(fileList, &File{
			Name:     name,
			Mode:     int32(e.Mode),
			Size:     e.Size,
			ModTime:  e.ModTime,
			IsDir:    e.IsDir,
			Symlink:  e.Symlink,
			DevMajor: e.DevMajor,
			DevMinor: e.DevMinor,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fileList, nil
}

func fileFromLstat(name, abs string, st os.FileInfo) *File {
	f := &File{
		Name:    name,
		Mode:    int32(st.Mode()),
		Size:    st.Size(),
		ModTime: st.ModTime(),
		IsDir:   st.IsDir(),
	}
	if st.Mode()&os.ModeSymlink != 0 {
		if target, err := os.Readlink(abs); err == nil {
			f.Symlink = target
		}
	}
	return f
}

// sendFileList writes fileList as a u32 count followed by that many
// internal/flist entries.
func (rt *Transfer) sendFileList(fileList []*File) error {
	if err := rt.Conn.WriteInt32(int32(len(fileList))); err != nil {
		return err
	}
	enc := flist.NewEncoder(rt.Conn.Writer)
	for _, f := range fileList {
		if err := enc.Encode(entryFromFile(f)); err != nil {
			return err
		}
	}
	return nil
}

func entryFromFile(f *File) flist.Entry {
	if f.MissingArg {
		return flist.Entry{Path: []byte(f.Name), MissingArg: true}
	}
	ent := flist.Entry{
		Path:     []byte(f.Name),
		UID:      uint32(f.Uid),
		GID:      uint32(f.Gid),
		HasMode:  true,
		Mode:     uint32(f.Mode),
		HasMtime: true,
		Mtime:    f.ModTime.Unix(),
	}
	if !f.IsDir {
		ent.HasSize = true
		ent.Size = f.Size
	}
	if f.Symlink != "" {
		ent.Symlink = []byte(f.Symlink)
	}
	if os.FileMode(f.Mode)&os.ModeDevice != 0 {
		ent.HasDevice = true
		ent.DevMajor = f.DevMajor
		ent.DevMinor = f.DevMinor
	}
	return ent
}
