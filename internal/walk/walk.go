// Package walk produces the ordered directory-entry stream the
// transfer orchestrator turns into a file list: directories precede
// their contents, and siblings are visited in stable lexicographic
// order.
package walk

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Entry is one walked filesystem node, carrying enough of os.FileInfo
// for the caller to build a file-list Entry without a second stat.
type Entry struct {
	// Path is relative to the walk root, using '/' separators
	// regardless of host OS.
	Path    string
	Mode    fs.FileMode
	Size    int64
	ModTime time.Time
	IsDir   bool
	Symlink string // non-empty for symlinks; Mode&ModeSymlink set

	// DevMajor and DevMinor are set for character and block devices.
	DevMajor uint32
	DevMinor uint32
}

// Func is called once per Entry, in walk order. Returning
// filepath.SkipDir on a directory entry prunes its contents.
type Func func(Entry) error

// Walk walks root, invoking fn for each entry in turn. The root
// itself is not visited; only its descendants are.
func Walk(root string, fn Func) error {
	return walkDir(root, "", fn)
}

func walkDir(root, rel string, fn Func) error {
	absDir := filepath.Join(root, filepath.FromSlash(rel))
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}

	sort.Slice(dirEntries, func(i, j int) bool {
		return dirEntries[i].Name() < dirEntries[j].Name()
	})

	for _, de := range dirEntries {
		childRel := de.Name()
		if rel != "" {
			childRel = rel + "/" + de.Name()
		}
		absChild := filepath.Join(root, filepath.FromSlash(childRel))

		info, err := os.Lstat(absChild)
		if err != nil {
			return err
		}

		ent := Entry{
			Path:    childRel,
			Mode:    info.Mode(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		}
		ent.DevMajor, ent.DevMinor = deviceNumbers(info)
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(absChild)
			if err != nil {
				return err
			}
			ent.Symlink = target
		}

		if err := fn(ent); err != nil {
			if err == filepath.SkipDir {
				continue
			}
			return err
		}

		if ent.IsDir {
			if err := walkDir(root, childRel, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
