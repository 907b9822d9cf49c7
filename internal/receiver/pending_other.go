//go:build !linux && !darwin

package receiver

import (
	"io/fs"
	"os"
	"path/filepath"
)

// pendingFile stages a destination file under a temporary name in the
// same directory and renames it into place on success. Rename does not
// replace an existing file on Windows, so the old destination is
// unlinked first; the window where neither file exists is the price of
// not having an atomic replace on this platform.
type pendingFile struct {
	f    *os.File
	path string
	done bool
}

func newPendingFile(path string) (*pendingFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, ".ocrsync-*.tmp")
	if err != nil {
		return nil, err
	}
	return &pendingFile{f: f, path: path}, nil
}

func (p *pendingFile) Write(b []byte) (int, error) { return p.f.Write(b) }

func (p *pendingFile) Truncate(size int64) error { return p.f.Truncate(size) }

func (p *pendingFile) CloseAtomicallyReplace() error {
	if err := p.f.Close(); err != nil {
		return err
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(p.f.Name(), p.path); err != nil {
		return err
	}
	p.done = true
	return nil
}

// Cleanup removes the temporary file unless it was already renamed into
// place, so every failure path leaves no half-written destination
// behind.
func (p *pendingFile) Cleanup() error {
	if p.done {
		return nil
	}
	p.f.Close()
	if err := os.Remove(p.f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

// setUid is a no-op where chown semantics are unavailable.
func (rt *Transfer) setUid(f *File, local string, st fs.FileInfo) (fs.FileInfo, error) {
	return st, nil
}

// createSpecial: device nodes, fifos and sockets cannot be materialized
// on this platform; they are skipped without an error and are not counted.
func (rt *Transfer) createSpecial(f *File, mode fs.FileMode) error {
	return nil
}
