package receiver

import (
	"os"
	"path/filepath"
)

// setPerms reapplies the sender's metadata to a just-written destination
// file, honoring only the preserve-* flags the invocation requested
// (rsync/receiver.c:finish_transfer, spread across set_perms-equivalent
// helpers).
func (rt *Transfer) setPerms(f *File) error {
	local := filepath.Join(rt.Dest, f.Name)

	if rt.Opts.PreservePerms && f.Mode != 0 {
		if err := os.Chmod(local, os.FileMode(f.Mode).Perm()); err != nil {
			return err
		}
	}

	if rt.Opts.PreserveUid || rt.Opts.PreserveGid {
		st, err := os.Lstat(local)
		if err != nil {
			return err
		}
		if _, err := rt.setUid(f, local, st); err != nil {
			return err
		}
	}

	if rt.Opts.PreserveTimes && !f.ModTime.IsZero() {
		if err := os.Chtimes(local, f.ModTime, f.ModTime); err != nil {
			return err
		}
	}

	return nil
}
