//go:build linux || darwin

package receiver

import (
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// createSpecial materializes a device node, fifo or socket at the
// destination, honoring the preserve-devices/preserve-specials flags
// (rsync/generator.c:recv_generator's special-file branch).
func (rt *Transfer) createSpecial(f *File, mode fs.FileMode) error {
	isDevice := mode&fs.ModeDevice != 0
	if isDevice && !rt.Opts.PreserveDevices {
		return nil
	}
	if !isDevice && !rt.Opts.PreserveSpecials {
		return nil
	}

	local := filepath.Join(rt.Dest, f.Name)
	os.Remove(local)

	perm := uint32(mode.Perm())
	switch {
	case mode&fs.ModeCharDevice != 0:
		return syscall.Mknod(local, syscall.S_IFCHR|perm, mkdev(f.DevMajor, f.DevMinor))
	case isDevice:
		return syscall.Mknod(local, syscall.S_IFBLK|perm, mkdev(f.DevMajor, f.DevMinor))
	case mode&fs.ModeNamedPipe != 0:
		return syscall.Mkfifo(local, perm)
	case mode&fs.ModeSocket != 0:
		return syscall.Mknod(local, syscall.S_IFSOCK|perm, 0)
	}
	return nil
}

func mkdev(major, minor int32) int {
	return int(uint64(major)<<8 | uint64(minor))
}
