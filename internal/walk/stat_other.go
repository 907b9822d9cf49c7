//go:build !linux && !darwin

package walk

import "io/fs"

func deviceNumbers(info fs.FileInfo) (major, minor uint32) {
	return 0, 0
}
