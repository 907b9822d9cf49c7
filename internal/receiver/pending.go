//go:build linux || darwin

package receiver

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// pendingFile is a file staged under a temporary name in the
// destination directory and atomically renamed into place once its
// contents and checksum have been verified, so a receiver crash never
// leaves a half-written destination file behind.
type pendingFile = renameio.PendingFile

func newPendingFile(path string) (*pendingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return renameio.NewPendingFile(path)
}
