package maincmd

import (
	"fmt"
	"path/filepath"
)

// canUnexpectedlyWriteTo reports an error if path resolves to a
// different location once symlinks are followed. A read-only module
// whose root is later swapped for a symlink could otherwise let a
// client escape the path the Landlock ruleset was computed for.
func canUnexpectedlyWriteTo(path string) error {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if resolved != abs {
		return fmt.Errorf("refusing to serve %q read-only: resolves to %q via a symlink", path, resolved)
	}
	return nil
}
