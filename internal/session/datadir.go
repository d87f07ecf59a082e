package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ensureDir creates path and its parents. A directory already at path is
// fine; anything else there is an error.
func ensureDir(path string) error {
	err := os.MkdirAll(path, 0o700)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if fi, statErr := os.Stat(path); statErr == nil && fi.IsDir() {
			return nil
		}
	}
	return fmt.Errorf("create %s: %w", path, err)
}
