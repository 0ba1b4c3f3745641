// Package atomicfile writes files atomically
// The data is written to a temporary file in the same directory which is then renamed over the target
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
)

// WriteFile writes data to the file named by filename atomically
// Readers either see the old contents or the new contents, never a mix
func WriteFile(filename string, data []byte, perm os.FileMode) (err error) {
	dir, base := filepath.Split(filename)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, base+".tmp*")
	if err != nil {
		return errors.WrapPrefix(err, "failed to create temporary file", 0)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		return errors.WrapPrefix(err, "failed to write temporary file", 0)
	}
	if err = f.Chmod(perm); err != nil {
		return errors.WrapPrefix(err, "failed to set permissions on temporary file", 0)
	}
	if err = f.Sync(); err != nil {
		return errors.WrapPrefix(err, "failed to sync temporary file", 0)
	}
	if err = f.Close(); err != nil {
		return errors.WrapPrefix(err, "failed to close temporary file", 0)
	}
	if err = os.Rename(tmp, filename); err != nil {
		return errors.WrapPrefix(err, "failed to rename temporary file", 0)
	}
	return nil
}
