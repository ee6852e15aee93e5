package internal

import (
	"os"
	"path/filepath"

	"github.com/davidmdm/x/xerr"
)

// WriteFile replaces filename with data. The content is written to a temporary file in the same
// directory first so readers never observe a partially written descriptor.
func WriteFile(filename string, data []byte) (err error) {
	file, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = xerr.MultiErrFrom("", err, os.Remove(file.Name()))
		}
	}()

	if err := file.Chmod(0o644); err != nil {
		return xerr.MultiErrFrom("", err, file.Close())
	}
	if _, err := file.Write(data); err != nil {
		return xerr.MultiErrFrom("", err, file.Close())
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(file.Name(), filename)
}
