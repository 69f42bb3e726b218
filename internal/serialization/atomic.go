package serialization

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/born-ml/hdlgen/internal/model"
)

// WriteFileAtomic writes path through a temporary file in the same
// directory that is renamed over path only after write succeeded. On any
// failure the temporary file is removed and an existing file at path is
// left untouched. IOErrors from write without a path get path filled in.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return &model.IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()         // Best effort close on error
			_ = os.Remove(tmpName) // Never leave a partial file behind
		}
	}()

	if err := write(tmp); err != nil {
		var ioErr *model.IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		return &model.IOError{Op: "write", Path: path, Err: err}
	}
	//nolint:gosec // G302: outputs are world readable like any other source file
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &model.IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &model.IOError{Op: "rename", Path: path, Err: err}
	}
	committed = true
	return nil
}
