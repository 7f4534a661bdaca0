// Package snapgob reads and writes gob values framed with snappy compression.
// Writes are atomic: data goes to a temp file in the target directory which is
// renamed over the destination once fully flushed.
package snapgob

import (
	"encoding/gob"
	"io"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Encode writes v to w.
func Encode(w io.Writer, v any) error {
	sw := snappy.NewBufferedWriter(w)
	if err := gob.NewEncoder(sw).Encode(v); err != nil {
		sw.Close()
		return errors.Wrap(err, "gob encode")
	}
	return errors.Wrap(sw.Close(), "snappy flush")
}

// Decode reads one value from r into v.
func Decode(r io.Reader, v any) error {
	return errors.Wrap(gob.NewDecoder(snappy.NewReader(r)).Decode(v), "gob decode")
}

// Save atomically writes v to path and returns the number of bytes written.
func Save(fs afero.Fs, path string, v any) (int64, error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return 0, errors.Wrapf(err, "mkdir %s", dir)
	}
	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return 0, errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			fs.Remove(tmpName)
		}
	}()

	if err := Encode(tmp, v); err != nil {
		return 0, errors.Wrapf(err, "encode %s", path)
	}
	if err := tmp.Sync(); err != nil {
		return 0, errors.Wrapf(err, "sync %s", tmpName)
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrapf(err, "close %s", tmpName)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return 0, errors.Wrapf(err, "rename %s", tmpName)
	}
	committed = true
	return info.Size(), nil
}

// Load reads the value stored at path into v.
func Load(fs afero.Fs, path string, v any) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return errors.Wrapf(Decode(f, v), "load %s", path)
}
