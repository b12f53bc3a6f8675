// Package bagfs defines the minimal storage abstraction the bag engine uses
// to read, write, and list files. Concrete backends (bagfs/local for the
// host filesystem, bagfs/cloud for a gocloud.dev blob bucket) let callers
// inject a filesystem collaborator, which is what makes update() and
// validate() exercisable deterministically in tests without touching disk.
package bagfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
)

// ErrOpUnsupported is returned when a backend is asked to perform an
// operation it doesn't implement, e.g. ReadDir on a write-only FS.
var ErrOpUnsupported = errors.New("operation not supported by this backend")

// FS reads named files. It is the minimum a bag root needs to be readable.
type FS interface {
	OpenFile(ctx context.Context, name string) (fs.File, error)
}

// ReadDirFS additionally lists directory entries.
type ReadDirFS interface {
	FS
	// ReadDir returns the entries of the named directory in sorted order.
	ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error)
}

// WriteFS is a backend a bag can be created or mutated in.
type WriteFS interface {
	ReadDirFS
	Write(ctx context.Context, name string, r io.Reader) (int64, error)
	Remove(ctx context.Context, name string) error
	RemoveAll(ctx context.Context, name string) error
}

// ReadAll reads the full contents of the named file.
func ReadAll(ctx context.Context, fsys FS, name string) ([]byte, error) {
	f, err := fsys.OpenFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// StatFile opens name only to stat it, so backends without a native stat
// operation (e.g. cloud buckets) still work.
func StatFile(ctx context.Context, fsys FS, name string) (fs.FileInfo, error) {
	f, err := fsys.OpenFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// Exists reports whether name can be opened. It treats any error as
// nonexistence, matching the way the bag engine uses it: to decide whether a
// manifested path is present, not to distinguish failure modes.
func Exists(ctx context.Context, fsys FS, name string) bool {
	f, err := fsys.OpenFile(ctx, name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// WalkFiles recursively lists every regular file under dir, returning paths
// relative to the bag root in depth-first order, each directory's entries
// sorted by name. It descends using ReadDir, which
// keeps it agnostic to the backend (local directory or cloud prefix).
func WalkFiles(ctx context.Context, fsys ReadDirFS, dir string) ([]string, error) {
	var out []string
	entries, err := fsys.ReadDir(ctx, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		name := dir + "/" + e.Name()
		if dir == "." {
			name = e.Name()
		}
		if e.IsDir() {
			sub, err := WalkFiles(ctx, fsys, name)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
