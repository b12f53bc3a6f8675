// Package local implements bagfs.WriteFS over a directory on the host
// filesystem. It is the default backend a Bag uses for its root directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/srerickson/bagit-go/bagfs"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// FS is a bagfs.WriteFS rooted at an absolute directory on disk.
type FS struct {
	path string
}

var _ bagfs.WriteFS = (*FS)(nil)

// New returns an FS rooted at path. It does not require path to exist.
func New(path string) (*FS, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("new local backend: %w", err)
	}
	return &FS{path: abs}, nil
}

// Root returns the OS-native absolute path this FS is rooted at.
func (fsys *FS) Root() string {
	return fsys.path
}

func (fsys *FS) OpenFile(ctx context.Context, name string) (fs.File, error) {
	fullPath, err := fsys.osPath(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.New("is a directory")}
	}
	return f, nil
}

func (fsys *FS) ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	fullPath, err := fsys.osPath(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (fsys *FS) Write(ctx context.Context, name string, src io.Reader) (int64, error) {
	fullPath, err := fsys.osPath(name)
	if err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	parent := filepath.Dir(fullPath)
	if err := os.MkdirAll(parent, dirPerm); err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	dst, err := os.OpenFile(fullPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		return n, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	if err := dst.Close(); err != nil {
		return n, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	return n, nil
}

func (fsys *FS) Remove(ctx context.Context, name string) error {
	fullPath, err := fsys.osPath(name)
	if err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	if name == "." {
		return &fs.PathError{Op: "remove", Path: name, Err: errors.New("cannot remove top-level directory")}
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

func (fsys *FS) RemoveAll(ctx context.Context, name string) error {
	fullPath, err := fsys.osPath(name)
	if err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	if name == "." {
		return &fs.PathError{Op: "remove", Path: name, Err: errors.New("cannot remove top-level directory")}
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

// MkdirAll ensures the named directory (and its parents) exist.
func (fsys *FS) MkdirAll(ctx context.Context, name string) error {
	fullPath, err := fsys.osPath(name)
	if err != nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return os.MkdirAll(fullPath, dirPerm)
}

// RemoveEmptyParents removes name's parent directory and its ancestors, up
// to but not including stopAt, as long as each is empty. It is used to prune
// directories left behind by remove_file.
func (fsys *FS) RemoveEmptyParents(ctx context.Context, name string, stopAt string) error {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(name)))
	for dir != "." && dir != "/" && dir != stopAt {
		fullPath, err := fsys.osPath(dir)
		if err != nil {
			return nil
		}
		entries, err := os.ReadDir(fullPath)
		if err != nil || len(entries) > 0 {
			return nil
		}
		if err := os.Remove(fullPath); err != nil {
			return nil
		}
		dir = filepath.ToSlash(filepath.Dir(dir))
	}
	return nil
}

func (fsys *FS) osPath(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", fs.ErrInvalid
	}
	return filepath.Join(fsys.path, filepath.FromSlash(name)), nil
}
