// Package cloud implements bagfs.WriteFS over a gocloud.dev blob bucket, so
// a bag root can live in S3, GCS, Azure Blob, or (via memblob) purely in
// memory for deterministic tests, without the bag engine knowing the
// difference.
package cloud

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/srerickson/bagit-go/bagfs"
)

// FS adapts a *blob.Bucket to bagfs.WriteFS.
type FS struct {
	bucket *blob.Bucket
	log    logr.Logger
}

var _ bagfs.WriteFS = (*FS)(nil)

type Option func(*FS)

// WithLogger sets the logger used for debug-level backend tracing. The zero
// value uses logr.Discard(), so callers who don't care about logging pay
// nothing for it.
func WithLogger(l logr.Logger) Option {
	return func(fsys *FS) { fsys.log = l }
}

// New wraps bucket as a bagfs.WriteFS.
func New(bucket *blob.Bucket, opts ...Option) *FS {
	fsys := &FS{bucket: bucket, log: logr.Discard()}
	for _, opt := range opts {
		opt(fsys)
	}
	return fsys
}

func (fsys *FS) OpenFile(ctx context.Context, name string) (fs.File, error) {
	fsys.log.V(1).Info("open file", "name", name)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	r, err := fsys.bucket.NewReader(ctx, name, nil)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &file{ReadCloser: r, info: fileInfo{name: path.Base(name), size: r.Size(), modTime: r.ModTime()}}, nil
}

func (fsys *FS) ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	fsys.log.V(1).Info("read dir", "name", name)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	const pageSize = 1000
	opts := &blob.ListOptions{Delimiter: "/"}
	if name != "." {
		opts.Prefix = name + "/"
	}
	var (
		token   = blob.FirstPageToken
		results []fs.DirEntry
	)
	for {
		list, next, err := fsys.bucket.ListPage(ctx, token, pageSize, opts)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
		for _, item := range list {
			base := path.Base(item.Key)
			inf := fileInfo{name: base, size: item.Size, modTime: item.ModTime}
			if item.IsDir {
				inf.mode = fs.ModeDir
			}
			results = append(results, inf)
		}
		token = next
		if len(token) == 0 {
			break
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name() < results[j].Name() })
	if len(results) == 0 && name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return results, nil
}

func (fsys *FS) Write(ctx context.Context, name string, r io.Reader) (int64, error) {
	fsys.log.V(1).Info("write file", "name", name)
	w, err := fsys.bucket.NewWriter(ctx, name, nil)
	if err != nil {
		return 0, err
	}
	n, writeErr := io.Copy(w, r)
	closeErr := w.Close()
	if writeErr != nil {
		return n, writeErr
	}
	return n, closeErr
}

func (fsys *FS) Remove(ctx context.Context, name string) error {
	fsys.log.V(1).Info("remove", "name", name)
	err := fsys.bucket.Delete(ctx, name)
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (fsys *FS) RemoveAll(ctx context.Context, name string) error {
	prefix := name
	if prefix != "." {
		prefix += "/"
	} else {
		prefix = ""
	}
	iter := fsys.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := fsys.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return err
		}
	}
	return nil
}

type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
	mode    fs.FileMode
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.size }
func (i fileInfo) Mode() fs.FileMode  { return i.mode }
func (i fileInfo) ModTime() time.Time { return i.modTime }
func (i fileInfo) IsDir() bool        { return i.mode.IsDir() }
func (i fileInfo) Sys() any           { return nil }

func (i fileInfo) Type() fs.FileMode          { return i.mode.Type() }
func (i fileInfo) Info() (fs.FileInfo, error) { return i, nil }

type file struct {
	io.ReadCloser
	info fileInfo
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }
