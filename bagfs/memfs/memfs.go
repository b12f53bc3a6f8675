// Package memfs provides an in-memory bagfs.WriteFS backed by
// gocloud.dev/blob/memblob, for tests that exercise update() and validate()
// without touching disk.
package memfs

import (
	"gocloud.dev/blob/memblob"

	"github.com/srerickson/bagit-go/bagfs/cloud"
)

// FS is an in-memory bagfs.WriteFS.
type FS struct {
	*cloud.FS
}

// New returns an empty in-memory FS.
func New() *FS {
	return &FS{FS: cloud.New(memblob.OpenBucket(nil))}
}
