package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/srerickson/bagit-go/bagfs/local"
)

func TestWriteReadRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	is.NoErr(err)

	_, err = fsys.Write(ctx, "sub/hello.txt", strings.NewReader("hi\n"))
	is.NoErr(err)

	f, err := fsys.OpenFile(ctx, "sub/hello.txt")
	is.NoErr(err)
	defer f.Close()
	buf := make([]byte, 3)
	n, err := f.Read(buf)
	is.NoErr(err)
	is.Equal(string(buf[:n]), "hi\n")
}

func TestReadDirSorted(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	is.NoErr(err)

	for _, name := range []string{"b.txt", "a.txt", "c.txt"} {
		_, err := fsys.Write(ctx, name, strings.NewReader(name))
		is.NoErr(err)
	}
	entries, err := fsys.ReadDir(ctx, ".")
	is.NoErr(err)
	is.Equal(len(entries), 3)
	is.Equal(entries[0].Name(), "a.txt")
	is.Equal(entries[1].Name(), "b.txt")
	is.Equal(entries[2].Name(), "c.txt")
}

func TestRemoveEmptyParentsPrunesRealDirectories(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	root := t.TempDir()
	fsys, err := local.New(root)
	is.NoErr(err)

	_, err = fsys.Write(ctx, "data/sub/deep/hello.txt", strings.NewReader("hi\n"))
	is.NoErr(err)
	is.NoErr(fsys.Remove(ctx, "data/sub/deep/hello.txt"))

	is.NoErr(fsys.RemoveEmptyParents(ctx, "data/sub/deep/hello.txt", "data"))

	_, err = os.Stat(filepath.Join(root, "data", "sub", "deep"))
	is.True(os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "data", "sub"))
	is.True(os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "data"))
	is.NoErr(err) // stopAt directory itself is left in place
}

func TestRemoveEmptyParentsStopsAtNonEmptyDirectory(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	root := t.TempDir()
	fsys, err := local.New(root)
	is.NoErr(err)

	_, err = fsys.Write(ctx, "data/sub/keep.txt", strings.NewReader("keep\n"))
	is.NoErr(err)
	_, err = fsys.Write(ctx, "data/sub/gone.txt", strings.NewReader("gone\n"))
	is.NoErr(err)
	is.NoErr(fsys.Remove(ctx, "data/sub/gone.txt"))

	is.NoErr(fsys.RemoveEmptyParents(ctx, "data/sub/gone.txt", "data"))

	_, err = os.Stat(filepath.Join(root, "data", "sub"))
	is.NoErr(err) // not empty, still holds keep.txt
}

func TestRemoveAll(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	root := t.TempDir()
	fsys, err := local.New(root)
	is.NoErr(err)

	_, err = fsys.Write(ctx, "data/a.txt", strings.NewReader("a"))
	is.NoErr(err)
	is.NoErr(fsys.RemoveAll(ctx, "data"))

	_, err = os.Stat(filepath.Join(root, "data"))
	is.True(os.IsNotExist(err))
}
