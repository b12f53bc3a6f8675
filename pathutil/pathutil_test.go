package pathutil_test

import (
	"testing"

	"github.com/matryer/is"

	"github.com/srerickson/bagit-go/pathutil"
)

func TestMakeRelative(t *testing.T) {
	is := is.New(t)

	is.Equal(pathutil.MakeRelative("/bags/b1", "/bags/b1/data/x.txt"), "data/x.txt")
	is.Equal(pathutil.MakeRelative("/bags/b1", "/bags/b1"), "")
	is.Equal(pathutil.MakeRelative("/bags/b1", "/bags/b1/../b2/x.txt"), "")
	is.Equal(pathutil.MakeRelative("/bags/b1", "/other/x.txt"), "")
}

func TestPathInPayload(t *testing.T) {
	is := is.New(t)

	is.True(pathutil.PathInPayload("/bags/b1", "/bags/b1/data/x.txt"))
	is.True(!pathutil.PathInPayload("/bags/b1", "/bags/b1/bagit.txt"))
}

func TestReservedName(t *testing.T) {
	is := is.New(t)

	is.True(pathutil.ReservedName("CON"))
	is.True(pathutil.ReservedName("con.txt"))
	is.True(pathutil.ReservedName("sub/dir/lpt1"))
	is.True(!pathutil.ReservedName("console.txt"))
	is.True(!pathutil.ReservedName("hello.txt"))
}

func TestWindowsIllegalChars(t *testing.T) {
	is := is.New(t)

	is.Equal(pathutil.WindowsIllegalChars("hello.txt"), nil)
	got := pathutil.WindowsIllegalChars(`weird<name>.txt`)
	is.Equal(len(got), 2)
}

func TestDecodeEncodeUTF8Passthrough(t *testing.T) {
	is := is.New(t)

	s, err := pathutil.Decode("UTF-8", []byte("héllo"))
	is.NoErr(err)
	is.Equal(s, "héllo")

	b, err := pathutil.Encode("", "héllo")
	is.NoErr(err)
	is.Equal(string(b), "héllo")
}

func TestDecodeUnsupportedEncoding(t *testing.T) {
	is := is.New(t)

	_, err := pathutil.Decode("not-a-real-encoding", []byte("x"))
	is.True(err != nil)
}
