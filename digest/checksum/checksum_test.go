package checksum_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/srerickson/bagit-go/bagfs/memfs"
	"github.com/srerickson/bagit-go/digest"
	"github.com/srerickson/bagit-go/digest/checksum"
)

func TestRunComputesEveryAlgorithmInOnePass(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	_, err := fsys.Write(ctx, "data/hello.txt", strings.NewReader("hi\n"))
	is.NoErr(err)

	md5Alg, err := digest.Get("md5")
	is.NoErr(err)
	sha512Alg, err := digest.Get("sha512")
	is.NoErr(err)

	var results []checksum.Result
	err = checksum.Run(ctx, fsys, []string{"data/hello.txt"}, []digest.Alg{md5Alg, sha512Alg}, 2, func(r checksum.Result) error {
		results = append(results, r)
		return nil
	})
	is.NoErr(err)
	is.Equal(len(results), 1)
	is.Equal(results[0].Path, "data/hello.txt")
	is.NoErr(results[0].Err)
	is.Equal(len(results[0].Digests), 2)
	is.True(results[0].Digests["md5"] != "")
	is.True(results[0].Digests["sha512"] != "")
}

func TestRunStopsOnConsumerError(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	for _, name := range []string{"data/a.txt", "data/b.txt", "data/c.txt"} {
		_, err := fsys.Write(ctx, name, strings.NewReader(name))
		is.NoErr(err)
	}
	alg, err := digest.Get("sha256")
	is.NoErr(err)

	boom := errors.New("stop")
	seen := 0
	err = checksum.Run(ctx, fsys, []string{"data/a.txt", "data/b.txt", "data/c.txt"}, []digest.Alg{alg}, 1, func(r checksum.Result) error {
		seen++
		return boom
	})
	is.Equal(err, boom)
	is.True(seen >= 1)
}

func TestRunReportsMissingFileError(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	alg, err := digest.Get("sha256")
	is.NoErr(err)

	var got checksum.Result
	err = checksum.Run(ctx, fsys, []string{"data/missing.txt"}, []digest.Alg{alg}, 1, func(r checksum.Result) error {
		got = r
		return nil
	})
	is.NoErr(err)
	is.True(got.Err != nil)
}
