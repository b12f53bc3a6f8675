package bagit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	bagit "github.com/srerickson/bagit-go"
	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/bagfs/local"
	"github.com/srerickson/bagit-go/bagfs/memfs"
	"github.com/srerickson/bagit-go/report"
)

const helloDigestSHA512 = "d78abb0542736865f94704521609c230dac03a2f369d043ac212d6933b91410e06399e37f9c5cc88436a31737330c1c8eccb2c2f9f374d62f716432a32d50fac"
const helloDigestMD5 = "764efa883dda1e11db47671c4a3bbd9e"

type fixedClock struct{ t time.Time }

func (c fixedClock) Today() time.Time { return c.t }

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestMinimalBagCreateUpdate covers S1.
func TestMinimalBagCreateUpdate(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	src := writeTempFile(t, "hello.txt", "hi\n")

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	is.NoErr(b.AddFile(ctx, src, "hello.txt"))
	is.NoErr(b.Update(ctx))

	declBytes, err := bagfs.ReadAll(ctx, fsys, "bagit.txt")
	is.NoErr(err)
	is.Equal(string(declBytes), "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n")

	manBytes, err := bagfs.ReadAll(ctx, fsys, "manifest-sha512.txt")
	is.NoErr(err)
	is.Equal(string(manBytes), helloDigestSHA512+" data/hello.txt\n")

	is.True(bagfs.Exists(ctx, fsys, "data/hello.txt"))
}

// TestAlgorithmSwap covers S2.
func TestAlgorithmSwap(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	src := writeTempFile(t, "hello.txt", "hi\n")

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	is.NoErr(b.AddFile(ctx, src, "hello.txt"))
	is.NoErr(b.Update(ctx))

	b2, err := bagit.Load(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	is.NoErr(b2.SetAlgorithm("md5"))
	is.NoErr(b2.Update(ctx))

	is.True(!bagfs.Exists(ctx, fsys, "manifest-sha512.txt"))
	manBytes, err := bagfs.ReadAll(ctx, fsys, "manifest-md5.txt")
	is.NoErr(err)
	is.Equal(string(manBytes), helloDigestMD5+" data/hello.txt\n")
}

// TestExtendedBag covers S3.
func TestExtendedBag(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	src := writeTempFile(t, "hello.txt", "hi\n")
	clock := fixedClock{t: time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)}

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys), bagit.WithClock(clock))
	is.NoErr(err)
	is.NoErr(b.AddFile(ctx, src, "hello.txt"))
	b.SetExtended(true)
	is.NoErr(b.SetBagInfoTag("Source-Organization", "ACME"))
	is.NoErr(b.Update(ctx))

	infoBytes, err := bagfs.ReadAll(ctx, fsys, "bag-info.txt")
	is.NoErr(err)
	info := string(infoBytes)
	is.True(strings.Contains(info, "Source-Organization: ACME"))
	is.True(strings.Contains(info, "Payload-Oxum: 3.1"))
	is.True(strings.Contains(info, "Bagging-Date: 2026-08-06"))

	tagManBytes, err := bagfs.ReadAll(ctx, fsys, "tagmanifest-sha512.txt")
	is.NoErr(err)
	tagMan := string(tagManBytes)
	for _, want := range []string{"bagit.txt", "bag-info.txt", "manifest-sha512.txt"} {
		is.True(strings.Contains(tagMan, want))
	}
}

// TestMissingFileDetection covers S4.
func TestMissingFileDetection(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	src := writeTempFile(t, "hello.txt", "hi\n")
	clock := fixedClock{t: time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)}

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys), bagit.WithClock(clock))
	is.NoErr(err)
	is.NoErr(b.AddFile(ctx, src, "hello.txt"))
	b.SetExtended(true)
	is.NoErr(b.Update(ctx))

	is.NoErr(fsys.Remove(ctx, "data/hello.txt"))

	loaded, err := bagit.Load(ctx, "/b", bagit.WithFS(fsys), bagit.WithClock(clock))
	is.NoErr(err)
	ok, err := loaded.Validate(ctx)
	is.NoErr(err)
	is.True(!ok)

	var found bool
	for _, p := range loaded.Errors() {
		if p.Kind == report.MissingFile && p.File == "data/hello.txt" {
			found = true
		}
	}
	is.True(found)
}

// TestRepeatabilityViolation covers S5.
func TestRepeatabilityViolation(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()

	is.NoErr(writeAll(ctx, fsys, "bagit.txt", "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"))
	is.NoErr(writeAll(ctx, fsys, "manifest-sha512.txt", ""))
	is.NoErr(writeAll(ctx, fsys, "bag-info.txt", "Payload-Oxum: 1.1\nPayload-Oxum: 2.2\n"))

	b, err := bagit.Load(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)

	var found bool
	for _, p := range b.Errors() {
		if p.Kind == report.RepeatabilityConflict && p.Line == 2 {
			found = true
		}
	}
	is.True(found)
}

// TestReservedNameRejection covers S6.
func TestReservedNameRejection(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	src := writeTempFile(t, "con.txt", "x")

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)

	err = b.AddFile(ctx, src, "CON")
	is.True(err != nil)
	var bagErr *bagit.Error
	is.True(errors.As(err, &bagErr))
	is.Equal(bagErr.Kind, bagit.KindPolicy)
	is.True(!bagfs.Exists(ctx, fsys, "data/CON"))
}

// TestLoadValidateRoundTrip covers invariant 1.
func TestLoadValidateRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	src := writeTempFile(t, "hello.txt", "hi\n")
	clock := fixedClock{t: time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)}

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys), bagit.WithClock(clock))
	is.NoErr(err)
	is.NoErr(b.AddFile(ctx, src, "hello.txt"))
	b.SetExtended(true)
	is.NoErr(b.Update(ctx))

	loaded, err := bagit.Load(ctx, "/b", bagit.WithFS(fsys), bagit.WithClock(clock))
	is.NoErr(err)
	ok, err := loaded.Validate(ctx)
	is.NoErr(err)
	is.True(ok)
	is.Equal(len(loaded.Errors()), 0)
}

// TestRemoveFilePrunesManifest covers invariant 3, against the local
// (host-filesystem) backend so the directory it asserts on is a real one,
// not a blob store's implicit lack of directory objects.
func TestRemoveFilePrunesManifest(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	root := t.TempDir()
	fsys, err := local.New(root)
	is.NoErr(err)
	src := writeTempFile(t, "hello.txt", "hi\n")

	b, err := bagit.Create(ctx, root, bagit.WithFS(fsys))
	is.NoErr(err)
	is.NoErr(b.AddFile(ctx, src, "sub/hello.txt"))
	is.NoErr(b.Update(ctx))
	is.NoErr(b.RemoveFile(ctx, "sub/hello.txt"))
	is.NoErr(b.Update(ctx))

	is.Equal(len(b.PayloadFiles()), 0)
	is.True(!bagfs.Exists(ctx, fsys, "data/sub/hello.txt"))
	_, statErr := os.Stat(filepath.Join(root, "data", "sub"))
	is.True(os.IsNotExist(statErr))
}

// TestSetBagInfoTagRejectsGenerated covers invariant 4.
func TestSetBagInfoTagRejectsGenerated(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	err = b.SetBagInfoTag("Payload-Oxum", "1.1")
	is.True(err != nil)
	var bagErr *bagit.Error
	is.True(errors.As(err, &bagErr))
	is.Equal(bagErr.Kind, bagit.KindPolicy)
}

func writeAll(ctx context.Context, fsys bagfs.WriteFS, name, content string) error {
	_, err := fsys.Write(ctx, name, strings.NewReader(content))
	return err
}

// TestZeroPayloadDataDirMaterialized covers the step of Update that ensures
// data/ exists: a bag with no payload files must still materialize an empty
// data/ directory on disk against a real filesystem backend, not just an
// empty manifest.
func TestZeroPayloadDataDirMaterialized(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	root := t.TempDir()
	fsys, err := local.New(root)
	is.NoErr(err)

	b, err := bagit.Create(ctx, root, bagit.WithFS(fsys))
	is.NoErr(err)
	is.NoErr(b.Update(ctx))

	info, statErr := os.Stat(filepath.Join(root, "data"))
	is.NoErr(statErr)
	is.True(info.IsDir())

	manBytes, err := bagfs.ReadAll(ctx, fsys, "manifest-sha512.txt")
	is.NoErr(err)
	is.Equal(string(manBytes), "")
}

// TestNonUTFBagInfoEncodingRoundTrip covers the Tag-File-Character-Encoding
// declaration: a non-ASCII bag-info tag value written under a declared
// non-UTF-8 encoding must be stored on disk in that encoding and decoded
// back to its original form on Load.
func TestNonUTFBagInfoEncodingRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()
	const value = "Café Müller"

	b, err := bagit.Create(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	b.SetExtended(true)
	b.SetFileEncoding("ISO-8859-1")
	is.NoErr(b.SetBagInfoTag("Source-Organization", value))
	is.NoErr(b.Update(ctx))

	raw, err := bagfs.ReadAll(ctx, fsys, "bag-info.txt")
	is.NoErr(err)
	is.True(!strings.Contains(string(raw), value))
	is.True(strings.Contains(string(raw), "Source-Organization: "))

	loaded, err := bagit.Load(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	got := loaded.GetBagInfoByTag("Source-Organization")
	is.Equal(len(got), 1)
	is.Equal(got[0], value)
}

// TestAlgorithmParityMismatch covers invariant 4: an extended bag whose
// payload and tag manifests don't cover the same algorithm set must report
// an AlgorithmMismatch problem from Validate.
func TestAlgorithmParityMismatch(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys := memfs.New()

	is.NoErr(writeAll(ctx, fsys, "bagit.txt", "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"))
	is.NoErr(writeAll(ctx, fsys, "manifest-sha512.txt", ""))
	is.NoErr(writeAll(ctx, fsys, "tagmanifest-md5.txt", ""))
	is.NoErr(writeAll(ctx, fsys, "bag-info.txt", ""))

	b, err := bagit.Load(ctx, "/b", bagit.WithFS(fsys))
	is.NoErr(err)
	ok, err := b.Validate(ctx)
	is.NoErr(err)
	is.True(!ok)

	var found bool
	for _, p := range b.Errors() {
		if p.Kind == report.AlgorithmMismatch {
			found = true
		}
	}
	is.True(found)
}
