// Package manifest implements the payload and tag manifest component: the
// parser/serializer for manifest-<alg>.txt and tagmanifest-<alg>.txt, digest
// computation over the files a manifest covers, and validation against the
// filesystem. Payload and tag manifests share this same type; they differ
// only in which files they enumerate, which callers express by passing a
// different file list to Compute and Validate (the "files-to-include
// strategy" from the design notes).
package manifest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/digest"
	"github.com/srerickson/bagit-go/digest/checksum"
	"github.com/srerickson/bagit-go/report"
)

// Kind distinguishes a payload manifest (covers data/) from a tag manifest
// (covers everything else in the bag root).
type Kind int

const (
	Payload Kind = iota
	Tag
)

func (k Kind) String() string {
	if k == Tag {
		return "tag"
	}
	return "payload"
}

// Filename returns the on-disk filename for a manifest of this kind and
// algorithm, e.g. "manifest-sha512.txt" or "tagmanifest-sha3-256.txt".
func Filename(kind Kind, alg digest.Alg) string {
	if kind == Tag {
		return "tagmanifest-" + alg.Filename() + ".txt"
	}
	return "manifest-" + alg.Filename() + ".txt"
}

// Manifest is an in-memory path -> hex digest map for one algorithm and
// kind. It holds no reference to a Bag; the bag's root path and encoding are
// passed in explicitly by the caller (an injected borrow, not ownership).
type Manifest struct {
	kind    Kind
	alg     digest.Alg
	entries map[string]string // path -> hex digest, as declared/parsed
}

// New creates an empty manifest for the given kind and algorithm.
func New(kind Kind, alg digest.Alg) *Manifest {
	return &Manifest{kind: kind, alg: alg, entries: map[string]string{}}
}

func (m *Manifest) Kind() Kind      { return m.kind }
func (m *Manifest) Alg() digest.Alg { return m.alg }
func (m *Manifest) Len() int        { return len(m.entries) }

// Paths returns every path referenced by the manifest, sorted.
func (m *Manifest) Paths() []string {
	out := make([]string, 0, len(m.entries))
	for p := range m.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Digest returns the digest recorded for path, if any.
func (m *Manifest) Digest(p string) (string, bool) {
	d, ok := m.entries[p]
	return d, ok
}

// Set records digest as the value for path, overwriting any prior value.
func (m *Manifest) Set(p, hexDigest string) {
	m.entries[p] = hexDigest
}

// Remove deletes path from the manifest, if present.
func (m *Manifest) Remove(p string) {
	delete(m.entries, p)
}

// Parse reads a manifest file: one "<hex><SP><path>" entry per line, with
// paths percent-decoded per RFC 8493 section 2.1.3. Duplicate paths are
// reported as ManifestParse Problems but do not abort the parse; the last
// occurrence wins, matching how a line-oriented reader would naturally
// overwrite an in-memory map.
func Parse(r io.Reader, kind Kind, alg digest.Alg) (*Manifest, report.List, error) {
	m := New(kind, alg)
	var problems report.List
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		hexDigest, p, ok := splitManifestLine(text)
		if !ok {
			problems.Add(report.Problem{Kind: report.ManifestParse, Line: line, Message: fmt.Sprintf("malformed manifest line: %q", text)})
			continue
		}
		if !digest.ValidHex(alg, hexDigest) {
			problems.Add(report.Problem{Kind: report.ManifestParse, Line: line, Message: fmt.Sprintf("digest %q is not a valid %s hex digest", hexDigest, alg.Name())})
			continue
		}
		p = percentDecode(p)
		if _, exists := m.entries[p]; exists {
			problems.Add(report.Problem{Kind: report.ManifestParse, File: p, Line: line, Message: "duplicate path in manifest"})
		}
		m.entries[p] = hexDigest
	}
	if err := scanner.Err(); err != nil {
		return m, problems, err
	}
	return m, problems, nil
}

// splitManifestLine splits "<hex><SP>+<path>" tolerating one or more spaces
// between digest and path, per the reader-tolerance rule in section 6.
func splitManifestLine(line string) (hexDigest, p string, ok bool) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return "", "", false
	}
	hexDigest = line[:i]
	rest := strings.TrimLeft(line[i:], " \t")
	if rest == "" {
		return "", "", false
	}
	return hexDigest, rest, true
}

// Serialize writes the manifest sorted by path, one space between digest and
// path, LF line endings, with paths percent-encoded per RFC 8493 section
// 2.1.3.
func (m *Manifest) Serialize(w io.Writer) error {
	for _, p := range m.Paths() {
		line := fmt.Sprintf("%s %s\n", m.entries[p], percentEncode(p))
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Compute recomputes digests for files by walking fsys with the given
// bagfs.FS: files is the exact set of paths (relative to the bag root) the
// manifest should cover, already resolved by the caller (payload:
// everything under data/; tag: bag-root files except tag manifests).
// Compute replaces the manifest's entries wholesale.
func Compute(ctx context.Context, fsys bagfs.FS, files []string, kind Kind, alg digest.Alg, workers int) (*Manifest, error) {
	m := New(kind, alg)
	err := checksum.Run(ctx, fsys, files, []digest.Alg{alg}, workers, func(res checksum.Result) error {
		if res.Err != nil {
			return res.Err
		}
		d, ok := res.Digests[alg.Name()]
		if !ok {
			return fmt.Errorf("no digest computed for %s", res.Path)
		}
		m.Set(res.Path, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Validate compares the manifest's entries against expectedFiles (the
// current, authoritative set of files the manifest's kind should cover) and
// the filesystem. It reports missing-file, extra-file, and digest-mismatch
// Problems; it does not mutate the manifest.
func (m *Manifest) Validate(ctx context.Context, fsys bagfs.FS, expectedFiles []string, workers int) report.List {
	var problems report.List
	expected := make(map[string]bool, len(expectedFiles))
	for _, f := range expectedFiles {
		expected[f] = true
	}
	for p := range m.entries {
		if !expected[p] {
			problems.Add(report.Problem{Kind: report.MissingFile, File: p, Message: fmt.Sprintf("%s manifest references file not present on disk", m.kind)})
		}
	}
	for p := range expected {
		if _, ok := m.entries[p]; !ok {
			problems.Add(report.Problem{Kind: report.ExtraFile, File: p, Message: fmt.Sprintf("file present on disk but not in %s manifest", m.kind)})
		}
	}
	toCheck := make([]string, 0, len(m.entries))
	for p := range m.entries {
		if expected[p] {
			toCheck = append(toCheck, p)
		}
	}
	if len(toCheck) == 0 {
		return problems
	}
	err := checksum.Run(ctx, fsys, toCheck, []digest.Alg{m.alg}, workers, func(res checksum.Result) error {
		if res.Err != nil {
			if isNotExist(res.Err) {
				problems.Add(report.Problem{Kind: report.MissingFile, File: res.Path, Message: "file missing on disk"})
				return nil
			}
			problems.Add(report.Problem{Kind: report.ManifestParse, File: res.Path, Message: res.Err.Error()})
			return nil
		}
		got := res.Digests[m.alg.Name()]
		want := m.entries[res.Path]
		if !digest.EqualHex(got, want) {
			problems.Add(report.Problem{Kind: report.DigestMismatch, File: res.Path, Message: fmt.Sprintf("expected %s, got %s", want, got)})
		}
		return nil
	})
	if err != nil {
		problems.Add(report.Problem{Kind: report.ManifestParse, Message: err.Error()})
	}
	return problems
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// percentEncode escapes '%', CR, and LF in a path per RFC 8493 section
// 2.1.3. Forward slashes and everything else pass through unchanged.
func percentEncode(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '%':
			b.WriteString("%25")
		case '\r':
			b.WriteString("%0D")
		case '\n':
			b.WriteString("%0A")
		default:
			b.WriteByte(p[i])
		}
	}
	return b.String()
}

// percentDecode reverses percentEncode for the three escaped characters
// only; any other %XX sequence is left as-is, matching lenient readers.
func percentDecode(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if p[i] == '%' && i+2 < len(p) {
			switch strings.ToUpper(p[i+1 : i+3]) {
			case "25":
				b.WriteByte('%')
				i += 2
				continue
			case "0D":
				b.WriteByte('\r')
				i += 2
				continue
			case "0A":
				b.WriteByte('\n')
				i += 2
				continue
			}
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

// PayloadPath joins a payload-relative name under data/, e.g. "hello.txt" ->
// "data/hello.txt".
func PayloadPath(name string) string {
	return path.Join("data", name)
}

// TagFiles lists every regular file in the bag outside data/ (files at the
// root and in any other top-level directory), sorted, except writing: the
// filename of the tag manifest being serialized, which is excluded from its
// own listing. The payload manifests, bagit.txt, bag-info.txt, fetch.txt and
// every other tag manifest present on disk are included.
func TagFiles(ctx context.Context, fsys bagfs.ReadDirFS, writing string) ([]string, error) {
	entries, err := fsys.ReadDir(ctx, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			if e.Name() == "data" {
				continue
			}
			sub, err := bagfs.WalkFiles(ctx, fsys, e.Name())
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if e.Name() == writing {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// AlgFromManifestName extracts the algorithm from a manifest filename like
// "manifest-sha512.txt" or "tagmanifest-sha3-256.txt".
func AlgFromManifestName(name string) (Kind, digest.Alg, error) {
	kind := Payload
	rest := strings.TrimSuffix(name, ".txt")
	switch {
	case strings.HasPrefix(rest, "tagmanifest-"):
		kind = Tag
		rest = strings.TrimPrefix(rest, "tagmanifest-")
	case strings.HasPrefix(rest, "manifest-"):
		rest = strings.TrimPrefix(rest, "manifest-")
	default:
		return kind, digest.Alg{}, fmt.Errorf("not a manifest filename: %s", name)
	}
	alg, ok := digest.FromFilename(rest)
	if !ok {
		return kind, digest.Alg{}, &digest.ErrUnsupported{Name: rest}
	}
	return kind, alg, nil
}
