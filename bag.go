// Package bagit implements the Bag Engine: the top-level state machine that
// owns a bag's declaration, manifests, bag-info store, and fetch list,
// exposes the public mutation API, and flushes or validates them against
// the filesystem.
package bagit

import (
	"context"
	"errors"
	"io"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/baginfo"
	"github.com/srerickson/bagit-go/declaration"
	"github.com/srerickson/bagit-go/digest"
	"github.com/srerickson/bagit-go/fetch"
	"github.com/srerickson/bagit-go/manifest"
	"github.com/srerickson/bagit-go/pathutil"
	"github.com/srerickson/bagit-go/report"
	"github.com/srerickson/bagit-go/validate/profile"
)

// DefaultAlgorithm is the digest algorithm a newly created bag starts with.
const DefaultAlgorithm = "sha512"

// Bag is the in-memory representation of a BagIt bag: its declaration,
// manifests, bag-info, and fetch list, plus the errors and warnings from
// its most recent load or validate.
type Bag struct {
	root       string
	fsys       bagfs.WriteFS
	log        logr.Logger
	clock      Clock
	downloader fetch.Downloader
	workers    int

	decl             declaration.Declaration
	extended         bool
	payloadManifests map[string]*manifest.Manifest
	tagManifests     map[string]*manifest.Manifest
	bagInfo          *baginfo.Store
	fetchList        *fetch.List

	errors   report.List
	warnings report.List
	dirty    bool
	loaded   bool
}

func newBag(root string, opts []Option) (*Bag, error) {
	b := &Bag{
		root:             root,
		log:              logr.Discard(),
		clock:            systemClock{},
		workers:          runtime.NumCPU(),
		decl:             declaration.Default(),
		payloadManifests: map[string]*manifest.Manifest{},
		tagManifests:     map[string]*manifest.Manifest{},
		bagInfo:          baginfo.New(),
		fetchList:        fetch.New(root),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.fsys == nil {
		fsys, err := newDefaultFS(root)
		if err != nil {
			return nil, newErr(KindIO, "open", root, err)
		}
		b.fsys = fsys
	}
	return b, nil
}

// Create initializes a new bag at root: the directory must not exist or
// must be empty. It configures a single payload manifest for
// DefaultAlgorithm; bagit.txt and an empty data/ directory are materialized
// once Update flushes the bag, which Create leaves dirty to force.
func Create(ctx context.Context, root string, opts ...Option) (*Bag, error) {
	b, err := newBag(root, opts)
	if err != nil {
		return nil, err
	}
	entries, err := b.fsys.ReadDir(ctx, ".")
	if err == nil && len(entries) > 0 {
		return nil, newErrf(KindConflict, "create", root, "directory is not empty")
	}
	alg, err := digest.Get(DefaultAlgorithm)
	if err != nil {
		return nil, newErr(KindUnsupported, "create", root, err)
	}
	b.payloadManifests[alg.Name()] = manifest.New(manifest.Payload, alg)
	b.dirty = true
	return b, nil
}

// Load parses an existing bag at root: bagit.txt, every manifest-*.txt and
// tagmanifest-*.txt present, bag-info.txt if present (which also sets
// extended), and fetch.txt if present. Parse-time findings become entries
// in Warnings/Errors per the propagation policy: Parse problems accumulate
// rather than aborting Load, except a missing or malformed bagit.txt, or a
// bag-info.txt or fetch.txt that cannot be read or decoded from the declared
// encoding, which are fatal.
func Load(ctx context.Context, root string, opts ...Option) (*Bag, error) {
	b, err := newBag(root, opts)
	if err != nil {
		return nil, err
	}
	if err := b.reload(ctx); err != nil {
		return nil, err
	}
	b.loaded = true
	return b, nil
}

// reload re-parses bagit.txt, every manifest, bag-info.txt, and fetch.txt
// from disk into the receiver, replacing its in-memory state and resetting
// errors/warnings. Used by Load and by Validate after a dirty-triggered
// Update.
func (b *Bag) reload(ctx context.Context) error {
	b.errors = nil
	b.warnings = nil
	b.payloadManifests = map[string]*manifest.Manifest{}
	b.tagManifests = map[string]*manifest.Manifest{}
	b.bagInfo = baginfo.New()
	b.extended = false

	declFile, err := b.fsys.OpenFile(ctx, declaration.Filename)
	if err != nil {
		return newErr(KindNotFound, "load", declaration.Filename, err)
	}
	decl, err := declaration.Parse(declFile)
	declFile.Close()
	if err != nil {
		return newErr(KindParse, "load", declaration.Filename, err)
	}
	b.decl = decl

	entries, err := b.fsys.ReadDir(ctx, ".")
	if err != nil {
		return newErr(KindIO, "load", b.root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, alg, ok, nameErr := manifestName(e.Name())
		if nameErr != nil {
			b.errors.Add(report.Problem{Kind: report.UnsupportedAlgorithm, File: e.Name(), Message: nameErr.Error()})
			continue
		}
		if !ok {
			continue
		}
		f, err := b.fsys.OpenFile(ctx, e.Name())
		if err != nil {
			b.errors.Add(report.Problem{Kind: report.ManifestParse, File: e.Name(), Message: err.Error()})
			continue
		}
		m, problems, err := manifest.Parse(f, kind, alg)
		f.Close()
		if err != nil {
			b.errors.Add(report.Problem{Kind: report.ManifestParse, File: e.Name(), Message: err.Error()})
			continue
		}
		b.errors = append(b.errors, problems...)
		if kind == manifest.Tag {
			b.tagManifests[alg.Name()] = m
		} else {
			b.payloadManifests[alg.Name()] = m
		}
	}
	if len(b.payloadManifests) == 0 {
		b.errors.Add(report.Problem{Kind: report.ManifestParse, Message: "bag has no payload manifest"})
	}

	if bagfs.Exists(ctx, b.fsys, "bag-info.txt") {
		b.extended = true
		f, err := b.fsys.OpenFile(ctx, "bag-info.txt")
		if err != nil {
			return newErr(KindIO, "load", "bag-info.txt", err)
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return newErr(KindIO, "load", "bag-info.txt", err)
		}
		text, err := pathutil.Decode(b.decl.Encoding, raw)
		if err != nil {
			return newErr(KindParse, "load", "bag-info.txt", err)
		}
		store, problems, err := baginfo.Parse(strings.NewReader(text), decl.VersionMajor >= 1)
		if err != nil {
			return newErr(KindParse, "load", "bag-info.txt", err)
		}
		b.bagInfo = store
		for _, p := range problems {
			if p.Kind == report.Repeatability {
				b.warnings.Add(p)
				continue
			}
			b.errors.Add(p)
		}
	}
	if len(b.tagManifests) > 0 {
		b.extended = true
	}

	if bagfs.Exists(ctx, b.fsys, fetch.Filename) {
		f, err := b.fsys.OpenFile(ctx, fetch.Filename)
		if err != nil {
			return newErr(KindIO, "load", fetch.Filename, err)
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return newErr(KindIO, "load", fetch.Filename, err)
		}
		text, err := pathutil.Decode(b.decl.Encoding, raw)
		if err != nil {
			return newErr(KindParse, "load", fetch.Filename, err)
		}
		fl, problems, err := fetch.Parse(strings.NewReader(text), b.root)
		if err != nil {
			return newErr(KindParse, "load", fetch.Filename, err)
		}
		b.fetchList = fl
		b.errors = append(b.errors, problems...)
	} else {
		b.fetchList = fetch.New(b.root)
	}

	b.dirty = false
	return nil
}

// manifestName reports whether name looks like a manifest filename and, if
// so, its kind and algorithm. err is non-nil only when name matches the
// manifest-/tagmanifest- naming convention but names an algorithm this
// build doesn't support (a *digest.ErrUnsupported); a name that isn't a
// manifest filename at all yields ok=false with a nil err.
func manifestName(name string) (kind manifest.Kind, alg digest.Alg, ok bool, err error) {
	kind, alg, parseErr := manifest.AlgFromManifestName(name)
	if parseErr == nil {
		return kind, alg, true, nil
	}
	var unsupported *digest.ErrUnsupported
	if errors.As(parseErr, &unsupported) {
		return kind, digest.Alg{}, false, parseErr
	}
	return 0, digest.Alg{}, false, nil
}

// Root returns the bag's root path.
func (b *Bag) Root() string { return b.root }

// Extended reports whether the bag persists bag-info.txt and tag manifests.
func (b *Bag) Extended() bool { return b.extended }

// Dirty reports whether the bag has unflushed in-memory mutations.
func (b *Bag) Dirty() bool { return b.dirty }

// Errors returns the errors accumulated by the most recent Load or
// Validate.
func (b *Bag) Errors() report.List { return append(report.List{}, b.errors...) }

// Warnings returns the warnings accumulated by the most recent Load or
// Validate.
func (b *Bag) Warnings() report.List { return append(report.List{}, b.warnings...) }

// Algorithms returns the normalized names of the bag's current payload
// manifest algorithms, sorted.
func (b *Bag) Algorithms() []string {
	names := make([]string, 0, len(b.payloadManifests))
	for name := range b.payloadManifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PayloadFiles returns the set of payload-relative paths currently expected
// on disk: the union of paths listed across all payload manifests.
func (b *Bag) PayloadFiles() []string {
	set := map[string]bool{}
	for _, m := range b.payloadManifests {
		for _, p := range m.Paths() {
			set[p] = true
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TopLevelFiles returns the names of every non-directory entry at the bag
// root, e.g. "bagit.txt", "manifest-sha512.txt", "bag-info.txt", for use
// with validate/profile.Profile.Check.
func (b *Bag) TopLevelFiles(ctx context.Context) ([]string, error) {
	entries, err := b.fsys.ReadDir(ctx, ".")
	if err != nil {
		return nil, newErr(KindIO, "top_level_files", b.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// TagValues returns every bag-info tag currently set, keyed by tag name,
// for use with validate/profile.Profile.Check.
func (b *Bag) TagValues() map[string][]string {
	out := map[string][]string{}
	for _, e := range b.bagInfo.Entries() {
		out[e.Tag] = append(out[e.Tag], e.Value)
	}
	return out
}

// ValidateProfile checks the bag's current top-level files and bag-info
// tags against p, appending any violations to Errors. It does not run
// Update or the structural checks Validate performs; callers typically call
// Validate first.
func (b *Bag) ValidateProfile(ctx context.Context, p *profile.Profile) error {
	files, err := b.TopLevelFiles(ctx)
	if err != nil {
		return err
	}
	problems := p.Check(files, b.TagValues())
	b.errors = append(b.errors, problems...)
	return nil
}

func (b *Bag) markDirty() { b.dirty = true }

func payloadDest(dest string) string {
	if dest == "data" || len(dest) > 5 && dest[:5] == "data/" {
		return dest
	}
	return path.Join("data", dest)
}
