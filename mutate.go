package bagit

import (
	"context"
	"fmt"
	"os"

	"github.com/srerickson/bagit-go/digest"
	"github.com/srerickson/bagit-go/manifest"
	"github.com/srerickson/bagit-go/pathutil"
	"github.com/srerickson/bagit-go/report"
)

// AddFile copies src (a path on the host filesystem) into the bag's payload
// at dest (payload-relative). It rejects destinations outside data/ and
// Windows-reserved names, and does not touch manifest digests in memory —
// those are recomputed by Update.
func (b *Bag) AddFile(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return newErr(KindNotFound, "add_file", src, err)
	}
	defer f.Close()

	dest = payloadDest(dest)
	rel := dest[len("data/"):]
	if pathutil.ReservedName(rel) {
		return newErrf(KindPolicy, "add_file", dest, "reserved filename: %s", rel)
	}
	if !pathutil.PathInPayload(b.root, dest) {
		return newErrf(KindConflict, "add_file", dest, "destination outside payload")
	}
	if illegal := pathutil.WindowsIllegalChars(rel); len(illegal) > 0 {
		b.warnings.Add(report.Problem{
			Kind:    report.Lint,
			File:    dest,
			Message: fmt.Sprintf("contains Windows-illegal characters %q", string(illegal)),
		})
	}
	if _, err := b.fsys.Write(ctx, dest, f); err != nil {
		return newErr(KindIO, "add_file", dest, err)
	}
	b.markDirty()
	return nil
}

// RemoveFile deletes a payload file if present and prunes now-empty parent
// directories up to (but not including) data/.
func (b *Bag) RemoveFile(ctx context.Context, dest string) error {
	dest = payloadDest(dest)
	if err := b.fsys.Remove(ctx, dest); err != nil {
		return newErr(KindIO, "remove_file", dest, err)
	}
	if pruner, ok := b.fsys.(interface {
		RemoveEmptyParents(ctx context.Context, name, stopAt string) error
	}); ok {
		_ = pruner.RemoveEmptyParents(ctx, dest, "data")
	}
	b.markDirty()
	return nil
}

// AddFetch delegates to the fetch list: it appends and, under the default
// policy, immediately materializes the destination via the configured
// Downloader.
func (b *Bag) AddFetch(ctx context.Context, url, dest string, size *int64) error {
	if b.downloader == nil {
		return newErrf(KindIO, "add_fetch", url, "no downloader configured")
	}
	dest = payloadDest(dest)
	if err := b.fetchList.Add(ctx, b.fsys, b.downloader, url, dest, size); err != nil {
		return newErr(KindIO, "add_fetch", url, err)
	}
	b.markDirty()
	return nil
}

// AddAlgorithm adds a payload (and, if extended, tag) manifest for name if
// one is not already configured.
func (b *Bag) AddAlgorithm(name string) error {
	alg, err := digest.Get(name)
	if err != nil {
		return newErr(KindUnsupported, "add_algorithm", name, err)
	}
	if _, ok := b.payloadManifests[alg.Name()]; !ok {
		b.payloadManifests[alg.Name()] = manifest.New(manifest.Payload, alg)
	}
	if b.extended {
		if _, ok := b.tagManifests[alg.Name()]; !ok {
			b.tagManifests[alg.Name()] = manifest.New(manifest.Tag, alg)
		}
	}
	b.markDirty()
	return nil
}

// RemoveAlgorithm removes name's manifests. It fails rather than leave zero
// payload manifests, or (in extended mode) zero tag manifests.
func (b *Bag) RemoveAlgorithm(name string) error {
	alg, err := digest.Get(name)
	if err != nil {
		return newErr(KindUnsupported, "remove_algorithm", name, err)
	}
	if _, ok := b.payloadManifests[alg.Name()]; ok && len(b.payloadManifests) == 1 {
		return newErrf(KindPolicy, "remove_algorithm", name, "cannot remove the last payload manifest algorithm")
	}
	if b.extended {
		if _, ok := b.tagManifests[alg.Name()]; ok && len(b.tagManifests) == 1 {
			return newErrf(KindPolicy, "remove_algorithm", name, "cannot remove the last tag manifest algorithm")
		}
	}
	delete(b.payloadManifests, alg.Name())
	delete(b.tagManifests, alg.Name())
	b.markDirty()
	return nil
}

// SetAlgorithm replaces every configured algorithm with name alone.
func (b *Bag) SetAlgorithm(name string) error {
	alg, err := digest.Get(name)
	if err != nil {
		return newErr(KindUnsupported, "set_algorithm", name, err)
	}
	b.payloadManifests = map[string]*manifest.Manifest{
		alg.Name(): manifest.New(manifest.Payload, alg),
	}
	if b.extended {
		b.tagManifests = map[string]*manifest.Manifest{
			alg.Name(): manifest.New(manifest.Tag, alg),
		}
	} else {
		b.tagManifests = map[string]*manifest.Manifest{}
	}
	b.markDirty()
	return nil
}

// SetBagInfoTag appends a bag-info entry. It fails for tags the store
// generates itself.
func (b *Bag) SetBagInfoTag(tag, value string) error {
	if err := b.bagInfo.Set(tag, value); err != nil {
		return newErr(KindPolicy, "set_bag_info_tag", tag, err)
	}
	b.markDirty()
	return nil
}

// RemoveBagInfoTag removes every value for tag.
func (b *Bag) RemoveBagInfoTag(tag string) {
	b.bagInfo.RemoveAll(tag)
	b.markDirty()
}

// RemoveBagInfoTagIndex removes the i-th value for tag.
func (b *Bag) RemoveBagInfoTagIndex(tag string, i int) {
	b.bagInfo.RemoveAt(tag, i)
	b.markDirty()
}

// GetBagInfoByTag returns every value for tag, case-insensitive.
func (b *Bag) GetBagInfoByTag(tag string) []string {
	return b.bagInfo.GetAll(tag)
}

// HasBagInfoTag reports whether tag has any value.
func (b *Bag) HasBagInfoTag(tag string) bool {
	return b.bagInfo.Has(tag)
}

// SetExtended toggles whether the bag persists bag-info.txt and tag
// manifests. Turning it off causes Update to delete them; turning it on
// causes Update to create them.
func (b *Bag) SetExtended(extended bool) {
	if extended == b.extended {
		return
	}
	b.extended = extended
	if extended {
		for name, m := range b.payloadManifests {
			b.tagManifests[name] = manifest.New(manifest.Tag, m.Alg())
		}
	} else {
		b.tagManifests = map[string]*manifest.Manifest{}
	}
	b.markDirty()
}

// SetFileEncoding sets the declared tag-file character encoding.
func (b *Bag) SetFileEncoding(name string) {
	b.decl.Encoding = name
	b.markDirty()
}

// SetVersion sets the declared BagIt version.
func (b *Bag) SetVersion(major, minor int) {
	b.decl.VersionMajor = major
	b.decl.VersionMinor = minor
	b.markDirty()
}
