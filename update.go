package bagit

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/declaration"
	"github.com/srerickson/bagit-go/manifest"
	"github.com/srerickson/bagit-go/pathutil"
	"github.com/srerickson/bagit-go/report"
)

// Update flushes in-memory mutations to the filesystem: it writes bagit.txt,
// recomputes and writes every configured payload manifest by walking data/,
// writes or removes fetch.txt, and, for an extended bag, writes bag-info.txt
// (with a fresh Payload-Oxum and Bagging-Date) and every tag manifest, or
// removes those files if the bag was demoted to non-extended. Tag manifests
// are computed and written in sorted algorithm-name order: TagFiles lists
// whatever tag manifests already exist on disk, so writing them in a fixed
// order lets a later manifest's listing pick up an earlier one that was just
// written, while resolving the fixed-point problem of tag manifests needing
// to reference each other deterministically rather than circularly. A tag
// manifest never lists itself.
func (b *Bag) Update(ctx context.Context) error {
	if !b.dirty {
		return nil
	}

	if mkdirer, ok := b.fsys.(interface {
		MkdirAll(ctx context.Context, name string) error
	}); ok {
		if err := mkdirer.MkdirAll(ctx, "data"); err != nil {
			return newErr(KindIO, "update", "data", err)
		}
	}

	var declBuf strings.Builder
	if err := b.decl.Serialize(&declBuf); err != nil {
		return newErr(KindIO, "update", declaration.Filename, err)
	}
	if _, err := b.fsys.Write(ctx, declaration.Filename, strings.NewReader(declBuf.String())); err != nil {
		return newErr(KindIO, "update", declaration.Filename, err)
	}

	payloadFiles, err := bagfs.WalkFiles(ctx, b.fsys, "data")
	if err != nil {
		return newErr(KindIO, "update", "data", err)
	}
	var totalOctets int64
	for _, p := range payloadFiles {
		info, err := bagfs.StatFile(ctx, b.fsys, p)
		if err != nil {
			return newErr(KindIO, "update", p, err)
		}
		totalOctets += info.Size()
	}

	for name, m := range b.payloadManifests {
		computed, err := manifest.Compute(ctx, b.fsys, payloadFiles, manifest.Payload, m.Alg(), b.workers)
		if err != nil {
			return newErr(KindIO, "update", manifest.Filename(manifest.Payload, m.Alg()), err)
		}
		b.payloadManifests[name] = computed
		if err := b.writeManifest(ctx, computed); err != nil {
			return err
		}
	}
	if err := b.removeStaleManifests(ctx, manifest.Payload, b.payloadManifests); err != nil {
		return err
	}

	if len(b.fetchList.Entries()) > 0 {
		var buf strings.Builder
		if err := b.fetchList.Serialize(&buf); err != nil {
			return newErr(KindIO, "update", "fetch.txt", err)
		}
		encoded, err := pathutil.Encode(b.decl.Encoding, buf.String())
		if err != nil {
			return newErr(KindIO, "update", "fetch.txt", err)
		}
		if _, err := b.fsys.Write(ctx, "fetch.txt", bytes.NewReader(encoded)); err != nil {
			return newErr(KindIO, "update", "fetch.txt", err)
		}
	} else if bagfs.Exists(ctx, b.fsys, "fetch.txt") {
		if err := b.fsys.Remove(ctx, "fetch.txt"); err != nil {
			return newErr(KindIO, "update", "fetch.txt", err)
		}
	}

	if b.extended {
		var infoBuf strings.Builder
		today := b.clock.Today().Format("2006-01-02")
		if err := b.bagInfo.Serialize(&infoBuf, totalOctets, int64(len(payloadFiles)), today); err != nil {
			return newErr(KindIO, "update", "bag-info.txt", err)
		}
		encoded, err := pathutil.Encode(b.decl.Encoding, infoBuf.String())
		if err != nil {
			return newErr(KindIO, "update", "bag-info.txt", err)
		}
		if _, err := b.fsys.Write(ctx, "bag-info.txt", bytes.NewReader(encoded)); err != nil {
			return newErr(KindIO, "update", "bag-info.txt", err)
		}

		algNames := make([]string, 0, len(b.tagManifests))
		for name := range b.tagManifests {
			algNames = append(algNames, name)
		}
		sort.Strings(algNames)
		for _, name := range algNames {
			m := b.tagManifests[name]
			writing := manifest.Filename(manifest.Tag, m.Alg())
			tagFiles, err := manifest.TagFiles(ctx, b.fsys, writing)
			if err != nil {
				return newErr(KindIO, "update", writing, err)
			}
			computed, err := manifest.Compute(ctx, b.fsys, tagFiles, manifest.Tag, m.Alg(), b.workers)
			if err != nil {
				return newErr(KindIO, "update", writing, err)
			}
			b.tagManifests[name] = computed
			if err := b.writeManifest(ctx, computed); err != nil {
				return err
			}
		}
		if err := b.removeStaleManifests(ctx, manifest.Tag, b.tagManifests); err != nil {
			return err
		}
	} else {
		if bagfs.Exists(ctx, b.fsys, "bag-info.txt") {
			if err := b.fsys.Remove(ctx, "bag-info.txt"); err != nil {
				return newErr(KindIO, "update", "bag-info.txt", err)
			}
		}
		if err := b.removeStaleManifests(ctx, manifest.Tag, nil); err != nil {
			return err
		}
	}

	b.dirty = false
	return nil
}

func (b *Bag) writeManifest(ctx context.Context, m *manifest.Manifest) error {
	name := manifest.Filename(m.Kind(), m.Alg())
	var buf strings.Builder
	if err := m.Serialize(&buf); err != nil {
		return newErr(KindIO, "update", name, err)
	}
	if _, err := b.fsys.Write(ctx, name, strings.NewReader(buf.String())); err != nil {
		return newErr(KindIO, "update", name, err)
	}
	return nil
}

// removeStaleManifests deletes on-disk manifest-*.txt or tagmanifest-*.txt
// files for kind whose algorithm is no longer in current.
func (b *Bag) removeStaleManifests(ctx context.Context, kind manifest.Kind, current map[string]*manifest.Manifest) error {
	entries, err := b.fsys.ReadDir(ctx, ".")
	if err != nil {
		return newErr(KindIO, "update", b.root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, alg, ok, nameErr := manifestName(e.Name())
		if nameErr != nil || !ok || k != kind {
			continue
		}
		if _, ok := current[alg.Name()]; ok {
			continue
		}
		if err := b.fsys.Remove(ctx, e.Name()); err != nil {
			return newErr(KindIO, "update", e.Name(), err)
		}
	}
	return nil
}

// checkAlgorithmParity reports an AlgorithmMismatch Problem for every
// algorithm present as a payload manifest but not as a tag manifest, or vice
// versa. It only makes sense to call for an extended bag; a non-extended bag
// has no tag manifests by definition.
func (b *Bag) checkAlgorithmParity() report.List {
	var problems report.List
	for name, m := range b.payloadManifests {
		if _, ok := b.tagManifests[name]; !ok {
			problems.Addf(report.AlgorithmMismatch, manifest.Filename(manifest.Payload, m.Alg()),
				"algorithm %q has a payload manifest but no tag manifest", name)
		}
	}
	for name, m := range b.tagManifests {
		if _, ok := b.payloadManifests[name]; !ok {
			problems.Addf(report.AlgorithmMismatch, manifest.Filename(manifest.Tag, m.Alg()),
				"algorithm %q has a tag manifest but no payload manifest", name)
		}
	}
	return problems
}

// Validate ensures the bag is flushed (running Update and reload first if
// dirty), downloads any outstanding fetch.txt entries, and checks every
// payload and tag manifest against the current filesystem. It returns true
// iff no errors (as opposed to warnings) were found.
func (b *Bag) Validate(ctx context.Context) (bool, error) {
	if b.dirty {
		if err := b.Update(ctx); err != nil {
			return false, err
		}
		if err := b.reload(ctx); err != nil {
			return false, err
		}
	}

	problems := b.fetchList.DownloadAll(ctx, b.fsys, b.downloader, b.workers)
	b.errors = append(b.errors, problems...)

	if b.extended {
		b.errors = append(b.errors, b.checkAlgorithmParity()...)
	}

	payloadFiles, err := bagfs.WalkFiles(ctx, b.fsys, "data")
	if err != nil {
		return false, newErr(KindIO, "validate", "data", err)
	}
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.workers)
	for _, m := range b.payloadManifests {
		m := m
		group.Go(func() error {
			result := m.Validate(groupCtx, b.fsys, payloadFiles, b.workers)
			mu.Lock()
			b.errors = append(b.errors, result...)
			mu.Unlock()
			return nil
		})
	}
	if b.extended {
		for _, m := range b.tagManifests {
			m := m
			group.Go(func() error {
				writing := manifest.Filename(m.Kind(), m.Alg())
				tagFiles, err := manifest.TagFiles(groupCtx, b.fsys, writing)
				if err != nil {
					return newErr(KindIO, "validate", writing, err)
				}
				result := m.Validate(groupCtx, b.fsys, tagFiles, b.workers)
				mu.Lock()
				b.errors = append(b.errors, result...)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return false, err
	}

	return len(b.errors) == 0, nil
}

// Finalize removes any files this bag's fetch list materialized via AddFetch
// or the last Validate's DownloadAll. It does not rewrite the manifests, so
// payload manifests written by an earlier Update may still list the removed
// files.
func (b *Bag) Finalize(ctx context.Context) error {
	if err := b.fetchList.Cleanup(ctx, b.fsys); err != nil {
		return newErr(KindIO, "finalize", b.root, err)
	}
	return nil
}
