// Package checksum computes digests for a set of bag files concurrently,
// one read pass per file across all configured algorithms, using a bounded
// worker pool. It is what manifest.Compute uses to (re)build a manifest's
// path-to-digest map during update(), and what Manifest.Validate uses to
// recompute digests during validate().
package checksum

import (
	"context"
	"encoding/hex"
	"hash"
	"io"
	"runtime"
	"sync"

	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/digest"
)

// Result holds the outcome of digesting one file with every requested
// algorithm.
type Result struct {
	Path    string
	Digests map[string]string // normalized algorithm name -> hex digest
	Err     error
}

// Run computes digest.Alg digests for every path in paths, reading fsys,
// fanning the reads out across at most workers goroutines and delivering
// each Result to each on the calling goroutine in completion order (not
// submission order). If each returns an error, no further paths are
// dispatched and Run returns that error once outstanding reads drain.
// workers <= 0 defaults to runtime.NumCPU().
func Run(ctx context.Context, fsys bagfs.FS, paths []string, algs []digest.Alg, workers int, each func(Result) error) error {
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	pathQ := make(chan string)
	stop := make(chan struct{})
	results := make(chan Result, workers)

	go func() {
		defer close(pathQ)
		for _, p := range paths {
			if ctx.Err() != nil {
				return
			}
			select {
			case pathQ <- p:
			case <-stop:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for p := range pathQ {
				digests, err := digestFile(ctx, fsys, p, algs)
				results <- Result{Path: p, Digests: digests, Err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for res := range results {
		if firstErr != nil {
			continue
		}
		if err := each(res); err != nil {
			firstErr = err
			close(stop)
		}
	}
	if firstErr == nil {
		close(stop)
	}
	return firstErr
}

// digestFile reads path once, writing to a hash.Hash per algorithm via
// io.MultiWriter so every requested digest is computed in a single pass.
func digestFile(ctx context.Context, fsys bagfs.FS, path string, algs []digest.Alg) (map[string]string, error) {
	f, err := fsys.OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hashes := make(map[string]hash.Hash, len(algs))
	writers := make([]io.Writer, 0, len(algs))
	for _, alg := range algs {
		h := alg.New()
		hashes[alg.Name()] = h
		writers = append(writers, h)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(algs))
	for name, h := range hashes {
		out[name] = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}
