// Package fetch implements the Fetch List: parsing and serializing
// fetch.txt, and materializing its entries into the payload area through an
// injected Downloader. Download-all runs entries concurrently, bounded by a
// worker pool, presenting one synchronous completion boundary to the caller
// (validate()).
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/carlmjohnson/workgroup"

	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/pathutil"
	"github.com/srerickson/bagit-go/report"
)

// Filename is the fixed name of the fetch descriptor at the bag root.
const Filename = "fetch.txt"

// Entry is one fetch.txt line: a URL to retrieve, its destination inside
// data/, and an optional expected size in bytes.
type Entry struct {
	URL  string
	Size *int64 // nil means "-" (unknown)
	Dest string // payload-relative, forward-slash, e.g. "data/x.txt"
}

// Downloader retrieves the bytes at url. If sizeHint is non-nil,
// implementations must reject a response whose length disagrees with it.
type Downloader interface {
	Fetch(ctx context.Context, url string, sizeHint *int64) (io.ReadCloser, error)
}

// List is the ordered set of fetch entries for one bag.
type List struct {
	entries      []Entry
	root         string
	materialized map[string]bool // dest paths this List downloaded, for Cleanup
}

// New returns an empty fetch list rooted at root (the bag's root path, used
// to validate that destinations resolve inside data/).
func New(root string) *List {
	return &List{root: root, materialized: map[string]bool{}}
}

// Entries returns the fetch list contents in their current order.
func (l *List) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

var supportedSchemes = map[string]bool{"http": true, "https": true}

// Parse reads fetch.txt: "<url><SP><size|-><SP><dest>\n" per line. Entries
// with an unsupported scheme or a destination outside data/ are reported as
// Problems and dropped from the returned List.
func Parse(r io.Reader, root string) (*List, report.List, error) {
	l := New(root)
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
		fields := strings.Fields(text)
		if len(fields) != 3 {
			problems.Add(report.Problem{Kind: report.FetchParse, Line: line, Message: fmt.Sprintf("malformed fetch.txt line: %q", text)})
			continue
		}
		rawURL, rawSize, dest := fields[0], fields[1], fields[2]
		u, err := url.Parse(rawURL)
		if err != nil || !supportedSchemes[strings.ToLower(u.Scheme)] {
			problems.Add(report.Problem{Kind: report.FetchParse, Line: line, Message: fmt.Sprintf("unsupported or malformed URL scheme: %q", rawURL)})
			continue
		}
		var size *int64
		if rawSize != "-" {
			n, err := strconv.ParseInt(rawSize, 10, 64)
			if err != nil {
				problems.Add(report.Problem{Kind: report.FetchParse, Line: line, Message: fmt.Sprintf("malformed size field: %q", rawSize)})
				continue
			}
			size = &n
		}
		if !pathutil.PathInPayload(root, dest) {
			problems.Add(report.Problem{Kind: report.FetchParse, Line: line, Message: fmt.Sprintf("fetch destination outside payload: %q", dest)})
			continue
		}
		l.entries = append(l.entries, Entry{URL: rawURL, Size: size, Dest: dest})
	}
	if err := scanner.Err(); err != nil {
		return l, problems, err
	}
	return l, problems, nil
}

// Serialize writes the fetch list sorted by destination path.
func (l *List) Serialize(w io.Writer) error {
	entries := l.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Dest < entries[j].Dest })
	for _, e := range entries {
		size := "-"
		if e.Size != nil {
			size = strconv.FormatInt(*e.Size, 10)
		}
		if _, err := fmt.Fprintf(w, "%s %s %s\n", e.URL, size, e.Dest); err != nil {
			return err
		}
	}
	return nil
}

// Add appends an entry and, under the default policy, immediately
// materializes it via dl so subsequent manifest computation observes its
// bytes.
func (l *List) Add(ctx context.Context, fsys bagfs.WriteFS, dl Downloader, rawURL, dest string, size *int64) error {
	u, err := url.Parse(rawURL)
	if err != nil || !supportedSchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("unsupported or malformed URL scheme: %q", rawURL)
	}
	if !pathutil.PathInPayload(l.root, dest) {
		return fmt.Errorf("fetch destination outside payload: %q", dest)
	}
	l.entries = append(l.entries, Entry{URL: rawURL, Size: size, Dest: dest})
	return l.materialize(ctx, fsys, dl, Entry{URL: rawURL, Size: size, Dest: dest})
}

func (l *List) materialize(ctx context.Context, fsys bagfs.WriteFS, dl Downloader, e Entry) error {
	if dl == nil {
		return fmt.Errorf("fetch %s: no downloader configured", e.URL)
	}
	body, err := dl.Fetch(ctx, e.URL, e.Size)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", e.URL, err)
	}
	defer body.Close()
	if _, err := fsys.Write(ctx, e.Dest, body); err != nil {
		return fmt.Errorf("write fetched %s to %s: %w", e.URL, e.Dest, err)
	}
	l.materialized[e.Dest] = true
	return nil
}

type fetchJob struct {
	root  bool
	entry Entry
}

type fetchResult struct {
	err error
}

// DownloadAll materializes every entry not already present on fsys,
// concurrently across up to workers goroutines via a two-level
// root-then-leaves workgroup traversal (root fans out to one job per
// entry; leaf jobs perform the actual download and never expand further).
// It is called during validate(); a failure on any entry is reported but
// does not stop the others from completing.
func (l *List) DownloadAll(ctx context.Context, fsys bagfs.WriteFS, dl Downloader, workers int) report.List {
	if workers < 1 {
		workers = 4
	}
	var mu sync.Mutex
	var problems report.List

	task := func(job fetchJob) (fetchResult, error) {
		if job.root {
			return fetchResult{}, nil
		}
		if bagfs.Exists(ctx, fsys, job.entry.Dest) {
			return fetchResult{}, nil
		}
		err := l.materialize(ctx, fsys, dl, job.entry)
		return fetchResult{err: err}, nil
	}
	manage := func(job fetchJob, res fetchResult, err error) ([]fetchJob, error) {
		if job.root {
			jobs := make([]fetchJob, len(l.entries))
			for i, e := range l.entries {
				jobs[i] = fetchJob{entry: e}
			}
			return jobs, nil
		}
		if res.err != nil {
			mu.Lock()
			problems.Add(report.Problem{Kind: report.FetchDownload, File: job.entry.Dest, Message: res.err.Error()})
			mu.Unlock()
		}
		return nil, nil
	}
	if err := workgroup.Do(workers, task, manage, fetchJob{root: true}); err != nil {
		problems.Add(report.Problem{Kind: report.FetchDownload, Message: err.Error()})
	}
	return problems
}

// Cleanup removes every file this List materialized via Add or DownloadAll,
// used by finalize() to purge fetch-sourced files that are not part of the
// committed payload on disk post-packaging.
func (l *List) Cleanup(ctx context.Context, fsys bagfs.WriteFS) error {
	for dest := range l.materialized {
		if err := fsys.Remove(ctx, dest); err != nil {
			return fmt.Errorf("cleanup %s: %w", dest, err)
		}
	}
	l.materialized = map[string]bool{}
	return nil
}
