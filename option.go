package bagit

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/srerickson/bagit-go/bagfs"
	"github.com/srerickson/bagit-go/bagfs/local"
	"github.com/srerickson/bagit-go/fetch"
)

// systemClock implements Clock using the host's wall clock in UTC, per the
// resolved Bagging-Date open question.
type systemClock struct{}

func (systemClock) Today() time.Time { return time.Now().UTC() }

// Clock supplies the current date for Bagging-Date. Tests inject a fixed
// clock so Bagging-Date is deterministic.
type Clock interface {
	Today() time.Time
}

// Option configures a Bag at construction time.
type Option func(*Bag)

// WithLogger sets the logger stored on a Bag. The default is logr.Discard().
// The Bag does not pass it on to its storage backend or components and does
// not emit log records itself.
func WithLogger(l logr.Logger) Option {
	return func(b *Bag) { b.log = l }
}

// WithClock overrides the source of today's date for Bagging-Date. Defaults
// to the host system clock in UTC.
func WithClock(c Clock) Option {
	return func(b *Bag) { b.clock = c }
}

// WithDownloader sets the collaborator used to materialize fetch.txt
// entries. There is no default: without one, AddFetch fails with KindIO, and
// Validate records a fetch-download error for every fetch.txt entry it has
// to download.
func WithDownloader(d fetch.Downloader) Option {
	return func(b *Bag) { b.downloader = d }
}

// WithFS overrides the storage backend a bag root is read from and written
// to. Defaults to bagfs/local rooted at the path passed to Create or Load.
func WithFS(fsys bagfs.WriteFS) Option {
	return func(b *Bag) { b.fsys = fsys }
}

// WithWorkers bounds the concurrency of digest computation and fetch
// downloads. Defaults to runtime.NumCPU() (see digest/checksum.Run).
func WithWorkers(n int) Option {
	return func(b *Bag) { b.workers = n }
}

func newDefaultFS(root string) (bagfs.WriteFS, error) {
	return local.New(root)
}
