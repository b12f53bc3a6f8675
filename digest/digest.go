// Package digest implements the bag's hash registry: it enumerates the
// digest algorithms BagIt manifests may name, maps a spec name like
// "sha3256" to the hash constructor and the filename component used on
// disk ("sha3-256"), and reports which algorithms are locally available.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Alg identifies a supported digest algorithm.
type Alg struct {
	name     string // normalized spec name, e.g. "sha3256"
	filename string // form used in manifest-<filename>.txt, e.g. "sha3-256"
	size     int    // expected hex digest length
	newHash  func() hash.Hash
}

// Name returns the normalized spec name for the algorithm.
func (a Alg) Name() string { return a.name }

// Filename returns the algorithm name as it appears in
// manifest-<filename>.txt / tagmanifest-<filename>.txt.
func (a Alg) Filename() string { return a.filename }

// HexLen returns the expected length of the algorithm's hex-encoded digest.
func (a Alg) HexLen() int { return a.size }

// New returns a fresh hash.Hash for the algorithm.
func (a Alg) New() hash.Hash { return a.newHash() }

var registry = map[string]Alg{
	"md5":     {name: "md5", filename: "md5", size: 32, newHash: md5.New},
	"sha1":    {name: "sha1", filename: "sha1", size: 40, newHash: sha1.New},
	"sha224":  {name: "sha224", filename: "sha224", size: 56, newHash: sha256.New224},
	"sha256":  {name: "sha256", filename: "sha256", size: 64, newHash: sha256.New},
	"sha384":  {name: "sha384", filename: "sha384", size: 96, newHash: sha512.New384},
	"sha512":  {name: "sha512", filename: "sha512", size: 128, newHash: sha512.New},
	"sha3224": {name: "sha3224", filename: "sha3-224", size: 56, newHash: sha3.New224},
	"sha3256": {name: "sha3256", filename: "sha3-256", size: 64, newHash: sha3.New256},
	"sha3384": {name: "sha3384", filename: "sha3-384", size: 96, newHash: sha3.New384},
	"sha3512": {name: "sha3512", filename: "sha3-512", size: 128, newHash: sha3.New512},
}

// filenameLookup maps the on-disk filename component back to the algorithm,
// used when parsing manifest-<name>.txt / tagmanifest-<name>.txt found on
// the filesystem.
var filenameLookup = func() map[string]string {
	m := make(map[string]string, len(registry))
	for name, alg := range registry {
		m[alg.filename] = name
	}
	return m
}()

// ErrUnsupported is returned when a requested algorithm isn't registered.
type ErrUnsupported struct {
	Name string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("unsupported digest algorithm: %q", e.Name)
}

// Normalize strips non-alphanumeric characters and lowercases name, so
// "SHA3-256", "sha3_256", and "sha3256" all resolve to the same algorithm.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// IsSupported reports whether name (in any casing/punctuation) names an
// algorithm available in this build.
func IsSupported(name string) bool {
	_, ok := registry[Normalize(name)]
	return ok
}

// Get returns the Alg for name, normalizing first.
func Get(name string) (Alg, error) {
	alg, ok := registry[Normalize(name)]
	if !ok {
		return Alg{}, &ErrUnsupported{Name: name}
	}
	return alg, nil
}

// FromFilename returns the Alg whose on-disk filename component is
// filename, e.g. "sha3-256" -> the sha3256 algorithm. Used when discovering
// manifest-<filename>.txt files in a bag root.
func FromFilename(filename string) (Alg, bool) {
	name, ok := filenameLookup[strings.ToLower(filename)]
	if !ok {
		return Alg{}, false
	}
	return registry[name], true
}

// AllSupported returns the normalized names of every algorithm available in
// this build, sorted for stable output.
func AllSupported() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	// stable, deterministic order without importing sort at package scope
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// ValidHex reports whether s looks like a hex digest of the correct length
// for alg. Comparison of the digest value itself is always case-insensitive
// per spec; this only checks shape.
func ValidHex(alg Alg, s string) bool {
	if len(s) != alg.size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// EqualHex reports whether two hex digests are equal, ignoring case.
func EqualHex(a, b string) bool {
	return strings.EqualFold(a, b)
}
