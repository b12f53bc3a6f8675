// Package pathutil implements path canonicalization and tag-file encoding
// conversion for a bag: resolving relative paths against a bag root, keeping
// the in-memory canonical form forward-slash, and detecting names that are
// legal in BagIt but troublesome on a given host OS.
package pathutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// windowsReserved lists the Windows device names that must never appear as a
// bare final path segment, regardless of extension.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// windowsIllegal is the set of characters Windows forbids in a filename.
// Their presence is a warning, never an error, per the spec's design notes.
const windowsIllegal = `<>:"|?*`

// MakeAbsolute joins rel onto root using forward slashes and returns the
// OS-native form. If rel already begins with root it is returned unchanged
// (converted to OS-native separators).
func MakeAbsolute(root, rel string) string {
	root = filepath.ToSlash(root)
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, root) {
		return filepath.FromSlash(rel)
	}
	return filepath.FromSlash(path.Join(root, rel))
}

// MakeRelative resolves abs lexically (collapsing "." and "..") and returns
// its root-relative, forward-slash form without a leading separator. It
// returns "" if the resolved path does not lie under root.
func MakeRelative(root, abs string) string {
	root = path.Clean(filepath.ToSlash(root))
	clean := path.Clean(filepath.ToSlash(abs))
	if clean == root {
		return ""
	}
	prefix := root + "/"
	if !strings.HasPrefix(clean, prefix) {
		return ""
	}
	rel := strings.TrimPrefix(clean, prefix)
	if rel == "" || strings.HasPrefix(rel, "../") || rel == ".." {
		return ""
	}
	return rel
}

// PathInPayload reports whether rel, resolved against root, lies under
// "data/".
func PathInPayload(root, rel string) bool {
	resolved := MakeRelative(root, MakeAbsolute(root, rel))
	return resolved == "data" || strings.HasPrefix(resolved, "data/")
}

// ReservedName reports whether the final path segment names a Windows
// device file, case-insensitively, ignoring any extension.
func ReservedName(rel string) bool {
	base := path.Base(filepath.ToSlash(rel))
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return windowsReserved[strings.ToUpper(base)]
}

// WindowsIllegalChars returns the distinct Windows-illegal characters found
// in rel, in order of first appearance, or nil if there are none. Callers
// use this to emit a Lint warning, never an error.
func WindowsIllegalChars(rel string) []rune {
	seen := map[rune]bool{}
	var out []rune
	for _, r := range rel {
		if strings.ContainsRune(windowsIllegal, r) && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Decode converts bytes from the named IANA character encoding to UTF-8.
// The empty string and "UTF-8" (any case) are treated as already UTF-8.
func Decode(name string, data []byte) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(data), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode as %s: %w", name, err)
	}
	return string(out), nil
}

// Encode converts text from UTF-8 to the named IANA character encoding.
func Encode(name string, text string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", name, err)
	}
	return out, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported tag file encoding %q: %w", name, err)
	}
	return enc, nil
}
