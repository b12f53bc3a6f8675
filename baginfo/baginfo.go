// Package baginfo implements the Bag-Info Store: an ordered sequence of
// {tag, value} entries backed by a case-insensitive index, with the
// line-folding parser and serializer bag-info.txt requires and the
// repeatability rules RFC 8493 places on certain tags.
package baginfo

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/srerickson/bagit-go/report"
)

// MustNotRepeat lists tags (lowercased) that may appear at most once.
var MustNotRepeat = map[string]bool{
	"payload-oxum": true,
}

// ShouldNotRepeat lists tags (lowercased) that conventionally appear at
// most once; a second occurrence is a warning, not an error.
var ShouldNotRepeat = map[string]bool{
	"bagging-date":         true,
	"bag-size":             true,
	"bag-group-identifier": true,
	"bag-count":            true,
}

// Generated lists tags (lowercased) the Store itself computes; callers may
// not set them directly.
var Generated = map[string]bool{
	"payload-oxum": true,
	"bagging-date": true,
}

const foldWidth = 78

// Entry is one {tag, value} pair, order-preserving.
type Entry struct {
	Tag   string
	Value string
}

// Store is the ordered tag/value sequence plus its case-insensitive index.
type Store struct {
	entries []Entry
	index   map[string][]int // lowercase(tag) -> indices into entries
}

// New returns an empty Store.
func New() *Store {
	return &Store{index: map[string][]int{}}
}

func (s *Store) rebuildIndex() {
	s.index = make(map[string][]int, len(s.entries))
	for i, e := range s.entries {
		key := strings.ToLower(e.Tag)
		s.index[key] = append(s.index[key], i)
	}
}

// Has reports whether tag (case-insensitive) has at least one value.
func (s *Store) Has(tag string) bool {
	return len(s.index[strings.ToLower(tag)]) > 0
}

// GetAll returns every value for tag (case-insensitive), in insertion order.
func (s *Store) GetAll(tag string) []string {
	idxs := s.index[strings.ToLower(tag)]
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = s.entries[idx].Value
	}
	return out
}

// Set appends a new {tag, value} entry. It refuses tags in Generated.
func (s *Store) Set(tag, value string) error {
	if Generated[strings.ToLower(tag)] {
		return fmt.Errorf("%s is a generated tag and cannot be set directly", tag)
	}
	s.entries = append(s.entries, Entry{Tag: tag, Value: value})
	s.rebuildIndex()
	return nil
}

// setInternal appends an entry bypassing the Generated guard, used by the
// serializer to install Payload-Oxum and Bagging-Date.
func (s *Store) setInternal(tag, value string) {
	s.entries = append(s.entries, Entry{Tag: tag, Value: value})
	s.rebuildIndex()
}

// RemoveAll removes every entry whose tag matches (case-insensitive).
func (s *Store) RemoveAll(tag string) {
	key := strings.ToLower(tag)
	out := s.entries[:0]
	for _, e := range s.entries {
		if strings.ToLower(e.Tag) != key {
			out = append(out, e)
		}
	}
	s.entries = out
	s.rebuildIndex()
}

// RemoveAt removes the i-th value (0-indexed, insertion order among values
// sharing tag) for tag, if present.
func (s *Store) RemoveAt(tag string, i int) {
	key := strings.ToLower(tag)
	idxs := s.index[key]
	if i < 0 || i >= len(idxs) {
		return
	}
	remove := idxs[i]
	out := make([]Entry, 0, len(s.entries)-1)
	for j, e := range s.entries {
		if j != remove {
			out = append(out, e)
		}
	}
	s.entries = out
	s.rebuildIndex()
}

// Entries returns the full ordered entry list. Callers must not mutate the
// returned slice's Entry values through pointers; it is a copy.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

var entryStart = regexp.MustCompile(`^(\s*)([^:]+?)(\s*):\s+(.*)$`)

// Parse reads bag-info.txt content, applying the line-folding and
// repeatability rules. versionAtLeastOne controls whether leading/trailing
// whitespace around a tag name is an error (true for BagIt >= 1.0).
func Parse(r io.Reader, versionAtLeastOne bool) (*Store, report.List, error) {
	s := New()
	var problems report.List
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	seen := map[string]int{} // lowercase tag -> occurrence count
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if isContinuation(text) {
			if len(s.entries) == 0 {
				problems.Add(report.Problem{Kind: report.BagInfoParse, Line: line, Message: "continuation line has no preceding tag"})
				continue
			}
			last := &s.entries[len(s.entries)-1]
			last.Value = last.Value + " " + strings.TrimSpace(text)
			continue
		}
		m := entryStart.FindStringSubmatch(text)
		if m == nil {
			problems.Add(report.Problem{Kind: report.BagInfoParse, Line: line, Message: fmt.Sprintf("malformed bag-info line: %q", text)})
			continue
		}
		leadingWS, tag, trailingWS, value := m[1], m[2], m[3], m[4]
		if versionAtLeastOne && (leadingWS != "" || trailingWS != "") {
			problems.Add(report.Problem{Kind: report.BagInfoParse, Line: line, Message: fmt.Sprintf("whitespace around tag name %q is not allowed", tag)})
		}
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		seen[key]++
		if seen[key] > 1 {
			if MustNotRepeat[key] {
				problems.Add(report.Problem{Kind: report.RepeatabilityConflict, Line: line, File: tag, Message: fmt.Sprintf("%s must not repeat", tag)})
			} else if ShouldNotRepeat[key] {
				problems.Add(report.Problem{Kind: report.Repeatability, Line: line, File: tag, Message: fmt.Sprintf("%s should not repeat", tag)})
			}
		}
		s.entries = append(s.entries, Entry{Tag: tag, Value: strings.TrimSpace(value)})
	}
	if err := scanner.Err(); err != nil {
		return s, problems, err
	}
	s.rebuildIndex()
	return s, problems, nil
}

func isContinuation(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// Serialize writes bag-info.txt: drops Generated entries, appends a fresh
// Payload-Oxum (computed from octets/files) and Bagging-Date (from today),
// then folds every line at foldWidth columns.
func (s *Store) Serialize(w io.Writer, octets, files int64, today string) error {
	tmp := New()
	for _, e := range s.entries {
		if Generated[strings.ToLower(e.Tag)] {
			continue
		}
		tmp.entries = append(tmp.entries, e)
	}
	tmp.setInternal("Payload-Oxum", fmt.Sprintf("%d.%d", octets, files))
	tmp.setInternal("Bagging-Date", today)

	for _, e := range tmp.entries {
		if err := writeFolded(w, e.Tag, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeFolded(w io.Writer, tag, value string) error {
	head := tag + ": " + value
	lines := foldLine(head, foldWidth)
	for i, l := range lines {
		prefix := ""
		if i > 0 {
			prefix = "  "
		}
		if _, err := io.WriteString(w, prefix+l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// foldLine breaks text at word boundaries so no line exceeds width columns,
// except a single atomic token longer than width, which is kept whole. Every
// line after the first is limited to width-2 columns, leaving room for the
// two-space prefix writeFolded adds to continuation lines.
func foldLine(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}
	var lines []string
	cur := words[0]
	for _, wd := range words[1:] {
		limit := width
		if len(lines) > 0 {
			limit = width - 2
		}
		if len(cur)+1+len(wd) <= limit {
			cur += " " + wd
			continue
		}
		lines = append(lines, cur)
		cur = wd
	}
	lines = append(lines, cur)
	return lines
}
