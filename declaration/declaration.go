// Package declaration reads and writes bagit.txt: the two-line version and
// tag-file-encoding declaration every bag carries at its root, always in
// strict UTF-8 regardless of the encoding it declares for other tag files.
package declaration

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Filename is the fixed name of the declaration file at the bag root.
const Filename = "bagit.txt"

// Declaration is the parsed contents of bagit.txt.
type Declaration struct {
	VersionMajor int
	VersionMinor int
	Encoding     string
}

// Default returns the declaration a newly created bag starts with:
// BagIt-Version 1.0, UTF-8 encoding.
func Default() Declaration {
	return Declaration{VersionMajor: 1, VersionMinor: 0, Encoding: "UTF-8"}
}

// Version renders the version as "<major>.<minor>".
func (d Declaration) Version() string {
	return fmt.Sprintf("%d.%d", d.VersionMajor, d.VersionMinor)
}

// Parse reads bagit.txt from r. It requires strict UTF-8 and exactly two
// non-blank lines: a BagIt-Version line and a Tag-File-Character-Encoding
// line, in that order.
func Parse(r io.Reader) (Declaration, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Declaration{}, fmt.Errorf("read bagit.txt: %w", err)
	}
	if !utf8.Valid(raw) {
		return Declaration{}, fmt.Errorf("bagit.txt is not valid UTF-8")
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return Declaration{}, fmt.Errorf("read bagit.txt: %w", err)
	}
	if len(lines) != 2 {
		return Declaration{}, fmt.Errorf("bagit.txt must have exactly two non-blank lines, found %d", len(lines))
	}
	major, minor, err := parseVersionLine(lines[0])
	if err != nil {
		return Declaration{}, err
	}
	encoding, err := parseEncodingLine(lines[1])
	if err != nil {
		return Declaration{}, err
	}
	return Declaration{VersionMajor: major, VersionMinor: minor, Encoding: encoding}, nil
}

func parseVersionLine(line string) (major, minor int, err error) {
	const prefix = "BagIt-Version:"
	if !strings.HasPrefix(line, prefix) {
		return 0, 0, fmt.Errorf("malformed BagIt-Version line: %q", line)
	}
	v := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	parts := strings.SplitN(v, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed BagIt-Version value: %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed BagIt-Version value: %q", v)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed BagIt-Version value: %q", v)
	}
	return major, minor, nil
}

func parseEncodingLine(line string) (string, error) {
	const prefix = "Tag-File-Character-Encoding:"
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("malformed Tag-File-Character-Encoding line: %q", line)
	}
	enc := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if enc == "" {
		return "", fmt.Errorf("empty Tag-File-Character-Encoding value")
	}
	return enc, nil
}

// Serialize writes d to w as two LF-terminated lines, strict UTF-8.
func (d Declaration) Serialize(w io.Writer) error {
	_, err := fmt.Fprintf(w, "BagIt-Version: %s\nTag-File-Character-Encoding: %s\n", d.Version(), d.Encoding)
	return err
}
