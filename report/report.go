// Package report defines the shared vocabulary components use to surface
// findings from parsing and validation without raising a Go error: a Problem
// names a file, a message, and a Kind drawn from the bag's error taxonomy.
// The bag engine merges Problems from its components into its own errors and
// warnings lists at well-defined points (end of load, end of validate).
package report

import "fmt"

// Kind classifies a Problem so callers can filter or count findings by type
// without string matching on Message.
type Kind string

const (
	ManifestParse         Kind = "manifest-parse"
	MissingFile           Kind = "missing-file"
	ExtraFile             Kind = "extra-file"
	DigestMismatch        Kind = "digest-mismatch"
	UnsupportedAlgorithm  Kind = "unsupported-algorithm"
	BagInfoParse          Kind = "bag-info-parse"
	Repeatability         Kind = "repeatability"
	RepeatabilityConflict Kind = "repeatability-conflict"
	FetchParse            Kind = "fetch-parse"
	FetchDownload         Kind = "fetch-download"
	DeclarationParse      Kind = "declaration-parse"
	IllegalCharacters     Kind = "illegal-characters"
	Lint                  Kind = "lint"
	ProfileViolation      Kind = "profile-violation"
	AlgorithmMismatch     Kind = "algorithm-mismatch"
)

// Problem is a single finding produced by a component during parse or
// validate. File is the path the finding concerns, relative to the bag root
// when known. Line is 1-indexed and zero when not applicable.
type Problem struct {
	Kind    Kind
	File    string
	Line    int
	Message string
}

func (p Problem) Error() string {
	if p.File == "" {
		return p.Message
	}
	return p.File + ": " + p.Message
}

// List is an ordered collection of Problems with helpers used by every
// component that accumulates findings before handing them to the bag engine.
type List []Problem

func (l *List) Add(p Problem) {
	*l = append(*l, p)
}

func (l *List) Addf(kind Kind, file string, format string, args ...any) {
	l.Add(Problem{Kind: kind, File: file, Message: fmt.Sprintf(format, args...)})
}
