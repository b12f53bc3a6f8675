package bagit

import "fmt"

// Kind classifies an error returned directly from a Bag Engine API call (as
// opposed to a report.Problem accumulated during load/validate).
type Kind int8

const (
	_ Kind = iota
	KindNotFound
	KindParse
	KindConflict
	KindUnsupported
	KindIntegrity
	KindIO
	KindPolicy
)

var kindNames = map[Kind]string{
	KindNotFound:    "not found",
	KindParse:       "parse",
	KindConflict:    "conflict",
	KindUnsupported: "unsupported",
	KindIntegrity:   "integrity",
	KindIO:          "io",
	KindPolicy:      "policy",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the error type returned by Bag Engine API methods. It carries a
// Kind along with the operation and path involved, so callers can
// distinguish, e.g., a Policy violation from an IO failure without string
// matching.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func newErr(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func newErrf(kind Kind, op, path string, format string, v ...interface{}) *Error {
	return newErr(kind, op, path, fmt.Errorf(format, v...))
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Path, e.Kind, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &bagit.Error{Kind: bagit.KindPolicy}) style checks.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
