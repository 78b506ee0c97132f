package extract

import (
	"errors"
	"fmt"
)

// ErrExtraction matches every failure returned by Object.
var ErrExtraction = errors.New("extraction failed")

// Failure kinds.
var (
	ErrNoObject   = errors.New("no object found")
	ErrMalformed  = errors.New("malformed object")
	ErrNotObject  = errors.New("parsed value is not an object")
	ErrEmptyInput = errors.New("empty response")
)

// snippetLen bounds how much raw text an error carries into logs.
const snippetLen = 200

// Error describes why a raw response could not be turned into an object.
type Error struct {
	Kind error  // one of the Err* kinds above
	Raw  string // truncated raw response
	Err  error  // underlying parser error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Is reports a match against ErrExtraction or the failure kind.
func (e *Error) Is(target error) bool {
	return target == ErrExtraction || target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, raw string, err error) *Error {
	return &Error{Kind: kind, Raw: Snippet(raw), Err: err}
}

// Snippet truncates s for diagnostics.
func Snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "...[truncated]"
}
