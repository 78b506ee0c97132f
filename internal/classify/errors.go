package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackzampolin/radlabel/internal/extract"
	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/providers"
	"github.com/jackzampolin/radlabel/internal/records"
)

// ErrSchema matches every *SchemaError.
var ErrSchema = errors.New("response does not match expected shape")

// SchemaError reports a parsed response whose keys or values are not what
// the prompt asked for.
type SchemaError struct {
	Stage   string           // "single" or "mention"
	Finding findings.Finding // offending finding, when known
	Reason  string
	Raw     string // truncated raw response
	Err     error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s response: %s", e.Stage, e.Reason)
	if e.Finding != "" {
		msg = fmt.Sprintf("%s response: %s: %s", e.Stage, e.Finding, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports a match against ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Kind classifies a record failure for logs and summaries.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindExtraction Kind = "extraction"
	KindSchema     Kind = "schema"
	KindInput      Kind = "input"
	KindCanceled   Kind = "canceled"
	KindUnknown    Kind = "unknown"
)

// Kinds lists every failure kind in reporting order.
func Kinds() []Kind {
	return []Kind{KindTransport, KindExtraction, KindSchema, KindInput, KindCanceled, KindUnknown}
}

// KindOf maps err onto a failure kind. A nil error has no kind. A context
// error is canceled only when no typed failure wraps it.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, records.ErrInput):
		return KindInput
	case errors.Is(err, ErrSchema):
		return KindSchema
	case errors.Is(err, extract.ErrExtraction):
		return KindExtraction
	case errors.Is(err, providers.ErrTransport):
		// Checked before context errors: an HTTP client timeout also
		// matches context.DeadlineExceeded.
		return KindTransport
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// RawSnippet returns the truncated raw response carried by err, if any.
func RawSnippet(err error) string {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Raw
	}
	var ee *extract.Error
	if errors.As(err, &ee) {
		return ee.Raw
	}
	return ""
}
