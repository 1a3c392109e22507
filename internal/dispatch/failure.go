package dispatch

import (
	"errors"
	"fmt"
)

// ErrTimeout reports that a synchronous dispatch gave up waiting.
var ErrTimeout = errors.New("dispatch timed out")

// Kind classifies a Failure.
type Kind int

const (
	// KindTransport covers connection errors, timeouts and non-2xx responses.
	KindTransport Kind = iota + 1
	// KindApplication is a 2xx response whose envelope carries a nonzero code.
	KindApplication
	// KindParse is a response that could not be interpreted or decoded. A 2xx
	// body that starts with '{' but is not valid JSON, or whose code is not an
	// integer, is reported as KindParse rather than KindApplication, with a nil
	// Envelope and the decode error in Err. Typed result decode errors are
	// KindParse too.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	case KindParse:
		return "parse"
	}
	return "unknown"
}

// Failure is the error branch of every dispatch.
type Failure struct {
	Kind Kind
	// StatusCode is the HTTP status, or -1 when no response arrived.
	StatusCode int
	// Envelope is the parsed error envelope, nil when the body was not one.
	Envelope *Envelope
	// Body is the raw response body, if any.
	Body string
	Err  error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == KindApplication && f.Envelope != nil:
		if f.Envelope.Message != "" {
			return fmt.Sprintf("application failure (code %d): %s", f.Envelope.Code, f.Envelope.Message)
		}
		return fmt.Sprintf("application failure (code %d)", f.Envelope.Code)
	case f.Err != nil:
		return fmt.Sprintf("%s failure (status %d): %v", f.Kind, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("%s failure (status %d)", f.Kind, f.StatusCode)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
