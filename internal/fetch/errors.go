package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrCreate wraps failures to create the destination file.
	ErrCreate = errors.New("cannot create destination")
	// ErrRequest wraps failures to obtain a response.
	ErrRequest = errors.New("request failed")
	// ErrStream wraps failures reading the response body.
	ErrStream = errors.New("reading response stream")
	// ErrWrite wraps failures writing or finalizing the destination.
	ErrWrite = errors.New("writing destination")
	// ErrNoFile reports that no file exists after the transfer.
	ErrNoFile = errors.New("destination file missing after download")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}

// OK reduces the outcome of Fetch to a boolean: true iff the
// download produced the destination file.
func OK(err error) bool {
	return err == nil
}

func wrap(kind error, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}
