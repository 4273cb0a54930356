package fetcher

import (
	"errors"
	"fmt"
)

// ErrTooLarge matches any TooLargeError.
var ErrTooLarge = errors.New("remote file too large")

// Kind classifies a fetch failure.
type Kind string

const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindStatus  Kind = "status"
)

// Error describes a failed download.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TooLargeError reports a payload above the size ceiling. Size is the declared
// or observed byte count at the point the download was rejected.
type TooLargeError struct {
	Limit int64
	Size  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%v: %d bytes exceeds limit of %d bytes", ErrTooLarge, e.Size, e.Limit)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrTooLarge }
