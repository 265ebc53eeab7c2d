package entity

import (
	"errors"
	"fmt"
)

// Error kinds reported by a frame expansion run.
var (
	ErrNotFound        = errors.New("source not found")
	ErrWriteFailure    = errors.New("frame write failed")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExpandError ties an error kind to the path that caused it. Index is the
// output frame index being written, or -1 when no frame was involved.
type ExpandError struct {
	Kind  error
	Path  string
	Index int
	Err   error
}

func (e *ExpandError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExpandError) Unwrap() error {
	return e.Err
}

func (e *ExpandError) Is(target error) bool {
	return target == e.Kind
}

// IsPermanent reports whether retrying the same request cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument)
}
