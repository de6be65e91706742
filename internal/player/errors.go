package player

import (
	"errors"
	"fmt"
)

// Open failures. An *OpenError matches the sentinel of its kind with errors.Is.
var (
	ErrNoSource          = errors.New("could not open source")
	ErrNoStreamInfo      = errors.New("could not find stream info")
	ErrNoVideoStream     = errors.New("no video stream found")
	ErrUnsupportedCodec  = errors.New("unsupported video codec")
	ErrCodecOpenFailed   = errors.New("could not open video codec")
	ErrInvalidDimensions = errors.New("invalid video dimensions")
)

// Runtime failures.
var (
	ErrStalled    = errors.New("connection timed out")
	ErrAllocation = errors.New("failed to allocate output frame buffer")
	ErrNotOpen    = errors.New("no source is open")
)

// OpenError describes why a source could not be opened.
type OpenError struct {
	Kind   error
	Source string
	Err    error
}

// NewOpenError wraps err as an open failure of the given kind.
func NewOpenError(kind error, source string, err error) *OpenError {
	return &OpenError{Kind: kind, Source: source, Err: err}
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Source)
}

func (e *OpenError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorEvent is handed to the error callback.
type ErrorEvent struct {
	Message string
	// Fatal means the decode loop has exited and the player should be
	// stopped before it is reused.
	Fatal bool
	Err   error
}

func newErrorEvent(err error, fatal bool) ErrorEvent {
	return ErrorEvent{Message: err.Error(), Fatal: fatal, Err: err}
}
