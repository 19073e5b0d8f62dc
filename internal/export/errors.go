package export

import (
	"errors"
	"fmt"

	"fseqgen/internal/channels"
)

var (
	ErrSourceOpen        = errors.New("source open failed")
	ErrDestinationCreate = errors.New("destination create failed")
	ErrFrameIO           = errors.New("frame i/o failed")
	ErrInvalidRange      = errors.New("invalid channel range")
)

// SourceOpenError reports a source sequence the codec could not open.
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("open source %s: %v", e.Path, e.Err)
}

func (e *SourceOpenError) Unwrap() error { return e.Err }

func (e *SourceOpenError) Is(target error) bool { return target == ErrSourceOpen }

func (e *SourceOpenError) ErrorKind() string { return "source_open" }

// DestinationCreateError reports a destination that could not be created or
// configured. No file is left at Path.
type DestinationCreateError struct {
	Path string
	Err  error
}

func (e *DestinationCreateError) Error() string {
	return fmt.Sprintf("create destination %s: %v", e.Path, e.Err)
}

func (e *DestinationCreateError) Unwrap() error { return e.Err }

func (e *DestinationCreateError) Is(target error) bool { return target == ErrDestinationCreate }

func (e *DestinationCreateError) ErrorKind() string { return "destination_create" }

// FrameIOError reports a failure while writing the header, streaming frames,
// or finalizing. Frame is -1 when the failure is not tied to one frame.
type FrameIOError struct {
	Path  string
	Frame int64
	Op    string
	Err   error
}

func (e *FrameIOError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s frame %d of %s: %v", e.Op, e.Frame, e.Path, e.Err)
}

func (e *FrameIOError) Unwrap() error { return e.Err }

func (e *FrameIOError) Is(target error) bool { return target == ErrFrameIO }

func (e *FrameIOError) ErrorKind() string { return "frame_io" }

// InvalidRangeError reports a selection the source cannot satisfy.
type InvalidRangeError struct {
	Ranges []channels.Range
	Width  uint32
	Err    error
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid selection %s for %d source channels: %v", channels.Format(e.Ranges), e.Width, e.Err)
}

func (e *InvalidRangeError) Unwrap() error { return e.Err }

func (e *InvalidRangeError) Is(target error) bool { return target == ErrInvalidRange }

func (e *InvalidRangeError) ErrorKind() string { return "invalid_range" }
