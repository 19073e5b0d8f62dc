package batch

import (
	"errors"
	"fmt"
)

var (
	ErrPartialFailure  = errors.New("some exports failed")
	ErrDestinationBusy = errors.New("destination is in use by another export run")
)

// PartialFailureError summarises a run in which at least one export failed.
type PartialFailureError struct {
	RunID  string
	Failed int
	Total  int
	// First is the error of the first failed item.
	First error
}

func (e *PartialFailureError) Error() string {
	if e.First == nil {
		return fmt.Sprintf("%d of %d exports failed", e.Failed, e.Total)
	}
	return fmt.Sprintf("%d of %d exports failed (first: %v)", e.Failed, e.Total, e.First)
}

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

func (e *PartialFailureError) ErrorKind() string { return "partial_failure" }

// DestinationBusyError reports a destination locked by another run.
type DestinationBusyError struct {
	Dir string
}

func (e *DestinationBusyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dir, ErrDestinationBusy)
}

func (e *DestinationBusyError) Is(target error) bool { return target == ErrDestinationBusy }

func (e *DestinationBusyError) ErrorKind() string { return "destination_busy" }
