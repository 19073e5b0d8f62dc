package update

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork         = errors.New("update check network failure")
	ErrInvalidResponse = errors.New("invalid release listing")
	ErrReleaseNotFound = errors.New("release not found")
	ErrDownload        = errors.New("update download failed")
)

// Error classifies an update failure. Kind is one of the sentinels above.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) ErrorKind() string {
	switch e.Kind {
	case ErrNetwork:
		return "update_network"
	case ErrInvalidResponse:
		return "update_invalid_response"
	case ErrReleaseNotFound:
		return "update_not_found"
	case ErrDownload:
		return "update_download"
	default:
		return "update"
	}
}
