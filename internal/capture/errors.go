package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBackend is returned for ids outside the registered set.
	ErrUnknownBackend = errors.New("unknown capture backend")

	// ErrBackendUnavailable means a probe failed. It routes, it does not
	// terminate.
	ErrBackendUnavailable = errors.New("capture backend unavailable")

	// ErrCaptureFailed is the root of every capture failure.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrAllBackendsFailed is returned once fallback is exhausted.
	ErrAllBackendsFailed = fmt.Errorf("%w: no backend produced a result", ErrCaptureFailed)

	// ErrCancelled is returned by a backend when the user dismissed a
	// server-side dialog. The orchestrator turns it into a cancelled result.
	ErrCancelled = errors.New("capture cancelled by user")

	// ErrUnsupportedMode is returned by backends that cannot serve a mode.
	ErrUnsupportedMode = errors.New("capture mode not supported by backend")
)

// BackendError records which backend failed and why.
type BackendError struct {
	Backend BackendID
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrCaptureFailed, e.Err}
}
