package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference marks malformed input; never retried.
	ErrInvalidReference = errors.New("invalid content reference")

	// ErrTransportUnavailable means the capability probe failed; fatal for the
	// swarm path, the URL/transcode path is unaffected.
	ErrTransportUnavailable = errors.New("peer transport unavailable")

	// ErrSessionNotFound is returned when no session exists for an info hash.
	ErrSessionNotFound = errors.New("session not found")

	// ErrProcessingTimeout marks a transcode job whose attempt budget ran out
	// without the service reporting a terminal phase.
	ErrProcessingTimeout = errors.New("processing timed out")
)

// TransportError wraps a hard swarm join failure. The session is not created.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("swarm join failed: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// UploadError wraps a failure while requesting an upload target or
// transferring bytes to it. No job exists downstream of it.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// ProcessingError carries the service-reported failure text for a job that
// reached the failed phase. Distinct from ErrProcessingTimeout so callers can
// offer "retry" instead of "content is broken".
type ProcessingError struct {
	Message string
}

func (e *ProcessingError) Error() string { return fmt.Sprintf("processing failed: %s", e.Message) }
