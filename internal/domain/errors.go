package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a job or entity does not exist.
var ErrNotFound = errors.New("not found")

// SourceReadError wraps a data-access failure during snapshot traversal. A
// backup that hits one must abort without writing an artifact.
type SourceReadError struct {
	Op  string
	Err error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("source read failed during %s: %v", e.Op, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// EncodingError marks a cell value that could not be represented in the
// snapshot. Skipping it silently would mean silent data loss in a backup, so
// it is always a hard failure.
type EncodingError struct {
	ColumnID string
	Reason   string
}

func (e *EncodingError) Error() string {
	if e.ColumnID == "" {
		return fmt.Sprintf("encoding failed: %s", e.Reason)
	}
	return fmt.Sprintf("encoding failed for column %s: %s", e.ColumnID, e.Reason)
}

type ArtifactWriteError struct {
	Key string
	Err error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("artifact write failed for %s: %v", e.Key, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error { return e.Err }

type ArtifactReadError struct {
	Location string
	Err      error
}

func (e *ArtifactReadError) Error() string {
	return fmt.Sprintf("artifact read failed for %s: %v", e.Location, e.Err)
}

func (e *ArtifactReadError) Unwrap() error { return e.Err }

type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// InvalidStateError rejects a request before any job record is created, e.g.
// a restore against a non-completed or foreign-tenant backup, or a transition
// out of a terminal status.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }
