// Package lock persists one signed record per (wave, phase) asserting that
// the phase passed against a specific checksum of its inputs.
package lock

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lock state. A lock is created Passed and can only move to
// Invalidated; re-validation overwrites the record with a fresh Passed lock.
type Status string

const (
	StatusPassed      Status = "PASSED"
	StatusInvalidated Status = "INVALIDATED"
)

// Lock is the persisted record for one (wave, phase).
type Lock struct {
	Phase     int    `json:"phase"`
	PhaseName string `json:"phase_name"`
	Wave      int    `json:"wave"`
	Status    Status `json:"status"`
	// Checksum is the input hash computed at creation time.
	Checksum string `json:"checksum"`
	// PreviousPhaseChecksum is the checksum recorded in the predecessor's
	// lock when this lock was created. Audit linkage only; Validate always
	// recomputes against live state instead of trusting this copy.
	PreviousPhaseChecksum string `json:"previous_phase_checksum"`
	// Checks carries the validator's per-check payload verbatim. Opaque to
	// this package.
	Checks            map[string]any `json:"checks,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	InvalidatedAt     *time.Time     `json:"invalidated_at,omitempty"`
	InvalidatedReason string         `json:"invalidated_reason,omitempty"`
}

// ErrNotFound is returned by Read when no lock exists for a (wave, phase).
var ErrNotFound = errors.New("lock not found")

// CorruptError reports a lock file that exists but cannot be parsed.
// Validate treats such a lock as absent (fail closed), but the condition is
// surfaced to operators instead of being silently swallowed.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt lock file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}
