package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSlot is returned when a slot cannot exist in the feed.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrMissingColumns marks a payload whose header lacks a required field.
	ErrMissingColumns = errors.New("missing required columns")
)

// TransientFetchError is a retryable failure: timeouts, connection resets,
// 5xx responses, or a truncated body.
type TransientFetchError struct {
	Slot       Slot
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: transient: status %d: %v", e.Slot.ID(), e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: transient: %v", e.Slot.ID(), e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError marks a slot as failed. It is reported per slot and never
// aborts sibling fetches.
type PermanentFetchError struct {
	Slot     Slot
	Attempts int
	Err      error
}

func (e *PermanentFetchError) Error() string {
	return fmt.Sprintf("fetch %s: failed after %d attempt(s): %v", e.Slot.ID(), e.Attempts, e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// MalformedRowError describes a CSV row dropped during normalization.
type MalformedRowError struct {
	Line   int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

// ReferenceDataError means the biome reference file could not be loaded.
// The service refuses to start without it.
type ReferenceDataError struct {
	Path string
	Err  error
}

func (e *ReferenceDataError) Error() string {
	return fmt.Sprintf("reference data %s: %v", e.Path, e.Err)
}

func (e *ReferenceDataError) Unwrap() error { return e.Err }
