package relay

import "fmt"

// InvalidInputError represents a malformed submission rejected before any I/O.
type InvalidInputError struct {
	URL    string // The submitted URL
	Reason string // Human-readable explanation of why the input was rejected
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.URL, e.Reason)
}

// AlreadyActiveError is returned when an owner submits while a previous
// session of theirs is still unreleased.
type AlreadyActiveError struct {
	OwnerID string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("owner %s already has an active transfer", e.OwnerID)
}

// ProbeError represents a failed metadata lookup. It is not automatically
// fatal to the caller: policy decides whether an unknown size is acceptable.
type ProbeError struct {
	URL string
	Err error // Underlying error, if any
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to probe %s", e.URL)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// SizeLimitError is returned when the declared size exceeds the configured
// limit. No bytes are fetched in this case.
type SizeLimitError struct {
	DeclaredSize int64
	Limit        int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("declared size %d exceeds limit %d", e.DeclaredSize, e.Limit)
}

// NetworkError represents a failure during chunk streaming or upload. It is
// fatal to the session and not retried.
type NetworkError struct {
	Operation  string // The step that failed (e.g., "stream", "upload")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d)", e.Operation, e.StatusCode)
	}

	return fmt.Sprintf("network error during %s", e.Operation)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// CancelDenialReason explains why a cancel request was not accepted.
type CancelDenialReason int

const (
	CancelDeniedNoActiveSession CancelDenialReason = iota
	CancelDeniedUnauthorized
)

// CancelDeniedError is returned when a cancel request cannot be honored.
// An unauthorized attempt leaves the session untouched.
type CancelDeniedError struct {
	OwnerID     string
	RequesterID string
	Reason      CancelDenialReason
}

func (e *CancelDeniedError) Error() string {
	if e.Reason == CancelDeniedUnauthorized {
		return fmt.Sprintf("requester %s may not cancel transfer owned by %s", e.RequesterID, e.OwnerID)
	}

	return fmt.Sprintf("owner %s has no active transfer", e.OwnerID)
}
