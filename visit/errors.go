package visit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable indicates that a dependency could not be reached, or did
	// not respond within its deadline.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrAllocationExhausted indicates that every identifier source failed.
	// It is the only error that is reported to the requester as a failure.
	ErrAllocationExhausted = errors.New("allocation exhausted")

	// ErrResolutionFailed indicates that no metadata source held a value.
	ErrResolutionFailed = errors.New("metadata resolution failed")

	// ErrPersistenceFailed indicates that a visit record could not be written
	// after its identifier was allocated.
	ErrPersistenceFailed = errors.New("visit record persistence failed")

	// ErrRangeExhausted indicates that a counter has issued every identifier
	// that fits within the digit budget for its epoch.
	ErrRangeExhausted = errors.New("visit ID range exhausted")
)

// UnavailableError is returned when a dependency such as an identifier source,
// counter store, metadata source or record store can not be used.
type UnavailableError struct {
	// Dependency is the name of the dependency that failed.
	Dependency string

	// Cause is the underlying error.
	Cause error
}

func (e UnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s is unavailable", e.Dependency)
	}
	return fmt.Sprintf("%s is unavailable: %s", e.Dependency, e.Cause)
}

func (e UnavailableError) Unwrap() error {
	return e.Cause
}

// Is returns true if target is [ErrUnavailable].
func (e UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable returns an [UnavailableError] for the named dependency. If err
// is already unavailable it is returned unchanged.
func Unavailable(dependency string, err error) error {
	var u UnavailableError
	if errors.As(err, &u) {
		return err
	}

	return UnavailableError{
		Dependency: dependency,
		Cause:      err,
	}
}

// AllocationExhaustedError is returned when no identifier source could
// produce an identifier. No identifier has been issued.
type AllocationExhaustedError struct {
	// Epoch is the epoch for which allocation was requested.
	Epoch Epoch

	// Causes holds the error reported by each source, in the order the sources
	// were attempted.
	Causes []error
}

func (e AllocationExhaustedError) Error() string {
	var w strings.Builder

	fmt.Fprintf(&w, "cannot allocate a visit ID for epoch %q, all %d source(s) failed", string(e.Epoch), len(e.Causes))

	for _, c := range e.Causes {
		w.WriteString("; ")
		w.WriteString(c.Error())
	}

	return w.String()
}

func (e AllocationExhaustedError) Unwrap() []error {
	return e.Causes
}

// Is returns true if target is [ErrAllocationExhausted].
func (e AllocationExhaustedError) Is(target error) bool {
	return target == ErrAllocationExhausted
}

// ResolutionFailedError is returned when none of the consulted metadata
// sources held a value.
type ResolutionFailedError struct {
	// Key is the name of the metadata key being resolved.
	Key string

	// Sources lists the names of the sources that were consulted, in priority
	// order.
	Sources []string

	// Causes holds any errors reported by the sources. Sources that simply
	// held no value do not contribute an error.
	Causes []error
}

func (e ResolutionFailedError) Error() string {
	return fmt.Sprintf(
		"cannot resolve %q, none of the sources [%s] holds a value",
		e.Key,
		strings.Join(e.Sources, ", "),
	)
}

func (e ResolutionFailedError) Unwrap() []error {
	return e.Causes
}

// Is returns true if target is [ErrResolutionFailed].
func (e ResolutionFailedError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// PersistenceFailedError describes a record-store write that failed after the
// visit's identifier was allocated. The identifier remains issued.
type PersistenceFailedError struct {
	Visit ID
	Cause error
}

func (e PersistenceFailedError) Error() string {
	return fmt.Sprintf("cannot persist record of visit %s: %s", e.Visit, e.Cause)
}

func (e PersistenceFailedError) Unwrap() error {
	return e.Cause
}

// Is returns true if target is [ErrPersistenceFailed].
func (e PersistenceFailedError) Is(target error) bool {
	return target == ErrPersistenceFailed
}
