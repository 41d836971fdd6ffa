package journal

import (
	"errors"
	"fmt"
)

// IsConflict returns true if err is caused by a [ConflictError].
func IsConflict(err error) bool {
	return errors.As(err, &ConflictError{})
}

// ConflictError is returned by [Journal.Append] if there is already a record at
// the specified position.
type ConflictError struct {
	Journal  string
	Position Position
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict in %q journal, a record already exists at position %d",
		e.Journal,
		e.Position,
	)
}

// IgnoreNotFound returns nil if err is caused by a [RecordNotFoundError].
// Otherwise it returns err unchanged.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// IsNotFound returns true if err is caused by a [RecordNotFoundError].
func IsNotFound(err error) bool {
	return errors.As(err, &RecordNotFoundError{})
}

// RecordNotFoundError is returned by [Journal.Get] and [Journal.Range] if the
// requested record does not exist because the given position has not been
// written yet.
type RecordNotFoundError struct {
	Position Position
}

func (e RecordNotFoundError) Error() string {
	return fmt.Sprintf("record at position %d has not been appended yet", e.Position)
}
