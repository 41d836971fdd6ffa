package journal

import (
	"context"
)

// Position is the index of a record within a [Journal]. The first record is
// always at position 0.
type Position uint64

// A RangeFunc is a function used to range over the records in a [Journal].
//
// If err is non-nil, ranging stops and err is propagated up the stack.
// Otherwise, if ok is false, ranging stops without any error being propagated.
type RangeFunc[T any] func(context.Context, Position, T) (ok bool, err error)

// A Journal is an append-only log containing records of type T.
//
// Records are never modified or removed once appended.
type Journal[T any] interface {
	// Name returns the name of the journal.
	Name() string

	// Bounds returns the half-open interval [begin, end) describing the
	// positions of the first and last records in the journal.
	Bounds(ctx context.Context) (Interval, error)

	// Get returns the record at the given position.
	//
	// It returns a [RecordNotFoundError] if there is no record at the given
	// position.
	Get(ctx context.Context, pos Position) (rec T, err error)

	// Range invokes fn for each record in the journal, in order, starting with
	// the record at the given position.
	//
	// It returns a [RecordNotFoundError] if there is no record at the given
	// position.
	Range(ctx context.Context, pos Position, fn RangeFunc[T]) error

	// Append adds a record to the journal at the given position.
	//
	// pos must be the end of the journal, as returned by [Journal.Bounds]. If
	// pos < end a [ConflictError] is returned, indicating that there is
	// already a record at the given position. The behavior is undefined if
	// pos > end.
	Append(ctx context.Context, pos Position, rec T) error

	// Close closes the journal.
	Close() error
}
