package kv

import "context"

// Revision is the version of a key/value pair, used for optimistic
// concurrency control.
//
// A key that is not present in the keyspace has a revision of zero. Each
// successful write to a key increments its revision by one.
type Revision uint64

// A RangeFunc is a function used to range over the key/value pairs in a
// [Keyspace].
//
// If err is non-nil, ranging stops and err is propagated up the stack.
// Otherwise, if ok is false, ranging stops without any error being propagated.
type RangeFunc[K, V any] func(ctx context.Context, k K, v V, r Revision) (ok bool, err error)

// A Keyspace is an isolated collection of key/value pairs.
type Keyspace[K, V any] interface {
	// Name returns the name of the keyspace.
	Name() string

	// Get returns the value associated with k, and its current revision.
	//
	// If the key does not exist v is the zero-value of V and r is zero.
	Get(ctx context.Context, k K) (v V, r Revision, err error)

	// Has returns true if k is present in the keyspace.
	Has(ctx context.Context, k K) (ok bool, err error)

	// Set associates a value with k.
	//
	// r must be the current revision of k, or zero if k is not present. If r
	// does not match, a [ConflictError] is returned and the keyspace is left
	// unchanged. The check and the write are atomic with respect to all other
	// writers of the same keyspace, including those in other processes.
	//
	// If v is the zero-value of V (or equivalent), the key is deleted.
	Set(ctx context.Context, k K, v V, r Revision) error

	// Range invokes fn for each key in the keyspace in an undefined order.
	Range(ctx context.Context, fn RangeFunc[K, V]) error

	// Close closes the keyspace.
	Close() error
}
