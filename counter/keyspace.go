package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/subaru-pfs/seqno/kv"
	"github.com/subaru-pfs/seqno/marshaler"
	"github.com/subaru-pfs/seqno/visit"
)

const (
	// DefaultKeyspace is the name of the keyspace that holds the counters of
	// a [KeyspaceCounter].
	DefaultKeyspace = "pfs_visit_counter"

	// DefaultMaxAttempts is the number of conditional writes a
	// [KeyspaceCounter] attempts before giving up.
	DefaultMaxAttempts = 64
)

// KeyspaceCounter is a [Counter] that keeps one key per epoch in a
// [kv.BinaryStore], incrementing it with conditional writes.
//
// The value of each key is the next free identifier for its epoch.
type KeyspaceCounter struct {
	store       kv.Store[string, uint64]
	name        string
	base        visit.ID
	maxAttempts int

	// m is held for reading while the keyspace is in use.
	m      sync.RWMutex
	ks     kv.Keyspace[string, uint64]
	closed bool
}

// KeyspaceOption is an option that changes the behavior of a
// [KeyspaceCounter].
type KeyspaceOption func(*KeyspaceCounter)

// WithBase is a [KeyspaceOption] that sets the first identifier issued for a
// fresh epoch. It panics if base is not a valid [visit.ID].
func WithBase(base visit.ID) KeyspaceOption {
	checkBase(base)
	return func(c *KeyspaceCounter) {
		c.base = base
	}
}

// WithMaxAttempts is a [KeyspaceOption] that bounds the number of conditional
// writes attempted by each call to [KeyspaceCounter.Next].
func WithMaxAttempts(n int) KeyspaceOption {
	if n < 1 {
		panic("max attempts must be positive")
	}
	return func(c *KeyspaceCounter) {
		c.maxAttempts = n
	}
}

// WithKeyspace is a [KeyspaceOption] that sets the name of the keyspace that
// holds the counters.
func WithKeyspace(name string) KeyspaceOption {
	return func(c *KeyspaceCounter) {
		c.name = name
	}
}

// NewKeyspaceCounter returns a [KeyspaceCounter] that stores its counters in s.
func NewKeyspaceCounter(s kv.BinaryStore, options ...KeyspaceOption) *KeyspaceCounter {
	c := &KeyspaceCounter{
		store:       kv.NewMarshalingStore(s, marshaler.String, marshaler.Uint64),
		name:        DefaultKeyspace,
		base:        DefaultBase,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Next returns the next identifier for e.
func (c *KeyspaceCounter) Next(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	ks, release, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	for attempt := 1; ; attempt++ {
		id, r, err := c.load(ctx, ks, e)
		if err != nil {
			return 0, err
		}

		next, err := successor(id)
		if err != nil {
			return 0, visit.Unavailable(c.name, err)
		}

		err = ks.Set(ctx, string(e), next, r)
		if err == nil {
			// The identifier is issued from this point on, regardless of
			// whether ctx has since been canceled.
			return id, nil
		}

		if !kv.IsConflict(err) {
			return 0, visit.Unavailable(
				c.name,
				fmt.Errorf("cannot persist counter for epoch %q: %w", e, err),
			)
		}

		if attempt >= c.maxAttempts {
			return 0, visit.Unavailable(
				c.name,
				fmt.Errorf("cannot persist counter for epoch %q, lost %d consecutive races: %w", e, attempt, err),
			)
		}
	}
}

// Peek returns the identifier that the next call to [KeyspaceCounter.Next]
// would return for e.
func (c *KeyspaceCounter) Peek(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	ks, release, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	id, _, err := c.load(ctx, ks, e)
	if err != nil {
		return 0, err
	}

	if _, err := successor(id); err != nil {
		return 0, visit.Unavailable(c.name, err)
	}

	return id, nil
}

// Close closes the underlying keyspace once any in-flight calls have
// returned. Subsequent calls to [KeyspaceCounter.Next] and
// [KeyspaceCounter.Peek] fail.
func (c *KeyspaceCounter) Close() error {
	c.m.Lock()
	defer c.m.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.ks == nil {
		return nil
	}
	return c.ks.Close()
}

// acquire returns the counter's keyspace, opening it on first use. The caller
// must call release once it is done with the keyspace.
func (c *KeyspaceCounter) acquire(ctx context.Context) (_ kv.Keyspace[string, uint64], release func(), _ error) {
	for {
		c.m.RLock()
		if c.closed {
			c.m.RUnlock()
			return nil, nil, visit.Unavailable(c.name, errors.New("counter is closed"))
		}
		if c.ks != nil {
			return c.ks, c.m.RUnlock, nil
		}
		c.m.RUnlock()

		if err := c.open(ctx); err != nil {
			return nil, nil, err
		}
	}
}

func (c *KeyspaceCounter) open(ctx context.Context) error {
	c.m.Lock()
	defer c.m.Unlock()

	if c.closed || c.ks != nil {
		return nil
	}

	ks, err := c.store.Open(ctx, c.name)
	if err != nil {
		return visit.Unavailable(
			c.name,
			fmt.Errorf("cannot open %q keyspace: %w", c.name, err),
		)
	}
	c.ks = ks

	return nil
}

// load returns the next free identifier for e and the revision of its key.
func (c *KeyspaceCounter) load(
	ctx context.Context,
	ks kv.Keyspace[string, uint64],
	e visit.Epoch,
) (visit.ID, kv.Revision, error) {
	v, r, err := ks.Get(ctx, string(e))
	if err != nil {
		return 0, 0, visit.Unavailable(
			c.name,
			fmt.Errorf("cannot read counter for epoch %q: %w", e, err),
		)
	}

	if r == 0 {
		return c.base, 0, nil
	}

	if v > uint64(visit.MaxID)+1 {
		return 0, 0, visit.Unavailable(
			c.name,
			fmt.Errorf("counter for epoch %q holds %d: %w", e, v, visit.ErrRangeExhausted),
		)
	}

	return visit.ID(v), r, nil
}
