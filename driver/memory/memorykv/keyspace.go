package memorykv

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/dogmatiq/dyad"
	"github.com/subaru-pfs/seqno/kv"
)

// state is the in-memory state of a keyspace.
type state struct {
	sync.RWMutex
	Pairs map[string]pair
}

type pair struct {
	Value    []byte
	Revision kv.Revision
}

// keyspace is an implementation of [kv.BinaryKeyspace] that manipulates a
// keyspace's in-memory [state].
type keyspace struct {
	name  string
	state *state
}

func (ks *keyspace) Name() string {
	return ks.name
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, kv.Revision, error) {
	if ks.state == nil {
		panic("keyspace is closed")
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	ks.state.RLock()
	defer ks.state.RUnlock()

	p := ks.state.Pairs[string(k)]
	return dyad.Clone(p.Value), p.Revision, nil
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	if ks.state == nil {
		panic("keyspace is closed")
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	ks.state.RLock()
	defer ks.state.RUnlock()

	_, ok := ks.state.Pairs[string(k)]
	return ok, nil
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte, r kv.Revision) error {
	if ks.state == nil {
		panic("keyspace is closed")
	}

	// The context is only consulted before the write. Once the value is
	// stored the caller must be told it succeeded.
	if err := ctx.Err(); err != nil {
		return err
	}

	v = dyad.Clone(v)

	ks.state.Lock()
	defer ks.state.Unlock()

	key := string(k)
	current := ks.state.Pairs[key]

	if current.Revision != r {
		return kv.ConflictError[[]byte]{
			Keyspace: ks.name,
			Key:      dyad.Clone(k),
			Revision: r,
		}
	}

	if len(v) == 0 {
		delete(ks.state.Pairs, key)
		return nil
	}

	if ks.state.Pairs == nil {
		ks.state.Pairs = map[string]pair{}
	}

	ks.state.Pairs[key] = pair{
		Value:    v,
		Revision: r + 1,
	}

	return nil
}

func (ks *keyspace) Range(ctx context.Context, fn kv.BinaryRangeFunc) error {
	if ks.state == nil {
		panic("keyspace is closed")
	}

	ks.state.RLock()
	pairs := maps.Clone(ks.state.Pairs)
	ks.state.RUnlock()

	for k, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := fn(ctx, []byte(k), dyad.Clone(p.Value), p.Revision)
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

func (ks *keyspace) Close() error {
	if ks.state == nil {
		return errors.New("keyspace is already closed")
	}

	ks.state = nil

	return nil
}
