package memorykv

import (
	"context"
	"sync"

	"github.com/subaru-pfs/seqno/kv"
)

// BinaryStore is an in-memory implementation of [kv.BinaryStore].
//
// Keyspaces opened from the same store share state, so a single BinaryStore
// can stand in for a shared database in tests.
type BinaryStore struct {
	keyspaces sync.Map // map[string]*state
}

// Open returns the keyspace with the given name.
func (s *BinaryStore) Open(ctx context.Context, name string) (kv.BinaryKeyspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, ok := s.keyspaces.Load(name)
	if !ok {
		st, _ = s.keyspaces.LoadOrStore(name, &state{})
	}

	return &keyspace{
		name:  name,
		state: st.(*state),
	}, nil
}
