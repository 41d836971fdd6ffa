package memoryjournal

import (
	"context"
	"sync"

	"github.com/subaru-pfs/seqno/journal"
)

// BinaryStore is an implementation of [journal.BinaryStore] that stores
// records in memory.
type BinaryStore struct {
	journals sync.Map // map[string]*state
}

// Open returns the journal with the given name.
func (s *BinaryStore) Open(ctx context.Context, name string) (journal.BinaryJournal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, ok := s.journals.Load(name)
	if !ok {
		st, _ = s.journals.LoadOrStore(name, &state{})
	}

	return &journ{
		name:  name,
		state: st.(*state),
	}, nil
}
