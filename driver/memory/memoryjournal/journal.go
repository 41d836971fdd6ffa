package memoryjournal

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dogmatiq/dyad"
	"github.com/subaru-pfs/seqno/journal"
)

// state is the in-memory state of a journal.
type state struct {
	sync.RWMutex
	Records [][]byte
}

// journ is an implementation of [journal.BinaryJournal] that manipulates a
// journal's in-memory [state].
type journ struct {
	name  string
	state *state
}

func (j *journ) Name() string {
	return j.name
}

func (j *journ) Bounds(ctx context.Context) (journal.Interval, error) {
	if j.state == nil {
		panic("journal is closed")
	}

	if err := ctx.Err(); err != nil {
		return journal.Interval{}, err
	}

	j.state.RLock()
	defer j.state.RUnlock()

	return journal.Interval{
		End: journal.Position(len(j.state.Records)),
	}, nil
}

func (j *journ) Get(ctx context.Context, pos journal.Position) ([]byte, error) {
	if j.state == nil {
		panic("journal is closed")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.state.RLock()
	defer j.state.RUnlock()

	if pos >= journal.Position(len(j.state.Records)) {
		return nil, journal.RecordNotFoundError{Position: pos}
	}

	return dyad.Clone(j.state.Records[pos]), nil
}

func (j *journ) Range(
	ctx context.Context,
	pos journal.Position,
	fn journal.BinaryRangeFunc,
) error {
	if j.state == nil {
		panic("journal is closed")
	}

	j.state.RLock()
	records := slices.Clone(j.state.Records)
	j.state.RUnlock()

	if pos >= journal.Position(len(records)) {
		return journal.RecordNotFoundError{Position: pos}
	}

	for i, rec := range records[pos:] {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := fn(ctx, pos+journal.Position(i), dyad.Clone(rec))
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

func (j *journ) Append(ctx context.Context, pos journal.Position, rec []byte) error {
	if j.state == nil {
		panic("journal is closed")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	rec = dyad.Clone(rec)

	j.state.Lock()
	defer j.state.Unlock()

	end := journal.Position(len(j.state.Records))

	switch {
	case pos < end:
		return journal.ConflictError{
			Journal:  j.name,
			Position: pos,
		}
	case pos == end:
		j.state.Records = append(j.state.Records, rec)
		return nil
	default:
		panic("position out of range, this causes undefined behavior in a 'real' journal implementation")
	}
}

func (j *journ) Close() error {
	if j.state == nil {
		return errors.New("journal is already closed")
	}

	j.state = nil

	return nil
}
